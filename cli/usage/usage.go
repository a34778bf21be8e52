// Package usage records completed gateway calls to a local append-only log.
package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one recorded call, serialized as a JSON line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
}

// FileRecorder appends JSON lines to a log file. It implements
// core.UsageRecorder.
type FileRecorder struct {
	path string
	mu   sync.Mutex
}

// NewFileRecorder creates a recorder writing to the given path. The file and
// its directory are created on first record.
func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

// Record appends one entry. Implements core.UsageRecorder.
func (r *FileRecorder) Record(provider, model, input, output string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(Entry{
		Timestamp: time.Now().UTC(),
		Provider:  provider,
		Model:     model,
		Input:     input,
		Output:    output,
	})
	if err != nil {
		return err
	}

	_, err = f.Write(append(line, '\n'))
	return err
}
