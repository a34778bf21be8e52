package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func echoTool(name string) *Func {
	return &Func{
		ToolName: name,
		Desc:     "echoes its arguments",
		Params:   json.RawMessage(`{"type":"object"}`),
		Fn: func(ctx context.Context, args json.RawMessage) (any, error) {
			return string(args), nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tool, ok := r.Get("echo")
	if !ok {
		t.Fatal("Get() did not find registered tool")
	}
	if tool.Name() != "echo" {
		t.Errorf("Name() = %q", tool.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get() found an unregistered tool")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(echoTool("echo")); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("error = %v, want ErrDuplicateTool", err)
	}
}

func TestRegisterNil(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatal("Register(nil) did not fail")
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zebra", "alpha", "mid"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "mid", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestDefinitions(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("len(Definitions()) = %d, want 1", len(defs))
	}
	d := defs[0]
	if d.Name != "echo" || d.Description != "echoes its arguments" {
		t.Errorf("definition = %+v", d)
	}
	if string(d.Parameters) != `{"type":"object"}` {
		t.Errorf("Parameters = %s", d.Parameters)
	}
}

func TestExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != `{"x":1}` {
		t.Errorf("Execute() = %v", out)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("error = %v, want ErrUnknownTool", err)
	}
}
