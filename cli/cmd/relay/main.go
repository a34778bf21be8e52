// Relay CLI - chat completion gateway command-line interface.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/petal-labs/relay/cli/commands"
)

// ExitCoder is an interface for errors that carry an exit code.
type ExitCoder interface {
	ExitCode() int
}

func main() {
	// Load .env when present; absence is fine.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		if ec, ok := err.(ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}
