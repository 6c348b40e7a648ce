// Package process supervises a single long-running child and relays its
// combined stdout and stderr, line by line, into an unbounded queue.
package process

import (
	"context"
	"fmt"
	"io"
)

// Process is a spawned child. Output yields stdout and stderr merged into
// one stream.
type Process interface {
	Stdin() io.WriteCloser
	Output() io.Reader
	Wait() error
	Kill() error
	Pid() int
}

// Launcher is the process-launch collaborator.
type Launcher interface {
	Spawn(ctx context.Context) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Process, error)

func (f LauncherFunc) Spawn(ctx context.Context) (Process, error) { return f(ctx) }

// SpawnError reports a child that could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
