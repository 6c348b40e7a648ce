package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ExecLauncher spawns a local executable with stdin, stdout and stderr
// connected to pipes. stdout and stderr share one pipe so their relative
// order is kept.
type ExecLauncher struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // Appended to os.Environ()
}

// Spawn starts the executable. The context is not bound to the child's
// lifetime; Supervisor.Stop ends it.
func (l ExecLauncher) Spawn(_ context.Context) (Process, error) {
	cmd := exec.Command(l.Command, l.Args...)
	cmd.Dir = l.Dir
	cmd.Env = append(os.Environ(), l.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: l.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: l.Command, Err: fmt.Errorf("output pipe: %w", err)}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		stdin.Close()
		pr.Close()
		pw.Close()
		return nil, &SpawnError{Command: l.Command, Err: err}
	}

	// The child holds its own copy of the write end.
	pw.Close()

	return &execProcess{cmd: cmd, stdin: stdin, output: pr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *os.File
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Output() io.Reader     { return p.output }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Close releases the read end of the output pipe.
func (p *execProcess) Close() error { return p.output.Close() }

var _ Launcher = ExecLauncher{}
