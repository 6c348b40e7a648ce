package process

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	relayJoinTimeout       = 2 * time.Second
)

// State is the lifecycle state of a Supervisor.
type State int

const (
	StateIdle    State = iota // No child
	StateRunning              // Child attached, relay active
	StateStopped              // Child gone, output being collected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StartResult says whether Start replaced a running child.
type StartResult int

const (
	StartedFresh StartResult = iota
	Restarted
)

func (r StartResult) String() string {
	if r == Restarted {
		return "restarted"
	}
	return "started"
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithShutdownTimeout sets how long Stop waits for a graceful exit before
// killing the child.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// Supervisor owns one child process at a time together with its stdin and
// the relay draining its output.
type Supervisor struct {
	launcher        Launcher
	shutdownTimeout time.Duration
	log             *slog.Logger

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex

	mu     sync.Mutex
	state  State
	proc   Process
	stdin  io.WriteCloser
	relay  *Relay
	queue  *Queue
	exited chan struct{}
	runID  string

	// writeMu keeps multi-line commands contiguous on stdin.
	writeMu sync.Mutex
}

func NewSupervisor(l Launcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher:        l,
		shutdownTimeout: defaultShutdownTimeout,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the child. A running child is stopped first and its output
// discarded. Spawn failures are returned as *SpawnError and leave the
// supervisor idle.
func (s *Supervisor) Start(ctx context.Context) (StartResult, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	result := StartedFresh
	if s.IsRunning() {
		s.stop()
		result = Restarted
	}

	proc, err := s.launcher.Spawn(ctx)
	if err != nil {
		return result, err
	}

	queue := NewQueue()
	exited := make(chan struct{})
	runID := uuid.NewString()

	s.mu.Lock()
	s.proc = proc
	s.stdin = proc.Stdin()
	s.queue = queue
	s.relay = StartRelay(proc.Output(), queue)
	s.exited = exited
	s.runID = runID
	s.state = StateRunning
	s.mu.Unlock()

	go s.wait(proc, exited, runID)

	s.log.Info("child started", "run_id", runID, "pid", proc.Pid(), "result", result.String())
	return result, nil
}

func (s *Supervisor) wait(proc Process, exited chan struct{}, runID string) {
	err := proc.Wait()
	close(exited)
	if err != nil {
		s.log.Info("child exited", "run_id", runID, "error", err)
		return
	}
	s.log.Info("child exited", "run_id", runID)
}

// Write sends each line to the child followed by a newline. The lines are
// written back to back. Writing to an idle supervisor does nothing.
func (s *Supervisor) Write(lines ...string) {
	s.mu.Lock()
	stdin := s.stdin
	runID := s.runID
	s.mu.Unlock()

	s.write(stdin, runID, lines)
}

// WriteTo is Write restricted to the run identified by runID. Lines meant
// for a child that has since been stopped or replaced are dropped.
func (s *Supervisor) WriteTo(runID string, lines ...string) {
	s.mu.Lock()
	stdin := s.stdin
	current := s.runID
	s.mu.Unlock()

	if runID == "" || runID != current {
		s.log.Debug("write for stale run dropped", "run_id", runID, "current_run_id", current)
		return
	}
	s.write(stdin, runID, lines)
}

func (s *Supervisor) write(stdin io.WriteCloser, runID string, lines []string) {
	if stdin == nil || len(lines) == 0 {
		return
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(stdin, b.String()); err != nil {
		s.log.Debug("write to child dropped", "run_id", runID, "error", err)
	}
}

// Stop closes the child's stdin, waits for it to exit (killing it after the
// shutdown timeout), joins the relay and returns every line still queued.
// Stopping an idle supervisor returns nil.
func (s *Supervisor) Stop() []string {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.stop()
}

func (s *Supervisor) stop() []string {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	proc, stdin, relay, queue, exited, runID := s.proc, s.stdin, s.relay, s.queue, s.exited, s.runID
	s.state = StateStopped
	s.stdin = nil
	s.mu.Unlock()

	// Close stdin to signal EOF. This also unblocks a Write stuck on a
	// full pipe.
	stdin.Close()

	select {
	case <-exited:
	case <-time.After(s.shutdownTimeout):
		s.log.Warn("child did not exit, killing", "run_id", runID)
		if err := proc.Kill(); err != nil {
			s.log.Debug("kill child", "run_id", runID, "error", err)
		}
		<-exited
	}

	// A grandchild may still hold the output pipe open.
	if !relay.Wait(relayJoinTimeout) {
		if c, ok := proc.(io.Closer); ok {
			c.Close()
		}
		<-relay.Done()
	} else if c, ok := proc.(io.Closer); ok {
		c.Close()
	}

	lines := queue.Drain()

	s.mu.Lock()
	s.proc = nil
	s.relay = nil
	s.queue = nil
	s.exited = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.log.Info("child stopped", "run_id", runID, "pending_lines", len(lines))
	return lines
}

func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Queue returns the output queue of the running child, or nil.
func (s *Supervisor) Queue() *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

// Exited returns a channel closed when the running child exits, or nil
// when idle.
func (s *Supervisor) Exited() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// RunID identifies the current child; empty when idle.
func (s *Supervisor) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return ""
	}
	return s.runID
}
