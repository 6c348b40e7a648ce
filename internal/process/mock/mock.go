package mock

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/zette-dev/warden/internal/process"
)

// Child is an in-memory stand-in for a spawned process. Lines written to
// its stdin appear on Received; Emit writes to its output stream.
type Child struct {
	pid       int
	ignoreEOF bool

	stdinR *io.PipeReader
	stdinW *io.PipeWriter
	outR   *io.PipeReader
	outW   *io.PipeWriter

	received chan string
	exited   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	killed bool
}

func newChild(pid int, ignoreEOF bool) *Child {
	c := &Child{
		pid:       pid,
		ignoreEOF: ignoreEOF,
		received:  make(chan string, 1024),
		exited:    make(chan struct{}),
	}
	c.stdinR, c.stdinW = io.Pipe()
	c.outR, c.outW = io.Pipe()
	go c.readStdin()
	return c
}

func (c *Child) readStdin() {
	scanner := bufio.NewScanner(c.stdinR)
	for scanner.Scan() {
		c.received <- scanner.Text()
	}
	if !c.ignoreEOF {
		c.Exit()
	}
}

// Emit writes lines to the child's output, each newline-terminated.
func (c *Child) Emit(lines ...string) error {
	for _, line := range lines {
		if _, err := io.WriteString(c.outW, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// EmitRaw writes s to the output unchanged.
func (c *Child) EmitRaw(s string) error {
	_, err := io.WriteString(c.outW, s)
	return err
}

// Received yields every line the supervisor wrote to stdin.
func (c *Child) Received() <-chan string { return c.received }

// Exit ends the child: its output reaches EOF and Wait returns.
func (c *Child) Exit() {
	c.once.Do(func() {
		c.outW.Close()
		c.stdinR.Close()
		close(c.exited)
	})
}

// Exited is closed once the child has exited.
func (c *Child) Exited() <-chan struct{} { return c.exited }

func (c *Child) Killed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

func (c *Child) Stdin() io.WriteCloser { return c.stdinW }
func (c *Child) Output() io.Reader     { return c.outR }
func (c *Child) Pid() int              { return c.pid }

func (c *Child) Wait() error {
	<-c.exited
	return nil
}

func (c *Child) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	c.Exit()
	return nil
}

// Launcher is a test double that spawns in-memory children.
type Launcher struct {
	mu       sync.Mutex
	children []*Child

	// Err, when set, is returned by Spawn instead of a child.
	Err error
	// IgnoreEOF keeps children alive after their stdin is closed.
	IgnoreEOF bool
	// Spawned receives every new child when non-nil.
	Spawned chan *Child
}

func New() *Launcher {
	return &Launcher{Spawned: make(chan *Child, 16)}
}

func (l *Launcher) Spawn(_ context.Context) (process.Process, error) {
	l.mu.Lock()
	if l.Err != nil {
		err := l.Err
		l.mu.Unlock()
		return nil, &process.SpawnError{Command: "mock", Err: err}
	}
	c := newChild(1000+len(l.children), l.IgnoreEOF)
	l.children = append(l.children, c)
	spawned := l.Spawned
	l.mu.Unlock()

	if spawned != nil {
		select {
		case spawned <- c:
		default:
		}
	}
	return c, nil
}

// Children returns every child spawned so far.
func (l *Launcher) Children() []*Child {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Child(nil), l.children...)
}

// Last returns the most recently spawned child, or nil.
func (l *Launcher) Last() *Child {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.children) == 0 {
		return nil
	}
	return l.children[len(l.children)-1]
}

// Alive counts children that have not exited.
func (l *Launcher) Alive() int {
	n := 0
	for _, c := range l.Children() {
		select {
		case <-c.exited:
		default:
			n++
		}
	}
	return n
}

var _ process.Launcher = (*Launcher)(nil)
