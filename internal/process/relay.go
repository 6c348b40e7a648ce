package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Relay drains a reader into a Queue one line at a time. It frames bytes
// into lines and nothing else.
type Relay struct {
	queue *Queue
	done  chan struct{}
	err   error
}

// StartRelay starts the reader goroutine. It ends when r reaches EOF or
// fails.
func StartRelay(r io.Reader, q *Queue) *Relay {
	rl := &Relay{queue: q, done: make(chan struct{})}
	go rl.run(r)
	return rl
}

func (rl *Relay) run(r io.Reader) {
	defer close(rl.done)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err == nil {
			rl.queue.Push(trimEOL(line))
			continue
		}

		// A final line without a terminator is still output.
		if line != "" {
			rl.queue.Push(trimEOL(line))
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			rl.err = err
			slog.Debug("output relay stopped", "error", err)
		}
		return
	}
}

// Done is closed when the reader goroutine has exited.
func (rl *Relay) Done() <-chan struct{} { return rl.done }

// Wait blocks until the relay exits or timeout elapses, and reports
// whether it exited.
func (rl *Relay) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-rl.done:
		return true
	case <-t.C:
		return false
	}
}

// Err returns the read error that ended the relay, if it was not EOF.
// Only valid after Done is closed.
func (rl *Relay) Err() error { return rl.err }

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
