package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zette-dev/warden/internal/config"
	"github.com/zette-dev/warden/internal/process"
	"github.com/zette-dev/warden/internal/protocol"
	"github.com/zette-dev/warden/internal/timer"
)

// ErrMessagesDisabled is returned by Message when the session was configured
// without the message capability.
var ErrMessagesDisabled = errors.New("messages are disabled")

// Listener receives decoded events from a session's drain loop. Calls for
// one session never overlap and follow the child's output order. The
// context is cancelled when the session stops; a listener must not call
// Start, Stop or Update on its own session.
type Listener interface {
	Output(ctx context.Context, line string)
	Message(ctx context.Context, text string)
}

// ListenerFuncs adapts a pair of functions to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	OnOutput  func(ctx context.Context, line string)
	OnMessage func(ctx context.Context, text string)
}

func (f ListenerFuncs) Output(ctx context.Context, line string) {
	if f.OnOutput != nil {
		f.OnOutput(ctx, line)
	}
}

func (f ListenerFuncs) Message(ctx context.Context, text string) {
	if f.OnMessage != nil {
		f.OnMessage(ctx, text)
	}
}

// Builder is the build/update collaborator. Rebuild updates the source
// tree and builds it.
type Builder interface {
	Rebuild(ctx context.Context) error
}

// Session is one chat's managed child: its supervisor, the output log of
// the current run, and its timer slot.
type Session struct {
	id        int64
	createdAt time.Time
	sup       *process.Supervisor
	codec     protocol.Codec
	timer     *timer.Slot
	listener  Listener
	builder   Builder
	interval  time.Duration
	log       *slog.Logger

	// opMu serializes Start, Stop and Update.
	opMu      sync.Mutex
	drainStop context.CancelFunc
	drainDone chan struct{}
	leftover  []string // set by the drain loop before drainDone closes

	logMu   sync.Mutex
	output  strings.Builder
	lastRun string

	// timerRun is the run that armed the timer.
	timerMu  sync.Mutex
	timerRun string
}

func newSession(id int64, cfg config.SessionConfig, sup *process.Supervisor, listener Listener, builder Builder) *Session {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	interval := cfg.DrainInterval
	if interval <= 0 {
		interval = time.Second
	}

	s := &Session{
		id:        id,
		createdAt: time.Now(),
		sup:       sup,
		codec:     protocol.Codec{Messages: !cfg.DisableMessages},
		listener:  listener,
		builder:   builder,
		interval:  interval,
		log:       slog.Default().With("chat_id", id),
	}
	s.timer = timer.New(cfg.TimerUnit, s.fireTimer)
	return s
}

// fireTimer sends the timer command to the child that armed the timer.
func (s *Session) fireTimer() {
	s.timerMu.Lock()
	runID := s.timerRun
	s.timerMu.Unlock()

	s.log.Debug("timer fired", "run_id", runID)
	s.sup.WriteTo(runID, protocol.Timer()...)
}

func (s *Session) armTimer(seconds int) {
	s.timerMu.Lock()
	s.timerRun = s.sup.RunID()
	s.timerMu.Unlock()

	s.timer.Arm(seconds)
}

func (s *Session) ID() int64            { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) IsRunning() bool      { return s.sup.IsRunning() }
func (s *Session) RunID() string        { return s.sup.RunID() }

// TimerPending reports when the armed timer fires, if one is armed.
func (s *Session) TimerPending() (time.Time, bool) { return s.timer.Pending() }

// Start spawns the child and its drain loop. A running child is stopped
// first, its output kept as LastRun. The current output log is cleared.
func (s *Session) Start(ctx context.Context) (process.StartResult, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	result := process.StartedFresh
	if s.sup.IsRunning() {
		s.stopLocked()
		result = process.Restarted
	}

	s.logMu.Lock()
	s.output.Reset()
	s.logMu.Unlock()

	if _, err := s.sup.Start(ctx); err != nil {
		return result, fmt.Errorf("start session %d: %w", s.id, err)
	}

	drainCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.drainStop = cancel
	s.drainDone = make(chan struct{})
	s.leftover = nil
	go s.drain(drainCtx, s.sup.Queue(), s.drainDone)

	s.log.Info("session started", "run_id", s.sup.RunID(), "result", result.String())
	return result, nil
}

// Stop ends the child and returns the output captured during the run.
// Stopping a session that is not running returns "".
func (s *Session) Stop() string {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() string {
	if !s.sup.IsRunning() {
		return ""
	}
	runID := s.sup.RunID()

	// The drain loop must be gone before the supervisor is, so no output
	// from this run is delivered after Stop returns.
	if s.drainStop != nil {
		s.drainStop()
		<-s.drainDone
		s.drainStop = nil
	}
	s.timer.Cancel()

	rest := append(s.leftover, s.sup.Stop()...)
	s.leftover = nil
	for _, line := range rest {
		s.collect(line)
	}

	s.logMu.Lock()
	out := s.output.String()
	s.lastRun = out
	s.logMu.Unlock()

	s.log.Info("session stopped", "run_id", runID, "output_bytes", len(out))
	return out
}

// Update stops the child, then updates and rebuilds the program.
// It returns the output captured from the stopped run.
func (s *Session) Update(ctx context.Context) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := s.stopLocked()
	if s.builder == nil {
		return out, nil
	}
	if err := s.builder.Rebuild(ctx); err != nil {
		return out, fmt.Errorf("rebuild: %w", err)
	}
	return out, nil
}

func (s *Session) Ping() { s.sup.Write(protocol.Ping()...) }
func (s *Session) Quit() { s.sup.Write(protocol.Quit()...) }

// Message forwards a chat message from sender to the child. Only the first
// line of sender and text is sent.
func (s *Session) Message(sender, text string) error {
	if !s.codec.Messages {
		return ErrMessagesDisabled
	}
	s.sup.Write(protocol.Message(sender, text)...)
	return nil
}

// Output returns the log of the current run.
func (s *Session) Output() string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.output.String()
}

// LastRun returns the output captured by the most recent stop.
func (s *Session) LastRun() string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.lastRun
}

// drain delivers queued lines until ctx is cancelled. Lines it has taken
// from the queue but not delivered are left in s.leftover.
func (s *Session) drain(ctx context.Context, q *process.Queue, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		lines := q.Drain()
		for i, line := range lines {
			if ctx.Err() != nil {
				s.leftover = lines[i:]
				return
			}
			s.dispatch(ctx, line)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.Ready():
		case <-ticker.C:
		}
	}
}

func (s *Session) dispatch(ctx context.Context, line string) {
	ev := s.codec.Decode(line)
	switch ev.Kind {
	case protocol.KindMessage:
		s.listener.Message(ctx, ev.Text)
	case protocol.KindTimer:
		s.armTimer(ev.Seconds)
		s.log.Debug("timer directive", "seconds", ev.Seconds)
	case protocol.KindIgnored:
		s.log.Debug("ignoring malformed directive", "line", line)
	case protocol.KindUnknown:
		s.appendLog(line + protocol.UnknownTag)
		s.listener.Output(ctx, line)
	default:
		s.appendLog(line)
		s.listener.Output(ctx, line)
	}
}

// collect records a line left over at stop. Nothing is delivered and
// directives have no effect.
func (s *Session) collect(line string) {
	ev := s.codec.Decode(line)
	switch ev.Kind {
	case protocol.KindOutput:
		s.appendLog(line)
	case protocol.KindUnknown:
		s.appendLog(line + protocol.UnknownTag)
	case protocol.KindMessage:
		s.log.Debug("dropping message emitted during stop", "text", ev.Text)
	}
}

func (s *Session) appendLog(line string) {
	s.logMu.Lock()
	s.output.WriteString(line)
	s.output.WriteByte('\n')
	s.logMu.Unlock()
}
