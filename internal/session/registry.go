package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zette-dev/warden/internal/config"
	"github.com/zette-dev/warden/internal/process"
)

// LauncherFactory returns the launcher for a chat's child.
type LauncherFactory func(chatID int64) process.Launcher

// ListenerFactory returns the listener for a chat's session.
type ListenerFactory func(chatID int64) Listener

// StatusInfo describes the current state of a chat's session.
type StatusInfo struct {
	Exists    bool
	Running   bool
	RunID     string
	CreatedAt time.Time
}

// Registry maps chat IDs to sessions. Sessions are created on first use and
// live as long as the registry.
type Registry struct {
	cfg       config.Config
	launchers LauncherFactory
	listeners ListenerFactory
	builder   Builder

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewRegistry creates a session registry. listeners and builder may be nil.
func NewRegistry(cfg config.Config, launchers LauncherFactory, listeners ListenerFactory, builder Builder) *Registry {
	return &Registry{
		cfg:       cfg,
		launchers: launchers,
		listeners: listeners,
		builder:   builder,
		sessions:  make(map[int64]*Session),
	}
}

// Get returns the session for chatID. When none exists it creates an idle
// one if create is set, and returns nil otherwise.
func (r *Registry) Get(chatID int64, create bool) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[chatID]; ok {
		return sess
	}
	if !create {
		return nil
	}

	var listener Listener
	if r.listeners != nil {
		listener = r.listeners(chatID)
	}

	sup := process.NewSupervisor(
		r.launchers(chatID),
		process.WithShutdownTimeout(r.cfg.Process.ShutdownTimeout),
		process.WithLogger(slog.Default().With("chat_id", chatID)),
	)
	sess := newSession(chatID, r.cfg.Session, sup, listener, r.builder)

	r.sessions[chatID] = sess
	slog.Info("session created", "chat_id", chatID)
	return sess
}

// Status returns the current session state for a chat.
func (r *Registry) Status(chatID int64) StatusInfo {
	sess := r.Get(chatID, false)
	if sess == nil {
		return StatusInfo{}
	}
	return StatusInfo{
		Exists:    true,
		Running:   sess.IsRunning(),
		RunID:     sess.RunID(),
		CreatedAt: sess.CreatedAt(),
	}
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every running session. Sessions stay registered.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		if !sess.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			slog.Info("stopping session", "chat_id", sess.ID())
			sess.Stop()
		}(sess)
	}
	wg.Wait()
}
