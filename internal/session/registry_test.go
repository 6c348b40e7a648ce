package session

import (
	"context"
	"sync"
	"testing"

	"github.com/zette-dev/warden/internal/process"
	"github.com/zette-dev/warden/internal/process/mock"
)

func TestRegistry_GetWithoutCreate(t *testing.T) {
	reg := NewRegistry(testConfig(t), func(int64) process.Launcher { return mock.New() }, nil, nil)

	if sess := reg.Get(100, false); sess != nil {
		t.Fatalf("expected nil for unknown chat, got %v", sess)
	}
	if reg.Len() != 0 {
		t.Errorf("lookup without create must not register a session")
	}
	if st := reg.Status(100); st.Exists {
		t.Error("status should report no session")
	}
}

func TestRegistry_ReuseSession(t *testing.T) {
	reg := NewRegistry(testConfig(t), func(int64) process.Launcher { return mock.New() }, nil, nil)

	a := reg.Get(200, true)
	b := reg.Get(200, true)
	if a == nil || a != b {
		t.Fatalf("expected the same session, got %p and %p", a, b)
	}
	if a.IsRunning() {
		t.Error("new session should be idle")
	}
	if reg.Get(200, false) != a {
		t.Error("lookup without create should find the session")
	}
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	var mu sync.Mutex
	factoryCalls := 0
	reg := NewRegistry(testConfig(t), func(int64) process.Launcher {
		mu.Lock()
		factoryCalls++
		mu.Unlock()
		return mock.New()
	}, nil, nil)

	var wg sync.WaitGroup
	got := make([]*Session, 50)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = reg.Get(300, true)
		}(i)
	}
	wg.Wait()

	for i, sess := range got {
		if sess != got[0] {
			t.Fatalf("goroutine %d got a different session", i)
		}
	}
	if factoryCalls != 1 {
		t.Errorf("expected 1 launcher factory call, got %d", factoryCalls)
	}
}

func TestRegistry_IndependentSessions(t *testing.T) {
	launchers := map[int64]*mock.Launcher{400: mock.New(), 500: mock.New()}
	reg := NewRegistry(testConfig(t), func(id int64) process.Launcher { return launchers[id] }, nil, nil)

	ctx := context.Background()
	a := reg.Get(400, true)
	b := reg.Get(500, true)
	if _, err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if _, err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}

	launchers[400].Last().Emit("from a")
	launchers[500].Last().Emit("from b")
	waitFor(t, func() bool { return a.Output() == "from a\n" && b.Output() == "from b\n" })

	a.Stop()
	if !b.IsRunning() {
		t.Error("stopping one session must not affect another")
	}

	st := reg.Status(500)
	if !st.Exists || !st.Running || st.RunID == "" {
		t.Errorf("unexpected status %+v", st)
	}
	reg.Shutdown()
}

func TestRegistry_ListenerPerSession(t *testing.T) {
	recs := map[int64]*recorder{}
	var mu sync.Mutex
	l := mock.New()
	reg := NewRegistry(testConfig(t), func(int64) process.Launcher { return l },
		func(id int64) Listener {
			mu.Lock()
			defer mu.Unlock()
			recs[id] = &recorder{}
			return recs[id]
		}, nil)

	sess := reg.Get(600, true)
	if _, err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	l.Last().Emit("/message hi")
	waitFor(t, func() bool {
		_, msgs := recs[600].snapshot()
		return len(msgs) == 1 && msgs[0] == "hi "
	})
}

func TestRegistry_Shutdown(t *testing.T) {
	var launchers []*mock.Launcher
	var mu sync.Mutex
	reg := NewRegistry(testConfig(t), func(int64) process.Launcher {
		mu.Lock()
		defer mu.Unlock()
		l := mock.New()
		launchers = append(launchers, l)
		return l
	}, nil, nil)

	ctx := context.Background()
	for _, id := range []int64{700, 800} {
		if _, err := reg.Get(id, true).Start(ctx); err != nil {
			t.Fatalf("start %d: %v", id, err)
		}
	}
	reg.Get(900, true) // never started

	reg.Shutdown()

	for i, l := range launchers {
		if n := l.Alive(); n != 0 {
			t.Errorf("launcher %d: %d children alive after shutdown", i, n)
		}
	}
	if reg.Len() != 3 {
		t.Errorf("sessions should stay registered, got %d", reg.Len())
	}
}
