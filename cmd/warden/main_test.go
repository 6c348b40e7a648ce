package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zette-dev/warden/internal/build"
	"github.com/zette-dev/warden/internal/config"
	"github.com/zette-dev/warden/internal/session"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{" warning ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLevel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLevel(%q): %v", tt.in, err)
			continue
		}
		if got.Level() != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got.Level(), tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("debug", "json", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Debug("loaded", "bot_token", "123:abc", "chat_id", 7)
	out := buf.String()
	if strings.Contains(out, "123:abc") {
		t.Errorf("token leaked into log: %s", out)
	}
	if !strings.Contains(out, `"chat_id":7`) || !strings.Contains(out, redactedValue) {
		t.Errorf("unexpected log line: %s", out)
	}

	if _, err := newLogger("info", "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFlagOrEnv(t *testing.T) {
	t.Setenv("WARDEN_TEST_KEY", "from-env")

	if got := flagOrEnv("from-flag", "WARDEN_TEST_KEY", "fallback"); got != "from-flag" {
		t.Errorf("got %q", got)
	}
	if got := flagOrEnv("", "WARDEN_TEST_KEY", "fallback"); got != "from-env" {
		t.Errorf("got %q", got)
	}
	if got := flagOrEnv("", "WARDEN_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	content := `
process:
  command: "true"
build:
  dir: ` + dir + `
  command: ["sh", "-c", "echo built > out.txt"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", path, "build"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out.String(), "build ok") {
		t.Errorf("output = %q", out.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "built" {
		t.Errorf("build command did not run: %q, %v", data, err)
	}
}

func TestServeRequiresToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	if err := os.WriteFile(path, []byte("process:\n  command: \"true\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", path, "serve", "--skip-build"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("expected bot_token error, got %v", err)
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunConsole(t *testing.T) {
	cfg := &config.Config{Process: config.ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", "while read l; do echo got $l; done"},
	}}
	cfg.ApplyDefaults()

	out := &syncBuffer{}
	term := newTerminal(out)
	reg := newRegistry(cfg, build.New(cfg.Build), term.listener)
	defer reg.Shutdown()

	inR, inW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- runConsole(context.Background(), inR, term, reg.Get(consoleChatID, true), "tester")
	}()

	if _, err := io.WriteString(inW, "/start\n/ping\n"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "got ping") {
		if time.Now().After(deadline) {
			t.Fatalf("no child output, got %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(out.String(), session.TextOnline) {
		t.Errorf("missing start notice in %q", out.String())
	}

	inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runConsole: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runConsole did not return after EOF")
	}
}
