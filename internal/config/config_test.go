package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
process:
  command: java
  args: ["-jar", "target/app.jar"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"edit interval", cfg.Telegram.EditInterval, 2 * time.Second},
		{"reply ttl", cfg.Telegram.ReplyTTL, 2 * time.Minute},
		{"process dir", cfg.Process.Dir, "."},
		{"shutdown timeout", cfg.Process.ShutdownTimeout, 5 * time.Second},
		{"drain interval", cfg.Session.DrainInterval, time.Second},
		{"timer unit", cfg.Session.TimerUnit, time.Second},
		{"messages enabled", cfg.Session.DisableMessages, false},
		{"build dir", cfg.Build.Dir, "."},
		{"build command", cfg.Build.Command, []string{"mvn", "package", "-DskipTests"}},
		{"git remote", cfg.Build.Git.Remote, "origin"},
		{"git branch", cfg.Build.Git.Branch, "main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("WARDEN_TEST_TOKEN", "123:abc")
	path := writeConfig(t, `
telegram:
  bot_token: ${WARDEN_TEST_TOKEN}
  edit_interval: 500ms
process:
  command: ./run.sh
session:
  disable_messages: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("expected expanded token, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.EditInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms edit interval, got %v", cfg.Telegram.EditInterval)
	}
	if !cfg.Session.DisableMessages {
		t.Error("expected messages to be disabled")
	}
}

func TestLoad_MissingCommand(t *testing.T) {
	path := writeConfig(t, "telegram:\n  bot_token: x\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing process.command")
	}
	if !strings.Contains(err.Error(), "process.command") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDirFor(t *testing.T) {
	p := ProcessConfig{
		Dir:      "/srv/default",
		ChatDirs: map[string]string{"-1001": "/srv/team"},
	}

	if got := p.DirFor(-1001); got != "/srv/team" {
		t.Errorf("expected mapped dir, got %q", got)
	}
	if got := p.DirFor(42); got != "/srv/default" {
		t.Errorf("expected default dir, got %q", got)
	}
}
