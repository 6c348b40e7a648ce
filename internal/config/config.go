package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Process  ProcessConfig  `yaml:"process"`
	Session  SessionConfig  `yaml:"session"`
	Build    BuildConfig    `yaml:"build"`
}

type TelegramConfig struct {
	BotToken     string        `yaml:"bot_token"`
	EditInterval time.Duration `yaml:"edit_interval"`
	ReplyTTL     time.Duration `yaml:"reply_ttl"`
}

// ProcessConfig describes the managed child. ChatDirs maps a chat ID
// (as a decimal string) to the working directory of that chat's child.
type ProcessConfig struct {
	Command         string            `yaml:"command"`
	Args            []string          `yaml:"args"`
	Dir             string            `yaml:"dir"`
	Env             []string          `yaml:"env"`
	ChatDirs        map[string]string `yaml:"chat_dirs"`
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"`
}

type SessionConfig struct {
	DrainInterval   time.Duration `yaml:"drain_interval"`
	TimerUnit       time.Duration `yaml:"timer_unit"`
	DisableMessages bool          `yaml:"disable_messages"`
}

type BuildConfig struct {
	Dir     string    `yaml:"dir"`
	Command []string  `yaml:"command"`
	Git     GitConfig `yaml:"git"`
}

type GitConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Remote     string `yaml:"remote"`
	Branch     string `yaml:"branch"`
	AutoUpdate bool   `yaml:"auto_update"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables in the YAML
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DirFor returns the working directory for a chat's child process.
func (p ProcessConfig) DirFor(chatID int64) string {
	if dir, ok := p.ChatDirs[strconv.FormatInt(chatID, 10)]; ok && dir != "" {
		return dir
	}
	return p.Dir
}

func (c *Config) validate() error {
	if c.Process.Command == "" {
		return fmt.Errorf("process.command is required")
	}
	if c.Session.DrainInterval < 0 {
		return fmt.Errorf("session.drain_interval must not be negative")
	}
	if c.Session.TimerUnit < 0 {
		return fmt.Errorf("session.timer_unit must not be negative")
	}

	c.ApplyDefaults()
	return nil
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Telegram.EditInterval == 0 {
		c.Telegram.EditInterval = 2 * time.Second
	}
	if c.Telegram.ReplyTTL == 0 {
		c.Telegram.ReplyTTL = 2 * time.Minute
	}
	if c.Process.Dir == "" {
		c.Process.Dir = "."
	}
	if c.Process.ShutdownTimeout == 0 {
		c.Process.ShutdownTimeout = 5 * time.Second
	}
	if c.Session.DrainInterval == 0 {
		c.Session.DrainInterval = time.Second
	}
	if c.Session.TimerUnit == 0 {
		c.Session.TimerUnit = time.Second
	}
	if c.Build.Dir == "" {
		c.Build.Dir = c.Process.Dir
	}
	if len(c.Build.Command) == 0 {
		c.Build.Command = []string{"mvn", "package", "-DskipTests"}
	}
	if c.Build.Git.Remote == "" {
		c.Build.Git.Remote = "origin"
	}
	if c.Build.Git.Branch == "" {
		c.Build.Git.Branch = "main"
	}
}
