// Package build updates the managed program's source tree from git and
// rebuilds it.
package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/zette-dev/warden/internal/config"
)

const maxErrOutput = 2048

// runFunc runs a command in dir and returns its combined output.
type runFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Runner implements the build/update collaborator on top of git and a
// configured build command.
type Runner struct {
	cfg config.BuildConfig
	run runFunc
}

func New(cfg config.BuildConfig) *Runner {
	return &Runner{cfg: cfg, run: runCommand}
}

// Update fetches the configured remote and checks out remote/branch. It
// does nothing when git is disabled.
func (r *Runner) Update(ctx context.Context) error {
	git := r.cfg.Git
	if !git.Enabled {
		return nil
	}

	if err := r.exec(ctx, "git", "fetch", git.Remote); err != nil {
		return err
	}
	return r.exec(ctx, "git", "checkout", git.Remote+"/"+git.Branch)
}

// Build runs Update first when auto-update is on, then the build command.
// A failed update is logged and the current tree is built.
func (r *Runner) Build(ctx context.Context) error {
	if r.cfg.Git.AutoUpdate {
		r.tryUpdate(ctx)
	}
	return r.compile(ctx)
}

// Rebuild runs Update and then the build command, whatever auto-update is
// set to. A failed update is logged and the current tree is built.
func (r *Runner) Rebuild(ctx context.Context) error {
	r.tryUpdate(ctx)
	return r.compile(ctx)
}

func (r *Runner) tryUpdate(ctx context.Context) {
	if err := r.Update(ctx); err != nil {
		slog.Warn("update failed, building current tree", "error", err)
	}
}

func (r *Runner) compile(ctx context.Context) error {
	if len(r.cfg.Command) == 0 {
		return nil
	}
	return r.exec(ctx, r.cfg.Command[0], r.cfg.Command[1:]...)
}

func (r *Runner) exec(ctx context.Context, name string, args ...string) error {
	slog.Info("running", "cmd", name, "args", args, "dir", r.cfg.Dir)

	out, err := r.run(ctx, r.cfg.Dir, name, args...)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, tail(out))
	}
	slog.Debug("command finished", "cmd", name, "output", string(out))
	return nil
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

func tail(out []byte) string {
	out = bytes.TrimSpace(out)
	if len(out) > maxErrOutput {
		out = out[len(out)-maxErrOutput:]
	}
	return string(out)
}
