package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/user"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zette-dev/warden/internal/build"
	"github.com/zette-dev/warden/internal/session"
)

// consoleChatID is the session id used by the local console.
const consoleChatID = 0

func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Attach the terminal to a local session",
		Long: `Read chat commands from stdin and print the program's output.
Lines starting with / are commands (/start, /stop, /ping, /quit, /update,
/message <text>, /help); anything else is sent as a message.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			term := newTerminal(cmd.OutOrStdout())
			reg := newRegistry(cfg, build.New(cfg.Build), term.listener)
			defer reg.Shutdown()

			return runConsole(cmd.Context(), cmd.InOrStdin(), term, reg.Get(consoleChatID, true), consoleSender())
		},
	}
}

func runConsole(ctx context.Context, in io.Reader, term *terminal, sess *session.Session, sender string) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := sess.Execute(ctx, session.ParseCommand(line), sender)
		if err != nil {
			term.errorf("%v", err)
			continue
		}
		if reply.Started() {
			term.notice(reply.Notice)
		}
		switch {
		case reply.Output:
			// Output was streamed as it arrived.
			term.notice(fmt.Sprintf("stopped after %d lines of output", strings.Count(reply.Text, "\n")))
		case reply.Text != "":
			term.notice(reply.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func consoleSender() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "console"
}

// terminal serializes writes from the input loop and session callbacks.
type terminal struct {
	mu  sync.Mutex
	out io.Writer

	noticeColor  *color.Color
	messageColor *color.Color
	errorColor   *color.Color
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{
		out:          out,
		noticeColor:  color.New(color.FgYellow),
		messageColor: color.New(color.FgCyan, color.Bold),
		errorColor:   color.New(color.FgRed),
	}
}

func (t *terminal) listener(int64) session.Listener {
	return session.ListenerFuncs{
		OnOutput:  func(_ context.Context, line string) { t.print(line) },
		OnMessage: func(_ context.Context, text string) { t.message(text) },
	}
}

func (t *terminal) print(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, text)
}

func (t *terminal) notice(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noticeColor.Fprintln(t.out, "* "+text)
}

func (t *terminal) message(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageColor.Fprintln(t.out, "> "+text)
}

func (t *terminal) errorf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorColor.Fprintf(t.out, "! "+format+"\n", args...)
}
