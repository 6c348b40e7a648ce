package session

import (
	"context"
	"strings"
	"unicode"

	"github.com/zette-dev/warden/internal/process"
)

// Replies sent back to the chat.
const (
	TextOnline     = "The bot is online now"
	TextRestarted  = "The bot was restarted"
	TextOffline    = "The bot is offline now"
	TextUpdated    = "The bot was updated"
	TextNotRunning = "Use the `/start` command first!"
	TextHelp       = `/start - start or restart the bot
/stop - stop the bot and show its output
/ping - send 'ping' to the bot
/quit - ask the bot to quit
/update - update and rebuild the bot
/message <text> - send a message to the bot
Anything else is sent to the bot as a message.`
)

// Action is a chat command.
type Action int

const (
	ActionMessage Action = iota
	ActionStart
	ActionStop
	ActionPing
	ActionQuit
	ActionUpdate
	ActionHelp
)

// Command is a parsed chat command. Text is the message body for
// ActionMessage.
type Command struct {
	Action Action
	Text   string
}

var commands = map[string]Action{
	"/start":   ActionStart,
	"/stop":    ActionStop,
	"/ping":    ActionPing,
	"/quit":    ActionQuit,
	"/update":  ActionUpdate,
	"/help":    ActionHelp,
	"/message": ActionMessage,
}

// ParseCommand turns chat text into a command. A trailing @botname on the
// command word is ignored. Unrecognized text, slash or not, is a message.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{Action: ActionMessage, Text: text}
	}

	name, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		name, rest = text[:i], strings.TrimSpace(text[i:])
	}
	name, _, _ = strings.Cut(name, "@")

	action, ok := commands[strings.ToLower(name)]
	if !ok {
		return Command{Action: ActionMessage, Text: text}
	}
	return Command{Action: action, Text: rest}
}

// Reply is the result of executing a command. Notice is set when the
// command started the child; Text is the reply to the command itself and
// holds captured output when Output is set.
type Reply struct {
	Notice string
	Text   string
	Output bool
}

// Started reports whether the command started the child.
func (r Reply) Started() bool { return r.Notice != "" }

// Execute runs a chat command against the session. Commands other than
// start, stop, update and help start the child first when it is not
// running.
func (s *Session) Execute(ctx context.Context, cmd Command, sender string) (Reply, error) {
	switch cmd.Action {
	case ActionHelp:
		return Reply{Text: TextHelp}, nil

	case ActionStart:
		res, err := s.Start(ctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Notice: startNotice(res)}, nil

	case ActionStop:
		if !s.IsRunning() {
			return Reply{Text: TextNotRunning}, nil
		}
		return Reply{Text: s.Stop(), Output: true}, nil

	case ActionUpdate:
		if _, err := s.Update(ctx); err != nil {
			return Reply{}, err
		}
		return Reply{Text: TextUpdated}, nil
	}

	var reply Reply
	if !s.IsRunning() {
		res, err := s.Start(ctx)
		if err != nil {
			return Reply{}, err
		}
		reply.Notice = startNotice(res)
	}

	switch cmd.Action {
	case ActionPing:
		s.Ping()
	case ActionQuit:
		s.Quit()
		reply.Text = TextOffline
	case ActionMessage:
		if cmd.Text == "" {
			return reply, nil
		}
		if err := s.Message(sender, cmd.Text); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

func startNotice(res process.StartResult) string {
	if res == process.Restarted {
		return TextRestarted
	}
	return TextOnline
}
