// Package protocol implements the line protocol spoken over a managed
// child's stdin and stdout.
//
// Lines written by the child are either plain output or directives. A
// directive starts with DirectiveMarker:
//
//	/message <text>   relay <text> as a chat message
//	/timer <seconds>  arm (seconds > 0) or cancel (seconds <= 0) the session timer
//
// Commands written to the child are single tokens on their own line, except
// message which is followed by a sender line and a text line.
package protocol

import (
	"strconv"
	"strings"
)

const (
	DirectiveMarker  = "/"
	MessageDirective = "/message"
	TimerDirective   = "/timer"

	// UnknownTag is appended to log entries for unrecognized directives.
	UnknownTag = " [unknown command]"
)

// Command names written to the child.
const (
	CmdPing    = "ping"
	CmdQuit    = "quit"
	CmdMessage = "message"
	CmdTimer   = "timer"
)

// Kind classifies a decoded line.
type Kind int

const (
	KindOutput  Kind = iota // Plain output
	KindMessage             // Chat message to relay
	KindTimer               // Timer arm or cancel
	KindUnknown             // Unrecognized directive, treated as output
	KindIgnored             // Malformed directive, dropped
)

func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindMessage:
		return "message"
	case KindTimer:
		return "timer"
	case KindUnknown:
		return "unknown"
	case KindIgnored:
		return "ignored"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Event is one decoded line.
type Event struct {
	Kind    Kind
	Text    string // Output line, or message text with its trailing space
	Seconds int    // Timer duration; <= 0 means cancel
}

// Codec decodes child output. Messages selects the message-capable variant;
// without it /message lines are unknown directives.
type Codec struct {
	Messages bool
}

// Decode classifies a single line (without its terminator).
func (c Codec) Decode(line string) Event {
	if c.Messages {
		if rest, ok := strings.CutPrefix(line, MessageDirective); ok {
			rest = strings.TrimPrefix(rest, " ")
			return Event{Kind: KindMessage, Text: rest + " "}
		}
	}

	if rest, ok := strings.CutPrefix(line, TimerDirective); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Event{Kind: KindIgnored, Text: line}
		}
		return Event{Kind: KindTimer, Seconds: n}
	}

	if strings.HasPrefix(line, DirectiveMarker) {
		return Event{Kind: KindUnknown, Text: line}
	}

	return Event{Kind: KindOutput, Text: line}
}

// Encode renders a command as the lines to write to the child. Every
// argument is cut to its first line so a caller cannot inject commands.
func Encode(name string, args ...string) []string {
	lines := make([]string, 0, 1+len(args))
	lines = append(lines, FirstLine(name))
	for _, a := range args {
		lines = append(lines, FirstLine(a))
	}
	return lines
}

func Ping() []string  { return Encode(CmdPing) }
func Quit() []string  { return Encode(CmdQuit) }
func Timer() []string { return Encode(CmdTimer) }

// Message encodes a chat message from sender.
func Message(sender, text string) []string {
	return Encode(CmdMessage, sender, text)
}

// FirstLine returns s up to its first line break.
func FirstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
