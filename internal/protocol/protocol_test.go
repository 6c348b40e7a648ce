package protocol

import (
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	c := Codec{Messages: true}

	tests := []struct {
		name string
		line string
		want Event
	}{
		{"plain", "build ok", Event{Kind: KindOutput, Text: "build ok"}},
		{"empty", "", Event{Kind: KindOutput, Text: ""}},
		{"message", "/message hello", Event{Kind: KindMessage, Text: "hello "}},
		{"message trims one space", "/message  two", Event{Kind: KindMessage, Text: " two "}},
		{"message empty", "/message", Event{Kind: KindMessage, Text: " "}},
		{"timer", "/timer 5", Event{Kind: KindTimer, Seconds: 5}},
		{"timer padded", "/timer   7  ", Event{Kind: KindTimer, Seconds: 7}},
		{"timer zero", "/timer 0", Event{Kind: KindTimer, Seconds: 0}},
		{"timer negative", "/timer -3", Event{Kind: KindTimer, Seconds: -3}},
		{"timer not numeric", "/timer soon", Event{Kind: KindIgnored, Text: "/timer soon"}},
		{"timer missing value", "/timer", Event{Kind: KindIgnored, Text: "/timer"}},
		{"unknown directive", "/reboot now", Event{Kind: KindUnknown, Text: "/reboot now"}},
		{"message without space", "/messagehello", Event{Kind: KindMessage, Text: "hello "}},
		{"message prefix of longer word", "/messages", Event{Kind: KindMessage, Text: "s "}},
		{"timer without space", "/timer5", Event{Kind: KindTimer, Seconds: 5}},
		{"slash inside line", "path is /tmp", Event{Kind: KindOutput, Text: "path is /tmp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Decode(tt.line)
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestDecode_WithoutMessages(t *testing.T) {
	c := Codec{}

	if got := c.Decode("/message hi"); got.Kind != KindUnknown || got.Text != "/message hi" {
		t.Errorf("expected unknown directive, got %+v", got)
	}
	if got := c.Decode("/other"); got.Kind != KindUnknown {
		t.Errorf("expected unknown directive, got %+v", got)
	}
	if got := c.Decode("plain"); got.Kind != KindOutput {
		t.Errorf("expected plain output, got %+v", got)
	}
	if got := c.Decode("/timer 2"); got.Kind != KindTimer || got.Seconds != 2 {
		t.Errorf("expected timer directive, got %+v", got)
	}
}

func TestEncode(t *testing.T) {
	if got := Ping(); !reflect.DeepEqual(got, []string{"ping"}) {
		t.Errorf("Ping() = %q", got)
	}
	if got := Quit(); !reflect.DeepEqual(got, []string{"quit"}) {
		t.Errorf("Quit() = %q", got)
	}
	if got := Timer(); !reflect.DeepEqual(got, []string{"timer"}) {
		t.Errorf("Timer() = %q", got)
	}
}

func TestMessage_TruncatesEmbeddedLines(t *testing.T) {
	got := Message("alice\nquit", "hi there\r\nquit\nping")
	want := []string{"message", "alice", "hi there"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestFirstLine(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"one":        "one",
		"one\ntwo":   "one",
		"one\r\ntwo": "one",
		"\nleading":  "",
		"trailing\n": "trailing",
	}
	for in, want := range tests {
		if got := FirstLine(in); got != want {
			t.Errorf("FirstLine(%q) = %q, want %q", in, got, want)
		}
	}
}
