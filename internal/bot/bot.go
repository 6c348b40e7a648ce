package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/zette-dev/warden/internal/config"
	"github.com/zette-dev/warden/internal/session"
)

const (
	maxMessageLen = 4096
	// Room for the <pre> wrapper and a truncation marker.
	maxOutputLen = maxMessageLen - 64
	apiTimeout   = 10 * time.Second
)

// Sessions is the interface the bot uses to find a chat's session.
type Sessions interface {
	Get(chatID int64, create bool) *session.Session
}

// api is the part of the Telegram client the bot calls.
type api interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// Bot wraps the Telegram bot and routes chat commands to sessions.
type Bot struct {
	bot      *bot.Bot
	api      api
	sessions Sessions
	cfg      config.TelegramConfig

	mu       sync.Mutex
	consoles map[int64]*console
}

// New creates a Telegram bot. Sessions must be attached with SetSessions
// before Start.
func New(cfg config.TelegramConfig) (*Bot, error) {
	b := &Bot{
		cfg:      cfg,
		consoles: make(map[int64]*console),
	}

	opts := []bot.Option{
		bot.WithMiddlewares(b.ignoreBots),
		bot.WithDefaultHandler(b.handleMessage),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b.bot = tgBot
	b.api = tgBot
	return b, nil
}

// SetSessions attaches the session registry.
func (b *Bot) SetSessions(s Sessions) { b.sessions = s }

// Start registers the command list and begins long polling. Blocks until
// ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	if _, err := b.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: botCommands}); err != nil {
		slog.Warn("set bot commands failed", "error", err)
	}

	slog.Info("telegram bot starting long poll")
	b.bot.Start(ctx)
}

var botCommands = []models.BotCommand{
	{Command: "start", Description: "Start the bot"},
	{Command: "stop", Description: "Stop the bot"},
	{Command: "ping", Description: "Send the 'ping' command to the bot"},
	{Command: "quit", Description: "Send the 'quit' command to the bot"},
	{Command: "update", Description: "Update the bot"},
	{Command: "message", Description: "Send the 'message' command to the bot"},
	{Command: "help", Description: "List commands"},
}

// Listener returns the session listener for a chat: output refreshes the
// chat's console message and relayed messages are posted to the chat.
func (b *Bot) Listener(chatID int64) session.Listener {
	return session.ListenerFuncs{
		OnOutput: func(ctx context.Context, _ string) {
			b.console(chatID).refresh(ctx)
		},
		OnMessage: func(ctx context.Context, text string) {
			if _, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   text,
			}); err != nil {
				slog.Error("relay message failed", "chat_id", chatID, "error", err)
			}
		},
	}
}

// ignoreBots drops updates that carry no message or come from a bot.
func (b *Bot) ignoreBots(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tg *bot.Bot, update *models.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}
		if update.Message.From.IsBot {
			return
		}
		next(ctx, tg, update)
	}
}

// handleMessage processes an incoming text message.
func (b *Bot) handleMessage(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	chatID := update.Message.Chat.ID
	cmd := session.ParseCommand(update.Message.Text)
	sess := b.sessions.Get(chatID, true)

	reply, err := sess.Execute(ctx, cmd, senderName(update.Message.From))
	if err != nil {
		slog.Error("command failed", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, "Something went wrong: "+err.Error(), "")
		return
	}

	if reply.Started() {
		sent, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   reply.Notice,
		})
		if err != nil {
			slog.Error("send start notice failed", "chat_id", chatID, "error", err)
		} else {
			b.console(chatID).reset(sent.ID)
		}
	}

	switch {
	case reply.Output:
		b.reply(ctx, chatID, renderOutput(reply.Text), models.ParseModeHTML)
	case reply.Text != "":
		b.reply(ctx, chatID, reply.Text, "")
	}
}

// reply sends a message that is deleted after the configured TTL.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, mode models.ParseMode) {
	sent, err := b.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: mode,
	})
	if err != nil {
		slog.Error("send reply failed", "chat_id", chatID, "error", err)
		return
	}
	if b.cfg.ReplyTTL <= 0 {
		return
	}

	msgID := sent.ID
	time.AfterFunc(b.cfg.ReplyTTL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
		defer cancel()
		if _, err := b.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
			ChatID:    chatID,
			MessageID: msgID,
		}); err != nil {
			slog.Debug("delete reply failed", "chat_id", chatID, "error", err)
		}
	})
}

func (b *Bot) console(chatID int64) *console {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.consoles[chatID]
	if !ok {
		c = &console{bot: b, chatID: chatID}
		b.consoles[chatID] = c
	}
	return c
}

// console is the message a chat's output log is rendered into. Edits are
// throttled to one per edit interval.
type console struct {
	bot    *Bot
	chatID int64

	mu       sync.Mutex
	msgID    int
	lastEdit time.Time
	lastText string
	pending  *time.Timer
}

// reset points the console at a new message.
func (c *console) reset(msgID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.msgID = msgID
	c.lastText = ""
	c.lastEdit = time.Time{}
}

func (c *console) refresh(ctx context.Context) {
	c.mu.Lock()
	if c.msgID == 0 || c.pending != nil {
		c.mu.Unlock()
		return
	}
	wait := c.bot.cfg.EditInterval - time.Since(c.lastEdit)
	if wait > 0 {
		c.pending = time.AfterFunc(wait, func() {
			ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
			defer cancel()
			c.flush(ctx, true)
		})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.flush(ctx, false)
}

func (c *console) flush(ctx context.Context, deferred bool) {
	sess := c.bot.sessions.Get(c.chatID, false)
	if sess == nil {
		return
	}
	text := renderOutput(sess.Output())

	c.mu.Lock()
	if deferred {
		c.pending = nil
	}
	msgID := c.msgID
	if msgID == 0 || text == c.lastText {
		c.mu.Unlock()
		return
	}
	c.lastText = text
	c.lastEdit = time.Now()
	c.mu.Unlock()

	_, err := c.bot.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    c.chatID,
		MessageID: msgID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		slog.Debug("edit console failed", "chat_id", c.chatID, "error", err)
	}
}

// renderOutput formats captured output as preformatted HTML, keeping the
// tail when it is too long for one message.
func renderOutput(out string) string {
	if strings.TrimSpace(out) == "" {
		return "<i>(no output)</i>"
	}
	prefix := ""
	if utf8.RuneCountInString(out) > maxOutputLen {
		out = tailRunes(out, maxOutputLen)
		prefix = "...\n"
	}
	return "<pre>" + html.EscapeString(prefix+out) + "</pre>"
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	skip := count - n
	i := 0
	for j := range s {
		if i == skip {
			return s[j:]
		}
		i++
	}
	return ""
}

func senderName(u *models.User) string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return fmt.Sprintf("user%d", u.ID)
	}
	return name
}
