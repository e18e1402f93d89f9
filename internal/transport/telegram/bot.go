package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/onegate/onegate/internal/gateway"
	. "github.com/onegate/onegate/internal/logging"
)

// Bot is the Telegram front end. It normalizes updates into gateway
// messages and registers one command handler per catalog model.
type Bot struct {
	bot     *tele.Bot
	gateway *gateway.Gateway
	channel *Channel

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot creates the bot without a gateway, for two-phase wiring: the
// channel is needed to build the gateway, the gateway to handle messages.
// Call AttachGateway before Start.
func NewBot(token string) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	L_debug("telegram: bot created", "username", bot.Me.Username, "id", bot.Me.ID)

	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		bot:     bot,
		channel: NewChannel(bot),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Channel returns the transport adapter backed by this bot.
func (b *Bot) Channel() *Channel { return b.channel }

// AttachGateway completes two-phase wiring and registers handlers.
func (b *Bot) AttachGateway(gw *gateway.Gateway) {
	b.gateway = gw
	b.setupHandlers()
}

// Start begins long polling. Blocks until Stop.
func (b *Bot) Start() {
	L_info("telegram: starting bot", "username", b.bot.Me.Username)
	b.bot.Start()
}

// Stop halts polling.
func (b *Bot) Stop() {
	b.cancel()
	b.bot.Stop()
}

func (b *Bot) setupHandlers() {
	b.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("Hello! Send me a message to chat, or /models to see the available models.")
	})

	b.bot.Handle("/help", func(c tele.Context) error {
		help := `*Commands*

/models - List available models and their commands
/last - Show the last response again
/stop - Reset the conversation
/help - Show this help

Send a message to chat with the current model, or start it with a model command or shortcut prefix.`
		return c.Send(help, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	})

	b.bot.Handle("/models", func(c tele.Context) error {
		return c.Send(b.gateway.ModelListing(), &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	})

	b.bot.Handle("/last", func(c tele.Context) error {
		return c.Send(b.gateway.LastReply(c.Chat().ID))
	})

	b.bot.Handle("/stop", func(c tele.Context) error {
		b.gateway.Reset(b.ctx, c.Chat().ID)
		return c.Send("Conversation reset.")
	})

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnDocument, b.handleDocument)
}

// handleText routes free-form text, model commands and shortcut prefixes.
// Unregistered /commands also land here and resolve through the registry.
func (b *Bot) handleText(c tele.Context) error {
	text := b.stripMention(c.Text())
	msg := &gateway.InboundMessage{
		ChatID:        c.Chat().ID,
		MessageID:     c.Message().ID,
		Text:          text,
		ReplyDocument: b.replyDocument(c),
	}
	b.gateway.HandleMessage(b.ctx, msg)
	return nil
}

// handleDocument handles PDF attachments; the caption is the prompt.
func (b *Bot) handleDocument(c tele.Context) error {
	doc := c.Message().Document
	if doc == nil {
		return nil
	}

	prompt := c.Message().Caption
	if prompt == "" {
		prompt = "Summarize this context"
	}

	msg := &gateway.InboundMessage{
		ChatID:    c.Chat().ID,
		MessageID: c.Message().ID,
		Text:      prompt,
		Document: &gateway.Document{
			FileName: doc.FileName,
			MIMEType: doc.MIME,
			URL:      b.fileURL(doc.FileID),
		},
	}
	b.gateway.HandleMessage(b.ctx, msg)
	return nil
}

// replyDocument extracts a PDF attached to the replied-to message, if any.
func (b *Bot) replyDocument(c tele.Context) *gateway.Document {
	reply := c.Message().ReplyTo
	if reply == nil || reply.Document == nil {
		return nil
	}
	return &gateway.Document{
		FileName: reply.Document.FileName,
		MIMEType: reply.Document.MIME,
		URL:      b.fileURL(reply.Document.FileID),
	}
}

// stripMention removes a leading @botname so a mention reads as a plain
// prompt for the session's current model.
func (b *Bot) stripMention(text string) string {
	mention := "@" + b.bot.Me.Username
	if strings.HasPrefix(text, mention) {
		return strings.TrimSpace(strings.TrimPrefix(text, mention))
	}
	return text
}

// fileURL resolves a Telegram file id to its download URL.
func (b *Bot) fileURL(fileID string) string {
	file, err := b.bot.FileByID(fileID)
	if err != nil {
		L_warn("telegram: file lookup failed", "fileID", fileID, "error", err)
		return ""
	}
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.bot.Token, file.FilePath)
}
