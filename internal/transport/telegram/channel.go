// Package telegram provides the Telegram adapter for OneGate.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	. "github.com/onegate/onegate/internal/logging"
	"github.com/onegate/onegate/internal/transport"
)

// Channel implements transport.Transport on top of a telebot instance.
type Channel struct {
	bot *tele.Bot
}

// NewChannel wraps an existing bot as a transport.
func NewChannel(bot *tele.Bot) *Channel {
	return &Channel{bot: bot}
}

// Send delivers a new message, falling back to plain text when Markdown
// rendering is rejected (common with special characters in model output).
func (c *Channel) Send(ctx context.Context, chatID int64, text string, opts *transport.SendOptions) (transport.MessageRef, error) {
	chat := &tele.Chat{ID: chatID}

	sendOpts := toSendOptions(opts)
	msg, err := c.bot.Send(chat, text, sendOpts)
	if err != nil && sendOpts.ParseMode != "" {
		L_debug("telegram: markdown send failed, retrying plain", "error", err)
		msg, err = c.bot.Send(chat, text)
	}
	if err != nil {
		return transport.MessageRef{}, mapError(transport.MethodSend, err)
	}

	return transport.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

// Edit replaces the text of a previously sent message.
func (c *Channel) Edit(ctx context.Context, ref transport.MessageRef, text string, opts *transport.SendOptions) error {
	msg := &tele.Message{
		ID:   ref.MessageID,
		Chat: &tele.Chat{ID: ref.ChatID},
	}

	sendOpts := toSendOptions(opts)
	_, err := c.bot.Edit(msg, text, sendOpts)
	if err != nil && sendOpts.ParseMode != "" && !isNotModified(err) {
		L_debug("telegram: markdown edit failed, retrying plain", "error", err)
		_, err = c.bot.Edit(msg, text)
	}
	if err != nil {
		return mapError(transport.MethodEdit, err)
	}
	return nil
}

// Delete removes a message.
func (c *Channel) Delete(ctx context.Context, ref transport.MessageRef) error {
	msg := &tele.Message{
		ID:   ref.MessageID,
		Chat: &tele.Chat{ID: ref.ChatID},
	}
	if err := c.bot.Delete(msg); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func toSendOptions(opts *transport.SendOptions) *tele.SendOptions {
	out := &tele.SendOptions{}
	if opts == nil {
		return out
	}
	if opts.Markdown {
		out.ParseMode = tele.ModeMarkdown
	}
	if opts.ReplyTo != 0 {
		out.ReplyTo = &tele.Message{ID: opts.ReplyTo}
	}
	return out
}

// mapError converts telebot errors into the transport's typed errors.
func mapError(method string, err error) error {
	var flood *tele.FloodError
	if errors.As(err, &flood) {
		return &transport.RateLimitError{
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Method:     method,
		}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		switch {
		case apiErr.Code == 400 && strings.Contains(desc, "message is not modified"):
			return transport.ErrMessageNotModified
		case apiErr.Code == 400 && strings.Contains(desc, "not enough rights"):
			return &transport.PermissionError{Method: method, Reason: apiErr.Description}
		case apiErr.Code == 403:
			return &transport.PermissionError{Method: method, Reason: apiErr.Description}
		}
	}

	return err
}

func isNotModified(err error) bool {
	var apiErr *tele.Error
	return errors.As(err, &apiErr) &&
		apiErr.Code == 400 &&
		strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}
