// Package control implements the operator-facing approval channel on the
// Telegram Bot API via long polling. Drafts are published here as messages
// with inline buttons; button presses and operator replies flow back to a
// Handler.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// Button is one inline button: a label and the callback token it carries.
type Button struct {
	Label string
	Data  string
}

// ButtonPress is an inline-button press received from the control channel.
type ButtonPress struct {
	CallbackID string // for answering the press
	Data       string // callback token
	FromID     int64
	ChatID     int64 // chat holding the pressed bubble
	MessageID  int   // the pressed bubble
}

// TextMessage is a plain operator message on the control channel.
type TextMessage struct {
	FromID int64
	ChatID int64
	Text   string
}

// Handler consumes control-channel events. Each event is dispatched on its
// own goroutine, so ordering across events is not guaranteed.
type Handler interface {
	HandleButtonPress(ctx context.Context, press ButtonPress)
	HandleTextMessage(ctx context.Context, msg TextMessage)
}

// Channel wraps a Telegram bot for sending drafts and polling decisions.
type Channel struct {
	bot     *telego.Bot
	handler Handler

	// Outbound sends are paced to stay under the Bot API per-chat limit.
	limiter *rate.Limiter

	pollCancel context.CancelFunc
	pollDone   chan struct{}
	inflight   sync.WaitGroup
}

// New creates a control channel for the given bot token.
func New(token string) (*Channel, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("create control bot: %w", err)
	}

	return &Channel{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}, nil
}

// SetHandler installs the event consumer. Must be called before Start.
func (c *Channel) SetHandler(h Handler) {
	c.handler = h
}

// Start begins long polling for updates. Each received update is handed to
// the handler on a fresh goroutine; the poller never blocks on handling.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting control bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"callback_query",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("control updates channel closed")
					return
				}
				c.dispatch(pollCtx, update)
			}
		}
	}()

	return nil
}

// dispatch classifies one update and hands it to the handler on its own
// goroutine. Unknown update kinds are ignored.
func (c *Channel) dispatch(ctx context.Context, update telego.Update) {
	switch {
	case update.CallbackQuery != nil:
		press, ok := pressFromCallback(update.CallbackQuery)
		if !ok {
			slog.Debug("callback query without message or data ignored", "update_id", update.UpdateID)
			return
		}
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.handler.HandleButtonPress(ctx, press)
		}()

	case update.Message != nil && update.Message.From != nil:
		msg := TextMessage{
			FromID: update.Message.From.ID,
			ChatID: update.Message.Chat.ID,
			Text:   update.Message.Text,
		}
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.handler.HandleTextMessage(ctx, msg)
		}()

	default:
		slog.Debug("control update skipped", "update_id", update.UpdateID)
	}
}

// pressFromCallback extracts a ButtonPress from a raw callback query.
// Queries without data or an accessible message cannot be acted on.
func pressFromCallback(cb *telego.CallbackQuery) (ButtonPress, bool) {
	if cb.Data == "" || cb.Message == nil {
		return ButtonPress{}, false
	}
	return ButtonPress{
		CallbackID: cb.ID,
		Data:       cb.Data,
		FromID:     cb.From.ID,
		ChatID:     cb.Message.GetChat().ID,
		MessageID:  cb.Message.GetMessageID(),
	}, true
}

// Stop cancels polling, waits for the poll goroutine to exit and for
// in-flight handler goroutines to finish.
func (c *Channel) Stop() {
	slog.Info("stopping control bot")
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("control polling goroutine did not exit within timeout")
		}
	}
	c.inflight.Wait()
}

// SendMessageWithButtons publishes text with inline-button rows and returns
// the new message's id.
func (c *Channel) SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	params := tu.Message(tu.ID(chatID), text)
	params.ParseMode = telego.ModeMarkdown
	if len(rows) > 0 {
		keyboard := make([][]telego.InlineKeyboardButton, len(rows))
		for i, row := range rows {
			buttons := make([]telego.InlineKeyboardButton, len(row))
			for j, b := range row {
				buttons[j] = telego.InlineKeyboardButton{Text: b.Label, CallbackData: b.Data}
			}
			keyboard[i] = buttons
		}
		params.ReplyMarkup = &telego.InlineKeyboardMarkup{InlineKeyboard: keyboard}
	}

	msg, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send control message: %w", err)
	}
	return msg.MessageID, nil
}

// EditMessageText replaces the text of an existing control message.
func (c *Channel) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Text:      text,
		ParseMode: telego.ModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("edit control message %d: %w", messageID, err)
	}
	return nil
}

// AnswerCallbackQuery acknowledges a button press, clearing its loading
// indicator. text is optional.
func (c *Channel) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// IsRateLimited reports whether err is a Bot API 429 response. There is no
// built-in retry; callers decide what to abandon.
func IsRateLimited(err error) bool {
	var apiErr *telegoapi.Error
	return errors.As(err, &apiErr) && apiErr.ErrorCode == http.StatusTooManyRequests
}
