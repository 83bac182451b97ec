package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// Telegram allows about 30 messages per second per bot.
const defaultMessagesPerSecond = 25

// Sender delivers plain text messages through the Telegram Bot API. Sends are
// paced by a shared limiter so operator broadcasts stay under the API limit.
type Sender struct {
	bot     *bot.Bot
	limiter *rate.Limiter
}

// Option configures a Sender.
type Option func(*options)

type options struct {
	serverURL string
	perSecond float64
}

// WithServerURL points the bot at a different API server.
func WithServerURL(u string) Option {
	return func(o *options) { o.serverURL = u }
}

// WithRate overrides the message rate limit.
func WithRate(perSecond float64) Option {
	return func(o *options) { o.perSecond = perSecond }
}

func NewSender(token string, opts ...Option) (*Sender, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not configured")
	}
	o := options{perSecond: defaultMessagesPerSecond}
	for _, fn := range opts {
		fn(&o)
	}

	botOpts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(10*time.Second, &http.Client{Timeout: 15 * time.Second}),
	}
	if o.serverURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(o.serverURL))
	}
	b, err := bot.New(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Sender{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(o.perSecond), 1),
	}, nil
}

func NewSenderFromEnv() (*Sender, error) {
	return NewSender(env.GetEnv("TELEGRAM_BOT_TOKEN", ""))
}

// SendMessage sends text to chatID, waiting for the rate limiter first.
func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}
