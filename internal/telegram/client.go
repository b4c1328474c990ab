// Package telegram posts HTML messages and photos to a single chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNotConfigured = errors.New("telegram bot token or chat id not configured")

// API is the subset of tgbotapi.BotAPI used for posting.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Client struct {
	api    API
	chatID int64
	retry  RetryConfig
	logger *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New connects to the Bot API. The constructor performs a getMe call, so a
// bad token fails here rather than at the first post.
func New(token string, chatID int64, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 {
		return nil, ErrNotConfigured
	}
	httpClient := &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return NewWithAPI(api, chatID, opts...), nil
}

func NewWithAPI(api API, chatID int64, opts ...Option) *Client {
	c := &Client{
		api:    api,
		chatID: chatID,
		retry:  DefaultRetryConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendPhoto posts photoURL with an HTML caption and returns the message id.
func (c *Client) SendPhoto(ctx context.Context, photoURL, caption string) (int, error) {
	photo := tgbotapi.NewPhoto(c.chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "photo", photo)
}

// SendHTML posts an HTML-formatted text message and returns the message id.
func (c *Client) SendHTML(ctx context.Context, text string) (int, error) {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "message", msg)
}

func (c *Client) send(ctx context.Context, kind string, chattable tgbotapi.Chattable) (int, error) {
	var sent tgbotapi.Message
	attempts := 0
	err := RetryWithBackoff(ctx, c.retry, func() error {
		attempts++
		msg, err := c.api.Send(chattable)
		if err != nil {
			return err
		}
		sent = msg
		return nil
	})
	if err != nil {
		c.logger.Warn("telegram send failed",
			slog.String("kind", kind),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("telegram send %s: %w", kind, err)
	}
	c.logger.Info("telegram message sent", slog.String("kind", kind), slog.Int("messageId", sent.MessageID))
	return sent.MessageID, nil
}
