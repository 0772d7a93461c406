// Package telegram delivers quiz content to a Telegram channel through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"quiz-publisher/internal/domain"
)

// Bot API limits.
const (
	maxMessage     = 4096
	maxQuestion    = 300
	maxOption      = 100
	maxExplanation = 200
	maxCaption     = 1024
)

// Sender is the part of *tgbotapi.BotAPI the publisher needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBot authenticates against the Bot API. An empty endpoint selects the public API.
func NewBot(token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization: %w", err)
	}
	return bot, nil
}

type Publisher struct {
	sender   Sender
	chatID   int64
	username string
	handle   string
	limiter  *rate.Limiter
	logger   *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithRateLimit spaces messages at least interval apart after an initial burst.
// A non-positive interval disables limiting.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(p *Publisher) {
		if interval <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// WithHandle sets the channel handle appended to poll questions and used as the
// fallback explanation.
func WithHandle(handle string) Option {
	return func(p *Publisher) {
		if handle != "" {
			p.handle = handle
		}
	}
}

// NewPublisher targets channel, either "@username" or a numeric chat id.
func NewPublisher(sender Sender, channel string, opts ...Option) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("telegram sender is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, fmt.Errorf("telegram channel is required")
	}

	p := &Publisher{
		sender:  sender,
		handle:  domain.DefaultHandle,
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		logger:  slog.Default(),
	}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		p.chatID = id
	} else {
		if !strings.HasPrefix(channel, "@") {
			channel = "@" + channel
		}
		p.username = channel
		p.handle = channel
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) PublishIntro(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(p.chatID, truncate(text, maxMessage))
	msg.ChannelUsername = p.username
	msg.ParseMode = tgbotapi.ModeMarkdown
	return p.send(ctx, "intro", msg)
}

func (p *Publisher) PublishPoll(ctx context.Context, poll domain.Poll) error {
	if poll.CorrectIndex < 0 || poll.CorrectIndex >= len(poll.Options) {
		return fmt.Errorf("%w: correct option %d out of range", domain.ErrChannelDeliveryFailed, poll.CorrectIndex)
	}

	question := poll.Question
	if p.handle != "" {
		suffix := "\n[" + p.handle + "]"
		question = truncate(question, maxQuestion-utf8.RuneCountInString(suffix)) + suffix
	}
	options := make([]string, len(poll.Options))
	for i, opt := range poll.Options {
		options[i] = truncate(opt, maxOption)
	}
	explanation := poll.Explanation
	if explanation == "" {
		explanation = p.handle
	}

	cfg := tgbotapi.NewPoll(p.chatID, truncate(question, maxQuestion), options...)
	cfg.ChannelUsername = p.username
	cfg.Type = "quiz"
	cfg.IsAnonymous = true
	cfg.AllowsMultipleAnswers = false
	cfg.CorrectOptionID = int64(poll.CorrectIndex)
	cfg.Explanation = truncate(explanation, maxExplanation)
	return p.send(ctx, "poll", cfg)
}

func (p *Publisher) PublishDocument(ctx context.Context, path, caption string) error {
	doc := tgbotapi.NewDocument(p.chatID, tgbotapi.FilePath(path))
	doc.ChannelUsername = p.username
	doc.Caption = truncate(caption, maxCaption)
	doc.ParseMode = tgbotapi.ModeMarkdown
	return p.send(ctx, "document", doc)
}

func (p *Publisher) send(ctx context.Context, kind string, c tgbotapi.Chattable) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrChannelDeliveryFailed, kind, err)
	}
	msg, err := p.sender.Send(c)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrChannelDeliveryFailed, kind, err)
	}
	p.logger.Debug("telegram message sent", "kind", kind, "message_id", msg.MessageID)
	return nil
}

// truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
