// Package bot is the Telegram surface: it parses commands, drives the
// resolver and the pipeline, and replies with links, photos and captions.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/session"
)

// Sender is the part of *tgbotapi.BotAPI the bot replies through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Searcher resolves a ticker symbol to contract candidates.
type Searcher interface {
	Search(ctx context.Context, symbol string, chain domain.Chain) ([]domain.SearchCandidate, error)
}

// Runner produces token answers.
type Runner interface {
	Run(ctx context.Context, address string, chain domain.Chain) (*domain.PipelineResult, error)
	RunGraph(ctx context.Context, address string, chain domain.Chain) (*domain.GraphResult, error)
}

// Config tunes request handling.
type Config struct {
	// RequestTimeout bounds one chat request end to end (default 3m).
	RequestTimeout time.Duration
}

// Bot handles Telegram updates. Each update runs on its own goroutine.
type Bot struct {
	sender   Sender
	searcher Searcher
	runner   Runner
	sessions session.Store
	cfg      Config
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New creates a bot.
func New(sender Sender, searcher Searcher, runner Runner, sessions session.Store, cfg Config, logger *slog.Logger) *Bot {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sender:   sender,
		searcher: searcher,
		runner:   runner,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start dispatches updates until ctx is cancelled or the channel closes,
// then waits for in-flight requests to finish.
func (b *Bot) Start(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, update)
			}()
		}
	}
}

// Handle processes one update synchronously.
func (b *Bot) Handle(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	logger := b.logger.With("request_id", uuid.NewString())
	if u := update.SentFrom(); u != nil {
		logger = logger.With("user_id", u.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("update handler panicked", "panic", r)
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, logger, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, logger, update.CallbackQuery)
	}
}

func (b *Bot) send(logger *slog.Logger, c tgbotapi.Chattable) (tgbotapi.Message, bool) {
	msg, err := b.sender.Send(c)
	if err != nil {
		logger.Warn("telegram send failed", "err", err)
		return msg, false
	}
	return msg, true
}

func (b *Bot) sendText(logger *slog.Logger, chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	b.send(logger, msg)
}

func (b *Bot) reply(logger *slog.Logger, to *tgbotapi.Message, text string) {
	b.sendText(logger, to.Chat.ID, to.MessageID, text)
}

func (b *Bot) replyError(logger *slog.Logger, chatID int64, replyTo int, err error) {
	logger.Warn("request failed", "err", err)
	b.sendText(logger, chatID, replyTo, "❌ "+domain.UserMessage(err))
}

// action shows a chat action such as "typing". Failures are ignored.
func (b *Bot) action(chatID int64, action string) {
	_, _ = b.sender.Request(tgbotapi.NewChatAction(chatID, action))
}
