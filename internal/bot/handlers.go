package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/report"
	"github.com/FranksOps/bubblescope/internal/session"
)

func (b *Bot) handleMessage(ctx context.Context, logger *slog.Logger, m *tgbotapi.Message) {
	if !m.IsCommand() {
		return
	}

	logger = logger.With("command", m.Command())
	switch m.Command() {
	case CommandStart, CommandHelp:
		b.reply(logger, m, helpText())
	case CommandMap:
		b.handleMap(ctx, logger, m)
	case CommandInfo:
		b.handleInfo(ctx, logger, m)
	default:
		b.reply(logger, m, "Unknown command. Send /help to see what I can do.")
	}
}

func (b *Bot) handleMap(ctx context.Context, logger *slog.Logger, m *tgbotapi.Message) {
	address, chain, err := parseAddressTarget(m.CommandArguments())
	if err != nil {
		b.replyError(logger, m.Chat.ID, m.MessageID, err)
		return
	}
	logger = logger.With("chain", chain, "address", address)

	b.action(m.Chat.ID, tgbotapi.ChatTyping)
	g, err := b.runner.RunGraph(ctx, address, chain)
	if err != nil {
		b.replyError(logger, m.Chat.ID, m.MessageID, err)
		return
	}

	text := fmt.Sprintf("🫧 Bubble map for %s on %s:\n%s", shortAddress(address), chain.FullName(), g.PageURL)
	if g.ScreenshotURL != "" {
		photo := tgbotapi.NewPhoto(m.Chat.ID, tgbotapi.FileURL(g.ScreenshotURL))
		photo.Caption = text
		photo.ReplyToMessageID = m.MessageID
		if _, ok := b.send(logger, photo); ok {
			return
		}
	}
	b.reply(logger, m, text)
}

func (b *Bot) handleInfo(ctx context.Context, logger *slog.Logger, m *tgbotapi.Message) {
	token, chain, err := parseTarget(m.CommandArguments(), "/bi <symbol or address>/<chain>")
	if err != nil {
		b.replyError(logger, m.Chat.ID, m.MessageID, err)
		return
	}
	logger = logger.With("chain", chain)

	if domain.LooksLikeAddress(token) {
		if err := chain.ValidateAddress(token); err != nil {
			b.replyError(logger, m.Chat.ID, m.MessageID, err)
			return
		}
		b.process(ctx, logger, m.Chat.ID, m.MessageID, token, chain)
		return
	}

	symbol, err := normalizeSymbol(token)
	if err != nil {
		b.replyError(logger, m.Chat.ID, m.MessageID, err)
		return
	}

	b.action(m.Chat.ID, tgbotapi.ChatTyping)
	cands, err := b.searcher.Search(ctx, symbol, chain)
	if err != nil {
		b.replyError(logger, m.Chat.ID, m.MessageID, err)
		return
	}

	label := "$" + strings.ToUpper(symbol)
	switch len(cands) {
	case 0:
		b.reply(logger, m, fmt.Sprintf("❌ No tokens found for %s on %s.", label, chain.FullName()))
	case 1:
		b.process(ctx, logger, m.Chat.ID, m.MessageID, cands[0].ContractAddress, chain)
	default:
		msg := tgbotapi.NewMessage(m.Chat.ID, fmt.Sprintf("🔍 Multiple tokens found for %s on %s:", label, chain.FullName()))
		msg.ReplyToMessageID = m.MessageID
		msg.ReplyMarkup = selectionKeyboard(cands)
		sent, ok := b.send(logger, msg)
		if !ok {
			return
		}

		sel := session.Selection{Chain: chain, Candidates: cands, MessageID: sent.MessageID}
		if err := b.sessions.Put(ctx, userID(m), sel); err != nil {
			b.replyError(logger, m.Chat.ID, m.MessageID, err)
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, logger *slog.Logger, q *tgbotapi.CallbackQuery) {
	idx, ok := parseSelection(q.Data)
	if !ok || q.From == nil || q.Message == nil {
		b.answer(logger, q.ID, "")
		return
	}

	sel, err := b.sessions.Take(ctx, q.From.ID)
	if err != nil {
		if !errors.Is(err, session.ErrExpired) {
			logger.Warn("load selection failed", "err", err)
		}
		b.answer(logger, q.ID, "Session expired. Please try again.")
		return
	}
	if idx >= len(sel.Candidates) {
		// A stale or forged button must not cost the user a valid selection.
		if err := b.sessions.Put(ctx, q.From.ID, *sel); err != nil {
			logger.Warn("restore selection failed", "err", err)
		}
		b.answer(logger, q.ID, "Unknown selection.")
		return
	}
	b.answer(logger, q.ID, "")

	chatID := q.Message.Chat.ID
	if _, err := b.sender.Request(tgbotapi.NewDeleteMessage(chatID, sel.MessageID)); err != nil {
		logger.Debug("delete selection message failed", "err", err)
	}

	cand := sel.Candidates[idx]
	b.process(ctx, logger.With("chain", sel.Chain), chatID, 0, cand.ContractAddress, sel.Chain)
}

// process runs the full pipeline and replies with the card photo and caption.
func (b *Bot) process(ctx context.Context, logger *slog.Logger, chatID int64, replyTo int, address string, chain domain.Chain) {
	logger = logger.With("address", address)

	b.action(chatID, tgbotapi.ChatUploadPhoto)
	res, err := b.runner.Run(ctx, address, chain)
	if err != nil {
		b.replyError(logger, chatID, replyTo, err)
		return
	}
	if res.Status == domain.StatusPartial {
		logger.Info("replying with partial result", "failures", len(res.Failures))
	}

	caption := report.Caption(res.TokenData)
	if res.ScreenshotURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(res.ScreenshotURL))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyToMessageID = replyTo
		if _, ok := b.send(logger, photo); ok {
			return
		}
	}

	// No card image: the caption alone still carries the answer.
	text := caption
	if text == "" {
		text = fmt.Sprintf("%s (%s) on %s", res.TokenData.Name, res.TokenData.Symbol, chain.FullName())
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	b.send(logger, msg)
}

func (b *Bot) answer(logger *slog.Logger, id, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(id, text)); err != nil {
		logger.Debug("answer callback failed", "err", err)
	}
}

func userID(m *tgbotapi.Message) int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}
