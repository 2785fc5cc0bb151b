// Package notify pushes watcher events to chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// Min interval between any two Telegram messages to the same chat to avoid 429 Too Many Requests (~30/min limit).
const telegramSendInterval = 2 * time.Second

// maxMatchesPerMessage keeps a summary well under Telegram's 4096 character limit.
const maxMatchesPerMessage = 15

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends a summary of changed matches for each batch,
// and an alert when the loop backs off or dies.
type TelegramNotifier struct {
	bot     messageSender
	chatID  int64
	limiter *rate.Limiter
}

// NewTelegramNotifier creates a notifier and checks the token with getMe.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	slog.Info("Telegram notifier initialized", "bot", bot.Self.UserName, "chat_id", chatID)
	return newTelegramNotifier(bot, chatID, rate.NewLimiter(rate.Every(telegramSendInterval), 1)), nil
}

func newTelegramNotifier(bot messageSender, chatID int64, limiter *rate.Limiter) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, limiter: limiter}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// PublishBatch sends the changed matches of b. Batches without changed matches are skipped.
func (n *TelegramNotifier) PublishBatch(ctx context.Context, b models.Batch) error {
	if len(b.Changes) == 0 {
		return nil
	}
	return n.send(ctx, formatBatch(b))
}

// PublishStatus alerts on backoff and fatal statuses only.
func (n *TelegramNotifier) PublishStatus(ctx context.Context, e models.StatusEvent) error {
	switch e.Kind {
	case models.StatusBackoff:
		return n.send(ctx, "⚠️ "+escape(e.Text()))
	case models.StatusFatal:
		return n.send(ctx, "🛑 *Watcher stopped*\n"+escape(e.Text()))
	default:
		return nil
	}
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	start := time.Now()
	if _, err := n.bot.Send(msg); err != nil {
		slog.Error("Telegram send: failed", "error", err, "message_preview", truncateString(text, 50))
		return err
	}
	slog.Info("Telegram send: success", "send_duration", time.Since(start), "message_preview", truncateString(text, 50))
	return nil
}

func formatBatch(b models.Batch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚽ *Live update* %s\n", b.FetchedAt.Format("15:04:05"))
	fmt.Fprintf(&sb, "%d matches, %d changed\n", len(b.Records), len(b.Changes))

	shown := 0
	for _, r := range b.Records {
		delta, ok := b.Changes[r.Key()]
		if !ok {
			continue
		}
		if shown == maxMatchesPerMessage {
			fmt.Fprintf(&sb, "\n_...and %d more_", len(b.Changes)-shown)
			break
		}
		shown++
		sb.WriteString("\n")
		sb.WriteString(formatMatch(r, delta))
	}
	return sb.String()
}

func formatMatch(r models.MatchRecord, delta models.FieldDelta) string {
	marker := "•"
	if delta.New {
		marker = "🆕"
	}
	line := fmt.Sprintf("%s *%s* %s-%s *%s* (%s)\n   %s | 1: %s X: %s 2: %s",
		marker,
		escape(r.HomeTeam), escape(r.HomeScore), escape(r.AwayScore), escape(r.AwayTeam),
		escape(r.MatchTime), escape(r.League),
		escape(r.OddsHome), escape(r.OddsDraw), escape(r.OddsAway))
	if !delta.New && len(delta.Fields) > 0 {
		line += "\n   _changed: " + escape(strings.Join(delta.Fields, ", ")) + "_"
	}
	return line
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
