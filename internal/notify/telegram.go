// Package notify forwards cycle outcomes to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/octiv-sniper/internal/attempt"
	"github.com/example/octiv-sniper/internal/scheduler"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Telegram struct {
	api    Sender
	chatID int64
}

// NewTelegram builds a send-only bot. It never polls for updates.
func NewTelegram(token string, chatID int64, opts ...bot.Option) (*Telegram, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Telegram{api: b, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, r scheduler.Report) error {
	_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   Format(r),
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Format renders a cycle report as a short plain-text message.
func Format(r scheduler.Report) string {
	var b strings.Builder
	when := r.ClassDate.Format("Mon 02 Jan 15:04")
	switch r.Outcome.Status {
	case attempt.Success:
		fmt.Fprintf(&b, "Booked %s on %s (booking %d)", r.Slot.ClassName, when, r.Outcome.BookingID)
		if r.Outcome.Class != nil && r.Outcome.Class.Limit > 0 {
			fmt.Fprintf(&b, ", %d/%d taken before us", r.Outcome.Class.Booked, r.Outcome.Class.Limit)
		}
	default:
		fmt.Fprintf(&b, "Could not book %s on %s after %d attempts", r.Slot.ClassName, when, r.Outcome.Real)
		if r.Outcome.LastErr != nil {
			fmt.Fprintf(&b, ": %v", r.Outcome.LastErr)
		}
	}
	fmt.Fprintf(&b, "\nNext attempt: %s", r.Next.AttemptAt.Format("Mon 02 Jan 15:04:05"))
	return b.String()
}
