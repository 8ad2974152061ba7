package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/octiv-sniper/internal/attempt"
	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/scheduler"
	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(status attempt.Status) scheduler.Report {
	return scheduler.Report{
		Slot:      booking.Slot{Day: booking.Weekday(time.Monday), Time: "07:00", ClassName: "WOD"},
		ClassDate: time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC),
		Outcome: attempt.Outcome{
			Status:    status,
			BookingID: 555,
			Real:      20,
			Class:     &booking.ResolvedClass{ID: 1, Booked: 3, Limit: 12},
			LastErr:   errors.New("class is full"),
		},
		Next: booking.ScheduledBooking{AttemptAt: time.Date(2024, 6, 13, 7, 59, 30, 0, time.UTC)},
	}
}

func TestFormat(t *testing.T) {
	ok := Format(report(attempt.Success))
	assert.Contains(t, ok, "Booked WOD on Mon 10 Jun 07:00 (booking 555)")
	assert.Contains(t, ok, "3/12")
	assert.Contains(t, ok, "Next attempt: Thu 13 Jun 07:59:30")

	bad := Format(report(attempt.Failed))
	assert.Contains(t, bad, "Could not book WOD on Mon 10 Jun 07:00 after 20 attempts: class is full")
}

func TestTelegramSendsToChat(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotChat = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"}}}`)
	}))
	defer srv.Close()

	tg, err := NewTelegram("123:abc", -100, bot.WithServerURL(srv.URL))
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), report(attempt.Success)))

	assert.True(t, strings.HasSuffix(gotPath, "/sendMessage"), gotPath)
	assert.Equal(t, "-100", gotChat)
	assert.Contains(t, gotText, "Booked WOD")
}
