package octiv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Timeout: 2 * time.Second, RatePerSec: 1000})
}

func TestListClassesSendsFiltersAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/class-dates", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "7", q.Get("filter[tenantId]"))
		assert.Equal(t, "9", q.Get("filter[locationId]"))
		assert.Equal(t, "2024-06-10,2024-06-10", q.Get("filter[between]"))
		assert.Equal(t, "false", q.Get("filter[isSession]"))
		assert.Equal(t, "50", q.Get("perPage"))
		assert.Equal(t, "true", r.Header.Get("X-CamelCase"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"id":11,"date":"2024-06-10","name":"WOD","startTime":"07:00:00","endTime":"08:00:00","limit":12,"bookings":[{},{}]}]}`)
	})

	got, err := c.ListClasses(context.Background(), "tok", 7, 9, "2024-06-10")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(11), got[0].ID)
	assert.Equal(t, "07:00", got[0].StartHHMM())
	assert.Len(t, got[0].Bookings, 2)
}

func TestListClassesAcceptsBareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":1,"name":"Yoga","startTime":"18:30:00"}]`)
	})
	got, err := c.ListClasses(context.Background(), "tok", 1, 1, "2024-06-10")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Yoga", got[0].Name)
}

func TestBookPostsIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/class-bookings", r.URL.Path)
		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(11), body["classDateId"])
		assert.Equal(t, int64(42), body["userId"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":555,"statusId":1}`)
	})
	res, err := c.Book(context.Background(), "tok", 11, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(555), res.ID)
}

func TestBookErrorsAreClassified(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   booking.Kind
	}{
		{"unauthorized", 401, `{"message":"whatever"}`, booking.KindAuth},
		{"too early", 422, `{"message":"Too early to book this class"}`, booking.KindTooEarly},
		{"full", 422, `{"message":"Class is full"}`, booking.KindFull},
		{"not found", 404, `{"message":"no such class"}`, booking.KindNotFound},
		{"server", 503, `oops`, booking.KindNetwork},
		{"forbidden plain", 403, `{"message":"nope"}`, booking.KindAuth},
		{"unknown", 400, `{"error":"bad payload"}`, booking.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.Book(context.Background(), "tok", 1, 2)
			require.Error(t, err)
			assert.Equal(t, tc.want, booking.KindOf(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, "book", apiErr.Op)
		})
	}
}

func TestTransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url, Timeout: time.Second, RatePerSec: 1000})
	_, err := c.WhoAmI(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, booking.KindNetwork, booking.KindOf(err))
}

func TestCustomRulesExtendKeywords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"message":"Reservas ainda fechadas"}`)
	})
	c.SetRules(DefaultRules().Extend(Rules{TooEarly: []string{"ainda fechadas"}}))
	_, err := c.Book(context.Background(), "tok", 1, 2)
	assert.Equal(t, booking.KindTooEarly, booking.KindOf(err))
}

func TestStructuredCodeWinsOverKeywords(t *testing.T) {
	r := DefaultRules()
	r.Codes = map[string]booking.Kind{"CLASS_FULL": booking.KindFull}
	assert.Equal(t, booking.KindFull, r.Classify(422, "CLASS_FULL", "booking not open yet"))
	assert.Equal(t, booking.KindTooEarly, r.Classify(422, "", "booking not open yet"))
}

func TestLoginUsesExpiresIn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login", r.URL.Path)
		_, _ = io.WriteString(w, `{"accessToken":"a","refreshToken":"r","expiresIn":3600}`)
	})
	before := time.Now()
	tok, err := c.Login(context.Background(), "me@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "a", tok.Token)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.WithinDuration(t, before.Add(time.Hour), tok.ExpiresAt, 5*time.Second)
}

func TestRefreshFallsBackToJWTExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login/refresh", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": signed})
	})
	tok, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.True(t, exp.Equal(tok.ExpiresAt))
	assert.Equal(t, "old-refresh", tok.RefreshToken)
}

func TestWhoAmI(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":42,"userTenants":[{"tenantId":7,"tenant":{"locations":[{"id":9}]}}]}`)
	})
	id, err := c.WhoAmI(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, booking.Identity{UserID: 42, TenantID: 7, LocationID: 9}, id)
}

func TestTokenExpiryRejectsGarbage(t *testing.T) {
	_, ok := TokenExpiry("not-a-jwt")
	assert.False(t, ok)
}
