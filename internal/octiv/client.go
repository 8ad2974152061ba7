package octiv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://api.octivfitness.com"
	DefaultTimeout    = 10 * time.Second
	DefaultRatePerSec = 8

	userAgent = "octivsniper/1.0"
)

// Client talks to the Octiv Fitness API. Every call is bounded by a request
// timeout and shares one rate limiter so slots racing the same instant do
// not trip provider throttling.
type Client struct {
	hc      *http.Client
	base    string
	timeout time.Duration
	limiter *rate.Limiter

	mu    sync.RWMutex
	rules Rules
}

var _ booking.Provider = (*Client)(nil)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec int
	Rules      Rules
	HTTPClient *http.Client
}

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = DefaultRatePerSec
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	rules := opts.Rules
	if rules.IsZero() {
		rules = DefaultRules()
	}
	return &Client{
		hc:      hc,
		base:    base,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		rules:   rules,
	}
}

// SetRules swaps the error classification vocabulary, e.g. after a settings reload.
func (c *Client) SetRules(r Rules) {
	if r.IsZero() {
		r = DefaultRules()
	}
	c.mu.Lock()
	c.rules = r
	c.mu.Unlock()
}

func (c *Client) currentRules() Rules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

func (c *Client) Login(ctx context.Context, email, password string) (booking.Tokens, error) {
	body := map[string]string{"username": email, "password": password}
	var res tokenResponse
	if err := c.call(ctx, "login", http.MethodPost, "/api/login", "", nil, body, &res); err != nil {
		return booking.Tokens{}, err
	}
	return res.tokens(time.Now())
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (booking.Tokens, error) {
	if refreshToken == "" {
		return booking.Tokens{}, booking.Errorf(booking.KindAuth, "octiv: refresh: no refresh token")
	}
	body := map[string]string{"refreshToken": refreshToken}
	var res tokenResponse
	if err := c.call(ctx, "refresh", http.MethodPost, "/api/login/refresh", "", nil, body, &res); err != nil {
		return booking.Tokens{}, err
	}
	t, err := res.tokens(time.Now())
	if err != nil {
		return booking.Tokens{}, err
	}
	if t.RefreshToken == "" {
		t.RefreshToken = refreshToken
	}
	return t, nil
}

func (c *Client) WhoAmI(ctx context.Context, token string) (booking.Identity, error) {
	var res struct {
		ID          int64 `json:"id"`
		UserTenants []struct {
			TenantID int64 `json:"tenantId"`
			Tenant   struct {
				Locations []struct {
					ID int64 `json:"id"`
				} `json:"locations"`
			} `json:"tenant"`
		} `json:"userTenants"`
	}
	if err := c.call(ctx, "whoami", http.MethodGet, "/api/users/me", token, nil, nil, &res); err != nil {
		return booking.Identity{}, err
	}
	id := booking.Identity{UserID: res.ID}
	if len(res.UserTenants) > 0 {
		ut := res.UserTenants[0]
		id.TenantID = ut.TenantID
		if len(ut.Tenant.Locations) > 0 {
			id.LocationID = ut.Tenant.Locations[0].ID
		}
	}
	return id, nil
}

func (c *Client) ListClasses(ctx context.Context, token string, tenantID, locationID int64, date string) ([]booking.ClassRecord, error) {
	q := url.Values{}
	q.Set("filter[tenantId]", strconv.FormatInt(tenantID, 10))
	q.Set("filter[locationId]", strconv.FormatInt(locationID, 10))
	q.Set("filter[between]", date+","+date)
	q.Set("filter[isSession]", "false")
	q.Set("perPage", "50")

	var raw json.RawMessage
	if err := c.call(ctx, "list classes", http.MethodGet, "/api/class-dates", token, q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeClassList(raw)
}

// decodeClassList accepts both the paginated {"data": [...]} envelope and a bare array.
func decodeClassList(raw json.RawMessage) ([]booking.ClassRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var out []booking.ClassRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("octiv: decode class list: %w", err)
		}
		return out, nil
	}
	var env struct {
		Data []booking.ClassRecord `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("octiv: decode class list: %w", err)
	}
	return env.Data, nil
}

func (c *Client) Book(ctx context.Context, token string, classID, userID int64) (booking.BookingResult, error) {
	body := map[string]int64{"classDateId": classID, "userId": userID}
	var res booking.BookingResult
	if err := c.call(ctx, "book", http.MethodPost, "/api/class-bookings", token, nil, body, &res); err != nil {
		return booking.BookingResult{}, err
	}
	return res, nil
}

func (c *Client) Cancel(ctx context.Context, token string, bookingID int64) error {
	path := "/api/class-bookings/" + strconv.FormatInt(bookingID, 10) + "/cancel"
	return c.call(ctx, "cancel", http.MethodPut, path, token, nil, nil, nil)
}

// call performs one request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) call(ctx context.Context, op, method, path, token string, query url.Values, in, out any) error {
	status, body, err := c.do(ctx, method, path, token, query, in)
	if err != nil {
		return booking.Error(booking.KindNetwork, fmt.Errorf("octiv: %s: %w", op, err))
	}
	if status < 200 || status >= 300 {
		return newAPIError(op, status, body, c.currentRules())
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("octiv: %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, in any) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("x-camelcase", "true")
	req.Header.Set("accept", "application/json, text/plain, */*")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("bypass-tunnel-reminder", "*")
	if token != "" {
		req.Header.Set("authorization", "Bearer "+token)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (r tokenResponse) tokens(now time.Time) (booking.Tokens, error) {
	if r.AccessToken == "" {
		return booking.Tokens{}, errors.New("octiv: response carried no access token")
	}
	t := booking.Tokens{Token: r.AccessToken, RefreshToken: r.RefreshToken}
	if r.ExpiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	} else if exp, ok := TokenExpiry(r.AccessToken); ok {
		t.ExpiresAt = exp
	}
	return t, nil
}
