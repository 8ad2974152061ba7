// Package authguard keeps the shared provider credential fresh.
package authguard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/octiv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// RefreshBefore is how close to expiry a token must be before it is refreshed.
	RefreshBefore = 7 * 24 * time.Hour
	// RefreshTimeout bounds one shared refresh including persistence.
	RefreshTimeout = 30 * time.Second
)

type Persister interface {
	UpdateAuth(ctx context.Context, a booking.AuthState) error
}

// Guard owns the AuthState. All slot tasks read it through the guard and
// concurrent refreshes of the same token collapse into one provider call.
type Guard struct {
	api   booking.Refresher
	store Persister
	log   zerolog.Logger
	now   func() time.Time

	mu    sync.RWMutex
	state booking.AuthState

	group singleflight.Group
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

func New(state booking.AuthState, api booking.Refresher, store Persister, log zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{api: api, store: store, log: log, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	g.Set(state)
	return g
}

func (g *Guard) State() booking.AuthState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Set replaces the state, e.g. after the operator logs in again while the
// daemon runs. A missing expiry is read from the token's exp claim.
func (g *Guard) Set(a booking.AuthState) {
	a = withExpiry(a)
	g.mu.Lock()
	g.state = a
	g.mu.Unlock()
}

// Adopt takes a state read back from settings only when it is a different
// account or a token that outlives the current one. An older copy of the
// settings must not roll back a token the guard already rotated.
func (g *Guard) Adopt(a booking.AuthState) bool {
	if !a.LoggedIn() {
		return false
	}
	a = withExpiry(a)
	g.mu.Lock()
	defer g.mu.Unlock()
	cur := g.state
	switch {
	case a.Token == cur.Token:
		return false
	case !strings.EqualFold(a.Email, cur.Email):
	case a.ExpiresAt.After(cur.ExpiresAt):
	default:
		return false
	}
	g.state = a
	return true
}

func withExpiry(a booking.AuthState) booking.AuthState {
	if a.ExpiresAt.IsZero() {
		if exp, ok := octiv.TokenExpiry(a.Token); ok {
			a.ExpiresAt = exp
		}
	}
	return a
}

// EnsureFresh refreshes the token when it expires within RefreshBefore.
// A failed refresh is logged and the current state is returned unchanged.
func (g *Guard) EnsureFresh(ctx context.Context) (booking.AuthState, error) {
	cur := g.State()
	if !g.needsRefresh(cur) {
		return cur, nil
	}
	a, err := g.refresh(ctx, cur.Token, false)
	if err != nil {
		g.log.Warn().Err(err).Time("expires", cur.ExpiresAt).Msg("token refresh failed; continuing with current token")
		return g.State(), nil
	}
	return a, nil
}

// ForceRefresh refreshes regardless of expiry. It is used after the provider
// rejected the token. Unlike EnsureFresh it reports failure.
func (g *Guard) ForceRefresh(ctx context.Context) (booking.AuthState, error) {
	cur := g.State()
	return g.refresh(ctx, cur.Token, true)
}

func (g *Guard) needsRefresh(a booking.AuthState) bool {
	if a.ExpiresAt.IsZero() || a.RefreshToken == "" {
		return false
	}
	return a.ExpiresAt.Sub(g.now()) <= RefreshBefore
}

// refresh is keyed by the token the caller observed, so a caller that shows
// up after someone else already replaced that token gets the new state
// without a second provider call. The shared call runs detached from any one
// caller: a caller whose ctx ends stops waiting, the others still get the
// result.
func (g *Guard) refresh(ctx context.Context, observed string, force bool) (booking.AuthState, error) {
	ch := g.group.DoChan("refresh:"+observed, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()
		return g.doRefresh(fctx, observed, force)
	})
	select {
	case res := <-ch:
		return res.Val.(booking.AuthState), res.Err
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

func (g *Guard) doRefresh(ctx context.Context, observed string, force bool) (booking.AuthState, error) {
	cur := g.State()
	if cur.Token != observed {
		return cur, nil
	}
	if !force && !g.needsRefresh(cur) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return cur, errors.New("authguard: no refresh token; log in again")
	}

	tok, err := g.api.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return cur, err
	}
	next := cur
	next.Token = tok.Token
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.ExpiresAt = tok.ExpiresAt
	g.Set(next)
	next = g.State()

	if g.store != nil {
		if err := g.store.UpdateAuth(ctx, next); err != nil {
			g.log.Error().Err(err).Msg("persist refreshed token failed")
		}
	}
	g.log.Info().Time("expires", next.ExpiresAt).Msg("token refreshed")
	return next, nil
}
