// Package attempt runs the booking retry loop for one weekly cycle.
//
// Two counters drive it. Early rejections (window not open yet) are
// unbounded and polled every EarlyInterval so the first request after the
// window opens lands as soon as possible. Every other failure spends one of
// MaxRetries real attempts.
package attempt

import (
	"context"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/prefetch"
	"github.com/rs/zerolog"
)

const (
	EarlyInterval     = 250 * time.Millisecond
	FullBackoffFactor = 5
	earlyLogEvery     = 50
)

type Status int

const (
	Failed Status = iota
	Success
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

type Outcome struct {
	Status    Status
	BookingID int64
	Class     *booking.ResolvedClass
	Early     int
	Real      int
	LastErr   error
}

type Resolver interface {
	Resolve(ctx context.Context, auth booking.AuthState, slot booking.Slot, classDate time.Time) (*booking.ResolvedClass, error)
}

// Auth is the view of the credential guard the engine needs.
type Auth interface {
	State() booking.AuthState
	ForceRefresh(ctx context.Context) (booking.AuthState, error)
}

type Engine struct {
	API           booking.Booker
	Resolver      Resolver
	Auth          Auth
	RetryInterval time.Duration
	MaxRetries    int
	Log           zerolog.Logger

	// Sleep waits for d or until ctx is done. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run books slot for classDate, consulting and maintaining cache. It returns
// Success, Failed once MaxRetries real attempts are spent, or Cancelled when
// ctx ends first.
func (e *Engine) Run(ctx context.Context, slot booking.Slot, classDate time.Time, cache *prefetch.Cache) Outcome {
	var out Outcome
	limit := e.MaxRetries
	if limit < 1 {
		limit = 1
	}
	log := e.Log.With().Str("slot", slot.String()).Str("date", classDate.Format("2006-01-02")).Logger()

	for out.Real < limit {
		if ctx.Err() != nil {
			out.Status = Cancelled
			return out
		}
		auth := e.Auth.State()

		rc := cache.Get()
		if rc == nil {
			var err error
			rc, err = e.Resolver.Resolve(ctx, auth, slot, classDate)
			if err != nil {
				if !e.fail(ctx, log, &out, limit, cache, err) {
					out.Status = Cancelled
					return out
				}
				continue
			}
			if rc == nil {
				out.Real++
				out.LastErr = booking.Errorf(booking.KindNotFound, "class %q at %s not listed", slot.ClassName, slot.Time)
				log.Warn().Int("attempt", out.Real).Int("limit", limit).Msg("class not found")
				if out.Real < limit && e.sleep(ctx, e.RetryInterval) != nil {
					out.Status = Cancelled
					return out
				}
				continue
			}
			cache.Put(rc)
		}

		res, err := e.API.Book(ctx, auth.Token, rc.ID, auth.UserID)
		if err == nil {
			out.Status = Success
			out.BookingID = res.ID
			out.Class = rc
			out.LastErr = nil
			log.Info().Int64("class_id", rc.ID).Int64("booking_id", res.ID).
				Int("early", out.Early).Int("attempt", out.Real+1).Msg("booked")
			return out
		}
		if !e.fail(ctx, log, &out, limit, cache, err) {
			out.Status = Cancelled
			return out
		}
	}

	out.Status = Failed
	log.Error().Err(out.LastErr).Int("attempts", out.Real).Int("early", out.Early).Msg("giving up")
	return out
}

// fail applies the classification rules to err, updates the counters and
// cache, and waits. It returns false if ctx ended while waiting.
func (e *Engine) fail(ctx context.Context, log zerolog.Logger, out *Outcome, limit int, cache *prefetch.Cache, err error) bool {
	out.LastErr = err
	kind := booking.KindOf(err)

	if kind == booking.KindTooEarly {
		out.Early++
		if out.Early%earlyLogEvery == 0 {
			log.Info().Int("early", out.Early).Msg("window not open yet")
		}
		return e.sleep(ctx, EarlyInterval) == nil
	}

	out.Real++
	cache.Invalidate()
	log.Warn().Err(err).Str("kind", kind.String()).Int("attempt", out.Real).Int("limit", limit).Msg("attempt failed")
	if out.Real >= limit {
		return true
	}

	wait := e.RetryInterval
	switch kind {
	case booking.KindFull:
		wait = FullBackoffFactor * e.RetryInterval
	case booking.KindAuth:
		_, rerr := e.Auth.ForceRefresh(ctx)
		if rerr == nil {
			return ctx.Err() == nil
		}
		log.Warn().Err(rerr).Msg("forced token refresh failed")
	}
	return e.sleep(ctx, wait) == nil
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
