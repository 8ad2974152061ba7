package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/octiv-sniper/internal/attempt"
	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/prefetch"
	"github.com/example/octiv-sniper/internal/schedule"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Guard is the credential guard as seen by the scheduler.
type Guard interface {
	attempt.Auth
	EnsureFresh(ctx context.Context) (booking.AuthState, error)
}

// Report is sent to the Notifier after every cycle.
type Report struct {
	CycleID   string
	Slot      booking.Slot
	ClassDate time.Time
	Outcome   attempt.Outcome
	Next      booking.ScheduledBooking
}

// ErrNotRunning is returned by Reconcile before RunDaemon starts or once it
// is shutting down.
var ErrNotRunning = errors.New("scheduler: not running")

type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// Scheduler runs one task per slot. Each task sleeps until the prefetch
// instant, warms the cache, sleeps until the attempt instant, runs the
// attempt engine, then moves on to the same slot a week later, forever.
type Scheduler struct {
	Calc          schedule.Calculator
	Guard         Guard
	Resolver      attempt.Resolver
	Booker        booking.Booker
	RetryInterval time.Duration
	MaxRetries    int
	Notifier      Notifier
	Log           zerolog.Logger

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	master   context.Context
	stopping bool
	tasks    map[string]*task
	wg       sync.WaitGroup
}

type task struct {
	key    string
	slot   booking.Slot
	cancel context.CancelFunc

	mu     sync.Mutex
	status SlotStatus
}

// SlotStatus is a snapshot of one armed slot.
type SlotStatus struct {
	Slot          booking.Slot `json:"slot"`
	Stage         string       `json:"stage"`
	CycleID       string       `json:"cycleId,omitempty"`
	ClassDate     time.Time    `json:"classDate"`
	OpensAt       time.Time    `json:"opensAt"`
	AttemptAt     time.Time    `json:"attemptAt"`
	Cycles        int          `json:"cycles"`
	LastOutcome   string       `json:"lastOutcome,omitempty"`
	LastBookingID int64        `json:"lastBookingId,omitempty"`
	LastRunAt     *time.Time   `json:"lastRunAt,omitempty"`
}

const (
	StageArmed      = "armed"
	StagePrefetched = "prefetched"
	StageAttempting = "attempting"
)

// RunDaemon starts a task per slot and blocks until ctx is cancelled.
// It refuses to start without slots or without a token.
func (s *Scheduler) RunDaemon(ctx context.Context, slots []booking.Slot) error {
	if len(slots) == 0 {
		return booking.ErrNoSlots
	}
	if !s.Guard.State().LoggedIn() {
		return booking.ErrNotLoggedIn
	}

	s.mu.Lock()
	if s.master != nil {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	s.master = ctx
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	s.Log.Info().Int("slots", len(slots)).Dur("retry", s.RetryInterval).Int("max_retries", s.MaxRetries).
		Int("advance_days", s.Calc.AdvanceDays).Msg("scheduler started")
	if err := s.Reconcile(slots); err != nil {
		return err
	}

	<-ctx.Done()
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.wg.Wait()
	s.Log.Info().Msg("scheduler stopped")
	return nil
}

// Reconcile brings the running tasks in line with slots: tasks for slots
// that disappeared are cancelled, new slots get a task, unchanged slots keep
// running undisturbed.
func (s *Scheduler) Reconcile(slots []booking.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.master == nil || s.stopping || s.master.Err() != nil {
		return ErrNotRunning
	}

	want := make(map[string]booking.Slot, len(slots))
	seen := make(map[string]int, len(slots))
	for _, sl := range slots {
		seen[sl.Key()]++
		want[fmt.Sprintf("%s#%d", sl.Key(), seen[sl.Key()])] = sl
	}

	for key, t := range s.tasks {
		if _, ok := want[key]; !ok {
			t.cancel()
			delete(s.tasks, key)
			s.Log.Info().Str("slot", t.slot.String()).Msg("slot removed")
		}
	}
	for key, sl := range want {
		if _, ok := s.tasks[key]; ok {
			continue
		}
		ctx, cancel := context.WithCancel(s.master)
		t := &task{key: key, slot: sl, cancel: cancel}
		t.status.Slot = sl
		s.tasks[key] = t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSlot(ctx, t)
		}()
	}
	return nil
}

// Status lists the armed slots ordered by attempt instant.
func (s *Scheduler) Status() []SlotStatus {
	s.mu.Lock()
	out := make([]SlotStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, t.status)
		t.mu.Unlock()
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttemptAt.Equal(out[j].AttemptAt) {
			return out[i].Slot.Key() < out[j].Slot.Key()
		}
		return out[i].AttemptAt.Before(out[j].AttemptAt)
	})
	return out
}

func (s *Scheduler) runSlot(ctx context.Context, t *task) {
	sb, err := s.Calc.Upcoming(s.now(), t.slot)
	if err != nil {
		s.Log.Error().Err(err).Str("slot", t.slot.String()).Msg("cannot schedule slot")
		return
	}
	for ctx.Err() == nil {
		if now := s.now(); !sb.AttemptAt.After(now) {
			s.Log.Info().Str("slot", t.slot.String()).Time("attempt_at", sb.AttemptAt).
				Msg("booking window already passed; moving to next week")
			sb = s.Calc.RollForward(now, sb)
		}
		out, next := s.cycle(ctx, sb, t)
		if out.Status == attempt.Cancelled || ctx.Err() != nil {
			return
		}
		sb = next
	}
}

// RunSingleCycle runs one cycle for sb without waiting for the weekly
// chain: prefetch (if its instant is still ahead), attempt, and returns the
// outcome with the following week's descriptor.
func (s *Scheduler) RunSingleCycle(ctx context.Context, sb booking.ScheduledBooking) (attempt.Outcome, booking.ScheduledBooking) {
	return s.cycle(ctx, sb, nil)
}

func (s *Scheduler) cycle(ctx context.Context, sb booking.ScheduledBooking, t *task) (attempt.Outcome, booking.ScheduledBooking) {
	id := uuid.NewString()
	log := s.Log.With().Str("cycle", id).Str("slot", sb.Slot.String()).Logger()
	next := s.Calc.Advance(sb)
	t.update(func(st *SlotStatus) {
		st.Stage = StageArmed
		st.CycleID = id
		st.ClassDate, st.OpensAt, st.AttemptAt = sb.ClassDate, sb.OpensAt, sb.AttemptAt
	})

	log.Info().Time("class", sb.ClassDate).Time("opens", sb.OpensAt).Time("attempt_at", sb.AttemptAt).
		Str("in", schedule.FormatUntil(sb.AttemptAt.Sub(s.now()))).Msg("cycle armed")

	var cache prefetch.Cache
	prefetchAt := sb.AttemptAt.Add(-prefetch.Lead)
	if prefetchAt.After(s.now()) {
		if err := s.sleepUntil(ctx, prefetchAt); err != nil {
			return attempt.Outcome{Status: attempt.Cancelled}, next
		}
		s.warm(ctx, log, sb, &cache, "prefetch")
		t.update(func(st *SlotStatus) { st.Stage = StagePrefetched })
	}

	if err := s.sleepUntil(ctx, sb.AttemptAt); err != nil {
		return attempt.Outcome{Status: attempt.Cancelled}, next
	}
	t.update(func(st *SlotStatus) { st.Stage = StageAttempting })
	log.Info().Msg("starting booking attempts")
	if !cache.Warm() {
		s.warm(ctx, log, sb, &cache, "late prefetch")
	} else if _, err := s.Guard.EnsureFresh(ctx); err != nil {
		log.Warn().Err(err).Msg("auth check failed")
	}

	eng := &attempt.Engine{
		API:           s.Booker,
		Resolver:      s.Resolver,
		Auth:          s.Guard,
		RetryInterval: s.RetryInterval,
		MaxRetries:    s.MaxRetries,
		Log:           log,
		Sleep:         s.Sleep,
	}
	out := eng.Run(ctx, sb.Slot, sb.ClassDate, &cache)
	if out.Status == attempt.Cancelled {
		log.Info().Msg("cycle cancelled")
		return out, next
	}

	ev := log.Info()
	if out.Status != attempt.Success {
		ev = log.Warn().AnErr("last_err", out.LastErr)
	}
	ev.Str("outcome", out.Status.String()).Int64("booking_id", out.BookingID).
		Int("attempts", out.Real).Int("early", out.Early).Msg("cycle finished")
	log.Info().Time("next_class", next.ClassDate).Time("next_attempt_at", next.AttemptAt).Msg("rescheduled")

	t.update(func(st *SlotStatus) {
		st.Cycles++
		st.LastOutcome = out.Status.String()
		st.LastBookingID = out.BookingID
		ran := s.now()
		st.LastRunAt = &ran
	})

	if s.Notifier != nil {
		r := Report{CycleID: id, Slot: sb.Slot, ClassDate: sb.ClassDate, Outcome: out, Next: next}
		if err := s.Notifier.Notify(ctx, r); err != nil {
			log.Warn().Err(err).Msg("notify failed")
		}
	}
	return out, next
}

// warm runs the auth guard then the resolver, filling cache on a match.
func (s *Scheduler) warm(ctx context.Context, log zerolog.Logger, sb booking.ScheduledBooking, cache *prefetch.Cache, stage string) {
	auth, err := s.Guard.EnsureFresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("auth check failed")
		auth = s.Guard.State()
	}
	rc, err := s.Resolver.Resolve(ctx, auth, sb.Slot, sb.ClassDate)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("stage", stage).Msg("class lookup failed")
	case rc == nil:
		log.Warn().Str("stage", stage).Msg("no matching class listed yet")
	default:
		cache.Put(rc)
		log.Info().Str("stage", stage).Int64("class_id", rc.ID).Str("name", rc.Name).
			Int("booked", rc.Booked).Int("limit", rc.Limit).Msg("class resolved")
	}
}

func (t *task) update(fn func(*SlotStatus)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fn(&t.status)
	t.mu.Unlock()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) sleepUntil(ctx context.Context, at time.Time) error {
	d := at.Sub(s.now())
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return attempt.Sleep(ctx, d)
}
