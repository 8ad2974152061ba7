// Package prefetch resolves a slot to the provider's class id ahead of the
// booking window so the attempt engine can book without a list round trip.
package prefetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/schedule"
)

// Lead is how long before the attempt instant the prefetch stage runs.
const Lead = 2 * time.Minute

type Resolver struct {
	API booking.ClassLister
}

// Resolve lists the classes on classDate and returns the first whose name
// contains slot.ClassName (case-insensitive) and whose start time is
// slot.Time. (nil, nil) means nothing matched.
func (r *Resolver) Resolve(ctx context.Context, auth booking.AuthState, slot booking.Slot, classDate time.Time) (*booking.ResolvedClass, error) {
	classes, err := r.API.ListClasses(ctx, auth.Token, auth.TenantID, auth.LocationID, schedule.DateString(classDate))
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	if c, ok := Match(classes, slot.ClassName, slot.Time); ok {
		return booking.Resolve(c), nil
	}
	return nil, nil
}

func Match(classes []booking.ClassRecord, name, hhmm string) (booking.ClassRecord, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range classes {
		if c.StartHHMM() != hhmm {
			continue
		}
		if strings.Contains(strings.ToLower(c.DisplayName()), want) {
			return c, true
		}
	}
	return booking.ClassRecord{}, false
}

// Cache holds the resolved class for one cycle. It is written by the
// prefetch stage and read and invalidated by the attempt engine.
type Cache struct {
	mu sync.Mutex
	rc *booking.ResolvedClass
}

func (c *Cache) Get() *booking.ResolvedClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rc
}

func (c *Cache) Put(rc *booking.ResolvedClass) {
	c.mu.Lock()
	c.rc = rc
	c.mu.Unlock()
}

func (c *Cache) Invalidate() { c.Put(nil) }

func (c *Cache) Warm() bool { return c.Get() != nil }
