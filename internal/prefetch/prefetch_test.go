package prefetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listerFunc func(ctx context.Context, token string, tenantID, locationID int64, date string) ([]booking.ClassRecord, error)

func (f listerFunc) ListClasses(ctx context.Context, token string, tenantID, locationID int64, date string) ([]booking.ClassRecord, error) {
	return f(ctx, token, tenantID, locationID, date)
}

var classes = []booking.ClassRecord{
	{ID: 1, Name: "Yoga", StartTime: "07:00:00", Limit: 10},
	{ID: 2, Name: "CrossFit WOD", StartTime: "07:00:00", Limit: 12},
	{ID: 3, Name: "WOD", StartTime: "07:00:00", Limit: 12},
	{ID: 4, Name: "WOD", StartTime: "18:00:00", Limit: 12},
}

func TestMatchFirstInProviderOrder(t *testing.T) {
	c, ok := Match(classes, "wod", "07:00")
	require.True(t, ok)
	assert.Equal(t, int64(2), c.ID)

	c, ok = Match(classes, "WOD", "18:00")
	require.True(t, ok)
	assert.Equal(t, int64(4), c.ID)

	_, ok = Match(classes, "WOD", "07:30")
	assert.False(t, ok)
}

func TestMatchFallsBackToLegacyName(t *testing.T) {
	c, ok := Match([]booking.ClassRecord{{ID: 9, ClassName: "Gymnastics", StartTime: "12:00:00"}}, "gym", "12:00")
	require.True(t, ok)
	assert.Equal(t, int64(9), c.ID)
}

func TestResolve(t *testing.T) {
	var gotDate string
	r := &Resolver{API: listerFunc(func(ctx context.Context, token string, tenantID, locationID int64, date string) ([]booking.ClassRecord, error) {
		assert.Equal(t, "tok", token)
		assert.Equal(t, int64(7), tenantID)
		assert.Equal(t, int64(9), locationID)
		gotDate = date
		return classes, nil
	})}
	auth := booking.AuthState{Token: "tok", TenantID: 7, LocationID: 9}
	slot := booking.Slot{Day: booking.Weekday(time.Monday), Time: "07:00", ClassName: "WOD"}
	loc := time.FixedZone("SAST", 2*60*60)

	// 00:30 local is still the previous day in UTC; the local date must win.
	rc, err := r.Resolve(context.Background(), auth, slot, time.Date(2024, 6, 10, 0, 30, 0, 0, loc))
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, "2024-06-10", gotDate)
	assert.Equal(t, &booking.ResolvedClass{ID: 2, Name: "CrossFit WOD", Limit: 12}, rc)

	slot.ClassName = "Pilates"
	rc, err = r.Resolve(context.Background(), auth, slot, time.Date(2024, 6, 10, 7, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Nil(t, rc)
}

func TestResolveError(t *testing.T) {
	boom := booking.Errorf(booking.KindNetwork, "boom")
	r := &Resolver{API: listerFunc(func(context.Context, string, int64, int64, string) ([]booking.ClassRecord, error) {
		return nil, boom
	})}
	_, err := r.Resolve(context.Background(), booking.AuthState{}, booking.Slot{Time: "07:00", ClassName: "x"}, time.Now())
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, booking.KindNetwork, booking.KindOf(err))
}

func TestCache(t *testing.T) {
	var c Cache
	assert.False(t, c.Warm())
	c.Put(&booking.ResolvedClass{ID: 5})
	assert.True(t, c.Warm())
	assert.Equal(t, int64(5), c.Get().ID)
	c.Invalidate()
	assert.Nil(t, c.Get())
}
