package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
)

const (
	DefaultAdvanceDays     = 4
	DefaultRetryIntervalMs = 500
	DefaultMaxRetries      = 20
	DefaultClassMinutes    = 60
)

// Document is the settings document. Field names match config.json as
// written by earlier versions of the tool.
type Document struct {
	Auth                 Auth           `json:"auth" yaml:"auth"`
	AdvanceBookingDays   int            `json:"advanceBookingDays" yaml:"advanceBookingDays"`
	Slots                []booking.Slot `json:"slots" yaml:"slots"`
	RetryIntervalMs      int            `json:"retryIntervalMs" yaml:"retryIntervalMs"`
	MaxRetries           int            `json:"maxRetries" yaml:"maxRetries"`
	Timezone             string         `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	ClassDurationMinutes int            `json:"classDurationMinutes,omitempty" yaml:"classDurationMinutes,omitempty"`
	ErrorRules           *ErrorRules    `json:"errorRules,omitempty" yaml:"errorRules,omitempty"`
}

type Auth struct {
	Email        string `json:"email" yaml:"email"`
	JWT          string `json:"jwt" yaml:"jwt"`
	RefreshToken string `json:"refreshToken,omitempty" yaml:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"` // unix ms
	UserID       int64  `json:"userId" yaml:"userId"`
	TenantID     int64  `json:"tenantId" yaml:"tenantId"`
	LocationID   int64  `json:"locationId" yaml:"locationId"`
}

// ErrorRules extends (or with Replace, replaces) the built-in keyword lists
// used to classify provider rejections.
type ErrorRules struct {
	Replace  bool              `json:"replace,omitempty" yaml:"replace,omitempty"`
	TooEarly []string          `json:"tooEarly,omitempty" yaml:"tooEarly,omitempty"`
	Full     []string          `json:"full,omitempty" yaml:"full,omitempty"`
	Auth     []string          `json:"auth,omitempty" yaml:"auth,omitempty"`
	Codes    map[string]string `json:"codes,omitempty" yaml:"codes,omitempty"` // code -> too_early|full|auth|not_found|network
}

func Default() Document {
	return Document{
		AdvanceBookingDays: DefaultAdvanceDays,
		Slots:              []booking.Slot{},
		RetryIntervalMs:    DefaultRetryIntervalMs,
		MaxRetries:         DefaultMaxRetries,
	}
}

// withDefaults fills zero values the way a partial config.json is merged
// over the defaults.
func (d Document) withDefaults() Document {
	if d.AdvanceBookingDays == 0 {
		d.AdvanceBookingDays = DefaultAdvanceDays
	}
	if d.RetryIntervalMs == 0 {
		d.RetryIntervalMs = DefaultRetryIntervalMs
	}
	if d.MaxRetries == 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.Slots == nil {
		d.Slots = []booking.Slot{}
	}
	return d
}

func (d Document) Validate() error {
	var errs []error
	if d.AdvanceBookingDays < 1 {
		errs = append(errs, fmt.Errorf("advanceBookingDays must be >= 1"))
	}
	if d.RetryIntervalMs < 1 {
		errs = append(errs, fmt.Errorf("retryIntervalMs must be >= 1"))
	}
	if d.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("maxRetries must be >= 1"))
	}
	if d.ClassDurationMinutes < 0 {
		errs = append(errs, fmt.Errorf("classDurationMinutes must not be negative"))
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	for i, s := range d.Slots {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("slots[%d]: %w", i, err))
		}
	}
	if d.ErrorRules != nil {
		for code, kind := range d.ErrorRules.Codes {
			if _, ok := ParseKind(kind); !ok {
				errs = append(errs, fmt.Errorf("errorRules.codes[%s]: unknown kind %q", code, kind))
			}
		}
	}
	return errors.Join(errs...)
}

func (d Document) RetryInterval() time.Duration {
	return time.Duration(d.RetryIntervalMs) * time.Millisecond
}

func (d Document) ClassDuration() time.Duration {
	if d.ClassDurationMinutes <= 0 {
		return DefaultClassMinutes * time.Minute
	}
	return time.Duration(d.ClassDurationMinutes) * time.Minute
}

// Location resolves Timezone, falling back to the process local zone.
func (d Document) Location() *time.Location {
	if d.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (d Document) AuthState() booking.AuthState {
	a := booking.AuthState{
		Email:        d.Auth.Email,
		Token:        d.Auth.JWT,
		RefreshToken: d.Auth.RefreshToken,
		UserID:       d.Auth.UserID,
		TenantID:     d.Auth.TenantID,
		LocationID:   d.Auth.LocationID,
	}
	if d.Auth.ExpiresAt > 0 {
		a.ExpiresAt = time.UnixMilli(d.Auth.ExpiresAt)
	}
	return a
}

func (d *Document) SetAuthState(a booking.AuthState) {
	d.Auth = Auth{
		Email:        a.Email,
		JWT:          a.Token,
		RefreshToken: a.RefreshToken,
		UserID:       a.UserID,
		TenantID:     a.TenantID,
		LocationID:   a.LocationID,
	}
	if !a.ExpiresAt.IsZero() {
		d.Auth.ExpiresAt = a.ExpiresAt.UnixMilli()
	}
}

// ParseKind maps the names used in errorRules.codes to booking kinds.
func ParseKind(s string) (booking.Kind, bool) {
	for _, k := range []booking.Kind{
		booking.KindTooEarly, booking.KindFull, booking.KindAuth,
		booking.KindNotFound, booking.KindNetwork,
	} {
		if k.String() == s {
			return k, true
		}
	}
	return booking.KindUnknown, false
}
