package booking

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Anticipation is how long before the window opens the attempt engine starts firing.
const Anticipation = 30 * time.Second

// Weekday is a time.Weekday that serialises as a lowercase English day name.
type Weekday time.Weekday

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts a full English day name in any case.
func ParseWeekday(s string) (Weekday, error) {
	d, ok := dayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid day %q (want monday..sunday)", s)
	}
	return Weekday(d), nil
}

func (w Weekday) String() string { return strings.ToLower(time.Weekday(w).String()) }

func (w Weekday) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Weekday) UnmarshalText(b []byte) error {
	d, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*w = d
	return nil
}

var hhmm = regexp.MustCompile(`^\d{2}:\d{2}$`)

// ParseClock splits an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	if !hhmm.MatchString(s) {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hour, _ = strconv.Atoi(s[:2])
	minute, _ = strconv.Atoi(s[3:])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q (out of range)", s)
	}
	return hour, minute, nil
}

// Slot is a recurring weekly booking intent.
type Slot struct {
	Day       Weekday `json:"day" yaml:"day"`
	Time      string  `json:"time" yaml:"time"`
	ClassName string  `json:"className" yaml:"className"`
}

func (s Slot) Validate() error {
	if _, _, err := ParseClock(s.Time); err != nil {
		return err
	}
	if strings.TrimSpace(s.ClassName) == "" {
		return fmt.Errorf("class name required")
	}
	return nil
}

// Key identifies a slot for diffing running tasks against edited settings.
// Duplicate slots share a key; callers disambiguate by occurrence.
func (s Slot) Key() string {
	return s.Day.String() + "@" + s.Time + "/" + strings.ToLower(strings.TrimSpace(s.ClassName))
}

func (s Slot) String() string { return fmt.Sprintf("%s %s %s", s.ClassName, s.Day, s.Time) }

// ScheduledBooking is one weekly cycle of a slot.
type ScheduledBooking struct {
	Slot      Slot
	ClassDate time.Time
	OpensAt   time.Time
	AttemptAt time.Time
}

// AuthState is the credential shared by every slot cycle.
type AuthState struct {
	Email        string
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       int64
	TenantID     int64
	LocationID   int64
}

func (a AuthState) LoggedIn() bool { return a.Token != "" }

// ClassRecord is a class date as returned by the provider.
type ClassRecord struct {
	ID        int64             `json:"id"`
	Date      string            `json:"date"`
	Name      string            `json:"name"`
	StartTime string            `json:"startTime"`
	EndTime   string            `json:"endTime"`
	Limit     int               `json:"limit"`
	ClassID   int64             `json:"classId"`
	Bookings  []json.RawMessage `json:"bookings"`

	// Older payloads carry the name here instead.
	ClassName string `json:"className,omitempty"`
}

func (c ClassRecord) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ClassName
}

// StartHHMM returns the "HH:MM" prefix of the start time.
func (c ClassRecord) StartHHMM() string {
	if len(c.StartTime) < 5 {
		return c.StartTime
	}
	return c.StartTime[:5]
}

// ResolvedClass is the cache entry the attempt engine books against.
// It is valid for one attempt cycle at most.
type ResolvedClass struct {
	ID     int64
	Name   string
	Limit  int
	Booked int
}

func Resolve(c ClassRecord) *ResolvedClass {
	return &ResolvedClass{ID: c.ID, Name: c.DisplayName(), Limit: c.Limit, Booked: len(c.Bookings)}
}

// BookingResult is the provider's answer to a successful booking.
type BookingResult struct {
	ID       int64 `json:"id"`
	StatusID int64 `json:"statusId"`
	Status   struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"status"`
}

// Tokens is what login and refresh hand back.
type Tokens struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// Identity is the provider's view of the logged-in user.
type Identity struct {
	UserID     int64
	TenantID   int64
	LocationID int64
}
