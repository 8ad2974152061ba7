package octiv

import (
	"strings"

	"github.com/example/octiv-sniper/internal/domain/booking"
)

// Rules maps provider error responses to booking kinds.
//
// Codes are matched exactly against a structured error code in the body.
// The keyword lists are a fallback for responses that only carry free text;
// the provider's wording is not documented, so the lists are configurable.
type Rules struct {
	Codes    map[string]booking.Kind `json:"-"`
	TooEarly []string                `json:"tooEarly,omitempty"`
	Full     []string                `json:"full,omitempty"`
	Auth     []string                `json:"auth,omitempty"`
}

func DefaultRules() Rules {
	return Rules{
		TooEarly: []string{"too early", "early", "not yet", "advance", "not open"},
		Full:     []string{"full", "complet", "capacity", "no spots", "no space"},
		Auth:     []string{"unauthenticated", "unauthorized", "expired token", "token expired", "jwt"},
	}
}

func (r Rules) IsZero() bool {
	return len(r.Codes) == 0 && len(r.TooEarly) == 0 && len(r.Full) == 0 && len(r.Auth) == 0
}

// Extend returns r with the keywords and codes of extra appended.
func (r Rules) Extend(extra Rules) Rules {
	out := Rules{
		TooEarly: append(append([]string(nil), r.TooEarly...), extra.TooEarly...),
		Full:     append(append([]string(nil), r.Full...), extra.Full...),
		Auth:     append(append([]string(nil), r.Auth...), extra.Auth...),
	}
	if len(r.Codes)+len(extra.Codes) > 0 {
		out.Codes = make(map[string]booking.Kind, len(r.Codes)+len(extra.Codes))
		for k, v := range r.Codes {
			out.Codes[k] = v
		}
		for k, v := range extra.Codes {
			out.Codes[k] = v
		}
	}
	return out
}

// Classify decides the kind of a failed response. Order: 401, structured
// code, unambiguous statuses, keyword fallback, then 403 as auth.
func (r Rules) Classify(status int, code, msg string) booking.Kind {
	if status == 401 {
		return booking.KindAuth
	}
	if code != "" {
		if k, ok := r.Codes[code]; ok {
			return k
		}
	}
	switch {
	case status == 404:
		return booking.KindNotFound
	case status == 408 || status == 429 || status >= 500:
		return booking.KindNetwork
	}
	if k := r.Match(msg); k != booking.KindUnknown {
		return k
	}
	if status == 403 {
		return booking.KindAuth
	}
	return booking.KindUnknown
}

// Match applies the keyword lists to a free-text message.
func (r Rules) Match(msg string) booking.Kind {
	m := strings.ToLower(msg)
	if m == "" {
		return booking.KindUnknown
	}
	if containsAny(m, r.TooEarly) {
		return booking.KindTooEarly
	}
	if containsAny(m, r.Full) {
		return booking.KindFull
	}
	if containsAny(m, r.Auth) {
		return booking.KindAuth
	}
	return booking.KindUnknown
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
