package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNoSlots     = errors.New("no slots configured")
	ErrNotLoggedIn = errors.New("not logged in")
)

// Kind classifies a failed provider call for the attempt engine.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTooEarly
	KindFull
	KindAuth
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTooEarly:
		return "too_early"
	case KindFull:
		return "full"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Kinded is implemented by errors that know their Kind.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf walks the error chain for a Kinded error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Error attaches a Kind to an arbitrary error.
func Error(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return kindError{kind: kind, err: err}
}

// Errorf is Error with fmt formatting.
func Errorf(kind Kind, format string, args ...any) error {
	return kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

type kindError struct {
	kind Kind
	err  error
}

func (e kindError) Error() string { return e.err.Error() }
func (e kindError) Unwrap() error { return e.err }
func (e kindError) Kind() Kind    { return e.kind }
