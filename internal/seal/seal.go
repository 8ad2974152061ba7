// Package seal encrypts and authenticates provider tokens before they are
// written to the settings store.
package seal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const (
	prefix = "sealed:"
	name   = "octiv-token"
	info   = "octivsniper token seal v1"
)

var ErrNoSecret = errors.New("seal: empty secret")

type Sealer struct {
	sc *securecookie.SecureCookie
}

// New derives a hash key and a block key from secret with HKDF-SHA256.
func New(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	keys := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), keys); err != nil {
		return nil, fmt.Errorf("seal: derive keys: %w", err)
	}
	sc := securecookie.New(keys[:32], keys[32:])
	sc.MaxAge(0) // tokens carry their own expiry
	sc.MaxLength(0)
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Sealer{sc: sc}, nil
}

// Seal returns an opaque, prefixed form of v. Empty values stay empty.
func (s *Sealer) Seal(v string) (string, error) {
	if v == "" || s == nil {
		return v, nil
	}
	enc, err := s.sc.Encode(name, v)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return prefix + enc, nil
}

// Open reverses Seal. Values without the prefix are returned as they are so
// a plaintext settings file keeps loading after a secret is introduced.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if s == nil {
		return "", errors.New("seal: value is sealed but no secret is configured")
	}
	var out string
	if err := s.sc.Decode(name, strings.TrimPrefix(v, prefix), &out); err != nil {
		return "", fmt.Errorf("seal: open: %w", err)
	}
	return out, nil
}

func IsSealed(v string) bool { return strings.HasPrefix(v, prefix) }

// GenerateSecret returns fresh random key material for OCTIV_SECRET.
func GenerateSecret() []byte {
	return securecookie.GenerateRandomKey(32)
}
