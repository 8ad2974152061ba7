// Package store persists the settings document: slots, auth and tuning.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/seal"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"
)

var ErrNotFound = errors.New("store: not found")

// backend moves raw document bytes. read returns (nil, nil) when nothing
// has been stored yet.
type backend interface {
	read(ctx context.Context) ([]byte, error)
	write(ctx context.Context, b []byte) error
	close() error
}

type Config struct {
	Driver string // file|sqlite|postgres
	Path   string // settings file for the file driver
	DSN    string // sqlite path or postgres url
	Sealer *seal.Sealer
	Log    zerolog.Logger
}

type Store struct {
	mu     sync.Mutex
	b      backend
	format format
	sealer *seal.Sealer
	log    zerolog.Logger
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	var (
		b   backend
		f   = formatJSON
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("store: settings path is required")
		}
		f = formatFor(cfg.Path)
		b = &fileBackend{path: cfg.Path}
	case "sqlite":
		b, err = openSQLite(ctx, cfg.DSN)
	case "postgres":
		b, err = openPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return &Store{b: b, format: f, sealer: cfg.Sealer, log: cfg.Log}, nil
}

func (s *Store) Close() error { return s.b.close() }

// Load returns the stored document merged over the defaults. A store that
// has never been written yields Default().
func (s *Store) Load(ctx context.Context) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Save(ctx context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, d)
}

// Update is a read-modify-write under the store lock.
func (s *Store) Update(ctx context.Context, fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&d); err != nil {
		return err
	}
	return s.save(ctx, d)
}

// UpdateAuth replaces only the auth section so concurrent slot edits survive.
func (s *Store) UpdateAuth(ctx context.Context, a booking.AuthState) error {
	return s.Update(ctx, func(d *Document) error {
		d.SetAuthState(a)
		return nil
	})
}

func (s *Store) AddSlot(ctx context.Context, slot booking.Slot) error {
	if err := slot.Validate(); err != nil {
		return err
	}
	return s.Update(ctx, func(d *Document) error {
		d.Slots = append(d.Slots, slot)
		return nil
	})
}

// RemoveSlot deletes the slot at index and returns it.
func (s *Store) RemoveSlot(ctx context.Context, index int) (booking.Slot, error) {
	var removed booking.Slot
	err := s.Update(ctx, func(d *Document) error {
		if index < 0 || index >= len(d.Slots) {
			return fmt.Errorf("slot %d: %w", index, ErrNotFound)
		}
		removed = d.Slots[index]
		d.Slots = append(d.Slots[:index:index], d.Slots[index+1:]...)
		return nil
	})
	return removed, err
}

func (s *Store) load(ctx context.Context) (Document, error) {
	raw, err := s.b.read(ctx)
	if err != nil {
		return Document{}, err
	}
	return s.decode(raw)
}

func (s *Store) decode(raw []byte) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Default(), nil
	}
	var d Document
	err := s.format.unmarshal(raw, &d)
	if err != nil {
		return Document{}, fmt.Errorf("store: decode settings: %w", err)
	}
	if d.Auth.JWT, err = s.sealer.Open(d.Auth.JWT); err != nil {
		return Document{}, fmt.Errorf("store: jwt: %w", err)
	}
	if d.Auth.RefreshToken, err = s.sealer.Open(d.Auth.RefreshToken); err != nil {
		return Document{}, fmt.Errorf("store: refreshToken: %w", err)
	}
	return d.withDefaults(), nil
}

func (s *Store) save(ctx context.Context, d Document) error {
	d = d.withDefaults()
	if err := d.Validate(); err != nil {
		return fmt.Errorf("store: invalid settings: %w", err)
	}
	var err error
	if d.Auth.JWT, err = s.sealer.Seal(d.Auth.JWT); err != nil {
		return err
	}
	if d.Auth.RefreshToken, err = s.sealer.Seal(d.Auth.RefreshToken); err != nil {
		return err
	}
	b, err := s.format.marshal(d)
	if err != nil {
		return fmt.Errorf("store: encode settings: %w", err)
	}
	return s.b.write(ctx, b)
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func (f format) marshal(d Document) ([]byte, error) {
	if f == formatYAML {
		return yaml.Marshal(d)
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (f format) unmarshal(b []byte, d *Document) error {
	if f == formatYAML {
		return yaml.Unmarshal(b, d)
	}
	return json.Unmarshal(b, d)
}
