package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/example/octiv-sniper/internal/config"
	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/logx"
	"github.com/example/octiv-sniper/internal/octiv"
	"github.com/example/octiv-sniper/internal/schedule"
	"github.com/example/octiv-sniper/internal/seal"
	"github.com/example/octiv-sniper/internal/store"
	"github.com/rs/zerolog"
)

// app is what every command needs: env config, logger, settings store and
// the provider client.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	store *store.Store
	api   *octiv.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logx.New(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})

	var sealer *seal.Sealer
	if len(cfg.Secret) > 0 {
		if sealer, err = seal.New(cfg.Secret); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, store.Config{
		Driver: cfg.StoreDriver,
		Path:   cfg.SettingsPath,
		DSN:    cfg.StoreDSN,
		Sealer: sealer,
		Log:    log,
	})
	if err != nil {
		return nil, err
	}

	api := octiv.New(octiv.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.RequestTimeout,
		RatePerSec: cfg.RatePerSec,
	})
	return &app{cfg: cfg, log: log, store: st, api: api}, nil
}

func (a *app) close() { _ = a.store.Close() }

// load reads the settings document and applies its error rules to the client.
func (a *app) load(ctx context.Context) (store.Document, error) {
	doc, err := a.store.Load(ctx)
	if err != nil {
		return store.Document{}, err
	}
	a.api.SetRules(rulesFrom(doc))
	return doc, nil
}

func calculator(doc store.Document) schedule.Calculator {
	return schedule.Calculator{
		AdvanceDays:   doc.AdvanceBookingDays,
		ClassDuration: doc.ClassDuration(),
		Location:      doc.Location(),
	}
}

func rulesFrom(doc store.Document) octiv.Rules {
	er := doc.ErrorRules
	if er == nil {
		return octiv.DefaultRules()
	}
	extra := octiv.Rules{TooEarly: er.TooEarly, Full: er.Full, Auth: er.Auth}
	if len(er.Codes) > 0 {
		extra.Codes = make(map[string]booking.Kind, len(er.Codes))
		for code, name := range er.Codes {
			if k, ok := store.ParseKind(name); ok {
				extra.Codes[code] = k
			}
		}
	}
	if er.Replace {
		return extra
	}
	return octiv.DefaultRules().Extend(extra)
}

func requireLogin(doc store.Document) (booking.AuthState, error) {
	auth := doc.AuthState()
	if !auth.LoggedIn() {
		return auth, fmt.Errorf("%w: run 'octivsniper login' first", booking.ErrNotLoggedIn)
	}
	return auth, nil
}
