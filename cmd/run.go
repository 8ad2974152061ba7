package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/example/octiv-sniper/internal/authguard"
	"github.com/example/octiv-sniper/internal/notify"
	"github.com/example/octiv-sniper/internal/prefetch"
	"github.com/example/octiv-sniper/internal/scheduler"
	"github.com/example/octiv-sniper/internal/store"
	"github.com/example/octiv-sniper/internal/web"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var statusAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the booking daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := a.load(ctx)
			if err != nil {
				return err
			}
			auth, err := requireLogin(doc)
			if err != nil {
				return err
			}

			guard := authguard.New(auth, a.api, a.store, a.log)
			s, err := newScheduler(a, doc, guard)
			if err != nil {
				return err
			}

			if statusAddr != "" {
				srv := &web.Server{Schedule: s, Auth: guard, Log: a.log}
				go func() {
					if err := web.Start(ctx, statusAddr, srv.Routes(), a.log); err != nil {
						a.log.Error().Err(err).Msg("status server stopped")
					}
				}()
			}

			changes, err := a.store.Watch(ctx)
			if err != nil {
				return err
			}
			go follow(ctx, a, guard, s, changes)

			if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				a.log.Debug().Err(err).Msg("sd_notify")
			}
			defer daemon.SdNotify(false, daemon.SdNotifyStopping) //nolint:errcheck

			return s.RunDaemon(ctx, doc.Slots)
		},
	}

	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve a read-only status API on this address, e.g. 127.0.0.1:8080")
	return cmd
}

func newScheduler(a *app, doc store.Document, guard *authguard.Guard) (*scheduler.Scheduler, error) {
	s := &scheduler.Scheduler{
		Calc:          calculator(doc),
		Guard:         guard,
		Resolver:      &prefetch.Resolver{API: a.api},
		Booker:        a.api,
		RetryInterval: doc.RetryInterval(),
		MaxRetries:    doc.MaxRetries,
		Log:           a.log,
	}
	if a.cfg.NotifyEnabled() {
		tg, err := notify.NewTelegram(a.cfg.TelegramToken, a.cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		s.Notifier = tg
	}
	return s, nil
}

// follow applies settings edits to the running daemon. Slots are
// reconciled, a newer login replaces the guard's state and error rules are
// swapped on the client. Timing settings need a restart.
func follow(ctx context.Context, a *app, guard *authguard.Guard, s *scheduler.Scheduler, changes <-chan store.Document) {
	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-changes:
			if !ok {
				return
			}
			a.log.Info().Int("slots", len(doc.Slots)).Msg("settings changed")
			a.api.SetRules(rulesFrom(doc))
			if st := doc.AuthState(); guard.Adopt(st) {
				a.log.Info().Str("email", st.Email).Msg("picked up new login")
			}
			if err := s.Reconcile(doc.Slots); err != nil {
				a.log.Warn().Err(err).Msg("reconcile failed")
			}
		}
	}
}
