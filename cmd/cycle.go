package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/example/octiv-sniper/internal/attempt"
	"github.com/example/octiv-sniper/internal/authguard"
	"github.com/example/octiv-sniper/internal/store"
	"github.com/spf13/cobra"
)

func newCycleCmd() *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "cycle <index>",
		Short: "Run one booking cycle for a slot and exit",
		Long: "Waits for the slot's next booking window and runs a single cycle. " +
			"With --now the attempts start immediately against the upcoming class.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}

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
			if idx < 0 || idx >= len(doc.Slots) {
				return fmt.Errorf("slot %d: %w", idx, store.ErrNotFound)
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

			calc := calculator(doc)
			start := time.Now()
			sb, err := calc.Upcoming(start, doc.Slots[idx])
			if err != nil {
				return err
			}
			if now {
				sb.OpensAt, sb.AttemptAt = start, start
			} else {
				sb = calc.RollForward(start, sb)
			}

			out, _ := s.RunSingleCycle(ctx, sb)
			w := cmd.OutOrStdout()
			switch out.Status {
			case attempt.Success:
				fmt.Fprintf(w, "booked %s (booking %d) after %d attempts\n", sb.Slot, out.BookingID, out.Real)
				return nil
			case attempt.Cancelled:
				return context.Canceled
			default:
				if out.LastErr == nil {
					return fmt.Errorf("could not book %s after %d attempts", sb.Slot, out.Real)
				}
				return fmt.Errorf("could not book %s after %d attempts: %w", sb.Slot, out.Real, out.LastErr)
			}
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "attempt immediately instead of waiting for the window")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <bookingId>",
		Short: "Cancel a booking by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid booking id %q", args[0])
			}

			ctx := context.Background()
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
			if err := a.api.Cancel(ctx, auth.Token, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled booking %d\n", id)
			return nil
		},
	}
}
