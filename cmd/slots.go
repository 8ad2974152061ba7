package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/example/octiv-sniper/internal/schedule"
	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <day> <HH:MM> <class name...>",
		Short: "Add a weekly slot, e.g. add monday 07:00 CrossFit",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := booking.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			slot := booking.Slot{Day: day, Time: args[1], ClassName: strings.Join(args[2:], " ")}
			if err := slot.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.AddSlot(ctx, slot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", slot)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := a.store.Load(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(doc.Slots) == 0 {
				fmt.Fprintln(out, "no slots configured")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tDAY\tTIME\tCLASS")
			for i, s := range doc.Slots {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, s.Day, s.Time, s.ClassName)
			}
			return w.Flush()
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a slot by its index from 'list'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.store.RemoveSlot(ctx, idx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", removed)
			return nil
		},
	}
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show when each slot's booking window opens",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			doc, err := a.store.Load(ctx)
			if err != nil {
				return err
			}
			if len(doc.Slots) == 0 {
				return booking.ErrNoSlots
			}

			calc := calculator(doc)
			now := time.Now()
			view, err := calc.View(now, doc.Slots)
			if err != nil {
				return err
			}

			loc := doc.Location()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLASS\tCLASS DATE\tWINDOW OPENS\tFIRST ATTEMPT\tIN")
			for _, sb := range view {
				in := "passed"
				if d := sb.AttemptAt.Sub(now); d > 0 {
					in = schedule.FormatUntil(d)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					sb.Slot.ClassName,
					sb.ClassDate.In(loc).Format("Mon 02 Jan 15:04"),
					sb.OpensAt.In(loc).Format("Mon 02 Jan 15:04:05"),
					sb.AttemptAt.In(loc).Format("Mon 02 Jan 15:04:05"),
					in)
			}
			return w.Flush()
		},
	}
}
