package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/example/octiv-sniper/internal/prefetch"
	"github.com/example/octiv-sniper/internal/schedule"
	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check the stored login and that every slot matches a listed class",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			out := cmd.OutOrStdout()

			id, err := a.api.WhoAmI(ctx, auth.Token)
			if err != nil {
				return fmt.Errorf("token check: %w", err)
			}
			fmt.Fprintf(out, "token ok: user %d, tenant %d, location %d\n", id.UserID, id.TenantID, id.LocationID)

			loc := doc.Location()
			today := time.Now().In(loc)
			classes, err := a.api.ListClasses(ctx, auth.Token, auth.TenantID, auth.LocationID, schedule.DateString(today))
			if err != nil {
				return fmt.Errorf("list classes: %w", err)
			}
			fmt.Fprintf(out, "%d classes listed for %s\n", len(classes), schedule.DateString(today))
			for _, c := range classes {
				fmt.Fprintf(out, "  %s  %-30s %d/%d\n", c.StartHHMM(), c.DisplayName(), len(c.Bookings), c.Limit)
			}

			calc := calculator(doc)
			res := &prefetch.Resolver{API: a.api}
			for i, s := range doc.Slots {
				sb, err := calc.Upcoming(time.Now(), s)
				if err != nil {
					return err
				}
				rc, err := res.Resolve(ctx, auth, s, sb.ClassDate)
				switch {
				case err != nil:
					fmt.Fprintf(out, "[%d] %s on %s: %v\n", i, s, schedule.DateString(sb.ClassDate), err)
				case rc == nil:
					fmt.Fprintf(out, "[%d] %s on %s: not listed yet\n", i, s, schedule.DateString(sb.ClassDate))
				default:
					fmt.Fprintf(out, "[%d] %s on %s: class %d %q (%d/%d)\n", i, s, schedule.DateString(sb.ClassDate), rc.ID, rc.Name, rc.Booked, rc.Limit)
				}
			}
			return nil
		},
	}
}
