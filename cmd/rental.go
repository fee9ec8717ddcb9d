package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/scooter-rentals/internal/store"
)

func newRentalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rental",
		Short: "Manage scooter rentals",
	}
	cmd.AddCommand(newRentalStartCmd())
	cmd.AddCommand(newRentalExtendCmd())
	cmd.AddCommand(newRentalEndCmd())
	cmd.AddCommand(newRentalListCmd())
	return cmd
}

func newRentalStartCmd() *cobra.Command {
	var (
		userID    string
		scooterID string
		methodID  string
		kind      string
		duration  time.Duration
	)

	c := &cobra.Command{
		Use:   "start",
		Short: "Start a rental (static: prepaid fixed duration; dynamic: pay-as-you-go)",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			sid, err := uuid.Parse(scooterID)
			if err != nil {
				return fmt.Errorf("invalid --scooter: %w", err)
			}
			mid, err := uuid.Parse(methodID)
			if err != nil {
				return fmt.Errorf("invalid --method: %w", err)
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var rental store.Rental
			switch kind {
			case "static":
				if duration <= 0 {
					return fmt.Errorf("--duration is required for static rentals")
				}
				rental, err = a.rentals.StartStatic(ctx, uid, sid, mid, duration)
			case "dynamic":
				rental, err = a.rentals.StartDynamic(ctx, uid, sid, mid)
			default:
				return fmt.Errorf("invalid --kind %q (want static or dynamic)", kind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "started %s rental %s on scooter %s\n", rental.Kind, rental.ID, rental.ScooterID)
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "user id")
	c.Flags().StringVar(&scooterID, "scooter", "", "scooter id")
	c.Flags().StringVar(&methodID, "method", "", "payment method id")
	c.Flags().StringVar(&kind, "kind", "dynamic", "rental kind: static or dynamic")
	c.Flags().DurationVar(&duration, "duration", 0, "static rental duration, e.g. 2h")
	return c
}

func newRentalExtendCmd() *cobra.Command {
	var id string

	c := &cobra.Command{
		Use:   "extend",
		Short: "Bill the next window of a dynamic rental now",
		RunE: func(cmd *cobra.Command, args []string) error {
			rid, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.rentals.Extend(ctx, rid); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "rental extended")
			return nil
		},
	}

	c.Flags().StringVar(&id, "id", "", "rental id")
	return c
}

func newRentalEndCmd() *cobra.Command {
	var id string

	c := &cobra.Command{
		Use:   "end",
		Short: "End a rental and free its scooter",
		RunE: func(cmd *cobra.Command, args []string) error {
			rid, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.rentals.End(ctx, rid); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "rental ended")
			return nil
		},
	}

	c.Flags().StringVar(&id, "id", "", "rental id")
	return c
}

func newRentalListCmd() *cobra.Command {
	var userID string

	c := &cobra.Command{
		Use:   "list",
		Short: "List a user's rental history",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.rentals.ByUser(ctx, uid)
			if err != nil {
				return err
			}
			for _, h := range rows {
				state := "active"
				if h.EndedAt != nil {
					state = "ended " + h.EndedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(os.Stdout, "%s  %-8s %-20q started %s  %s\n",
					h.ID, h.Kind, h.ScooterLabel, h.CreatedAt.Format("2006-01-02 15:04"), state)
			}
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "user id")
	return c
}
