package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/scooter-rentals/internal/internaltypes"
)

func newReservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservation",
		Short: "Manage scooter reservations",
	}
	cmd.AddCommand(newReservationStartCmd())
	cmd.AddCommand(newReservationEndCmd())
	cmd.AddCommand(newReservationShowCmd())
	return cmd
}

func newReservationStartCmd() *cobra.Command {
	var userID, scooterID string

	c := &cobra.Command{
		Use:   "start",
		Short: "Reserve a scooter for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			sid, err := uuid.Parse(scooterID)
			if err != nil {
				return fmt.Errorf("invalid --scooter: %w", err)
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.reservations.Start(ctx, uid, sid)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "reserved scooter %s for user %s until %s (reservation %s)\n",
				res.ScooterID, res.UserID, res.EndsAt.Format("2006-01-02 15:04:05 MST"), res.ID)
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "user id")
	c.Flags().StringVar(&scooterID, "scooter", "", "scooter id")
	return c
}

func newReservationEndCmd() *cobra.Command {
	var id string

	c := &cobra.Command{
		Use:   "end",
		Short: "Cancel a reservation",
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

			err = a.reservations.End(ctx, rid)
			if errors.Is(err, internaltypes.ErrReservationGone) {
				fmt.Fprintln(os.Stdout, "reservation already ended")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "reservation ended")
			return nil
		},
	}

	c.Flags().StringVar(&id, "id", "", "reservation id")
	return c
}

func newReservationShowCmd() *cobra.Command {
	var userID, scooterID string

	c := &cobra.Command{
		Use:   "show",
		Short: "Show the live reservation for a user or a scooter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			lookup := a.reservations.ByUser
			raw := userID
			if scooterID != "" {
				lookup = a.reservations.ByScooter
				raw = scooterID
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", raw, err)
			}

			d, err := lookup(ctx, id)
			if errors.Is(err, internaltypes.ErrNotFound) {
				fmt.Fprintln(os.Stdout, "no reservation found")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "reservation %s: user %s, scooter %s (%q), ends %s\n",
				d.ID, d.UserID, d.ScooterID, d.ScooterLabel, d.EndsAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "user id")
	c.Flags().StringVar(&scooterID, "scooter", "", "scooter id")
	return c
}
