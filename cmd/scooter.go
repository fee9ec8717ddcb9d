package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newScooterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scooter",
		Short: "Manage the scooter fleet",
	}
	cmd.AddCommand(newScooterAddCmd())
	cmd.AddCommand(newScooterListCmd())
	return cmd
}

func newScooterAddCmd() *cobra.Command {
	var label string

	c := &cobra.Command{
		Use:   "add",
		Short: "Register a scooter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sc, err := a.store.CreateScooter(ctx, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created scooter %s (%q)\n", sc.ID, sc.Label)
			return nil
		},
	}

	c.Flags().StringVar(&label, "label", "", "display label")
	return c
}

func newScooterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scooters and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			scooters, err := a.store.ListScooters(ctx)
			if err != nil {
				return err
			}
			for _, sc := range scooters {
				state := "free"
				switch {
				case sc.ActiveRentalID != nil:
					state = fmt.Sprintf("rented (rental %s)", *sc.ActiveRentalID)
				case sc.ReservationID != nil:
					state = fmt.Sprintf("reserved (reservation %s)", *sc.ReservationID)
				}
				fmt.Fprintf(os.Stdout, "%s  %-20q %s\n", sc.ID, sc.Label, state)
			}
			return nil
		},
	}
}
