package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newMethodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "method",
		Short: "Manage stored payment methods",
	}
	cmd.AddCommand(newMethodAddCmd())
	return cmd
}

func newMethodAddCmd() *cobra.Command {
	var (
		userID      string
		provider    string
		credentials string
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Store a payment method (provider tag + opaque credential JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			if !json.Valid([]byte(credentials)) {
				return fmt.Errorf("--credentials must be valid JSON")
			}

			ctx := context.Background()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.store.InsertPaymentMethod(ctx, uid, strings.ToLower(provider), []byte(credentials))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created payment method %s (provider %s)\n", m.ID, m.Provider)
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "owning user id")
	c.Flags().StringVar(&provider, "provider", "", "provider tag (payline, vaultpay)")
	c.Flags().StringVar(&credentials, "credentials", "{}", "provider-specific credential JSON")
	return c
}
