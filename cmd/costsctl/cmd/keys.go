package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnmchuo/costs-service/internal/auth"
)

func newKeysCmd(o *options) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys allowed to write the catalog",
	}

	var name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := o.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			key, err := generateKey()
			if err != nil {
				return err
			}
			apiKey := &auth.APIKey{Name: name, KeyHash: auth.HashKey(key), Active: true}
			if err := auth.NewPostgresStore(pool).Create(ctx, apiKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", apiKey.ID, key)
			return nil
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "label for the key")

	revokeCmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Deactivate an API key",
		Long:  "Deactivate an API key. Cached lookups keep it usable for up to five minutes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := o.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := auth.NewPostgresStore(pool).Revoke(ctx, args[0]); err != nil {
				if errors.Is(err, auth.ErrKeyNotFound) {
					return fmt.Errorf("no api key with id %s", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := o.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			keys, err := auth.NewPostgresStore(pool).List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tCREATED")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", k.ID, k.Name, k.Active, k.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	keysCmd.AddCommand(createCmd, revokeCmd, listCmd)
	return keysCmd
}

func generateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return "ck_" + hex.EncodeToString(b), nil
}
