package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/visit-scheduler/internal/auth"
)

// newKeysCmd manages API keys directly in the server's database, so it runs
// on the server host rather than through the API.
func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys (runs against the local database)",
	}

	var owner string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key",
		Long:  "Create an API key and print it once. Only a hash is stored.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			raw, key, err := auth.NewAPIKeyStore(database).Create(cmd.Context(), strings.Join(args, " "), owner)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"key": raw, "api_key": key})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "API key #%d created: %s\n", key.ID, key.Name)
			fmt.Fprintf(w, "\n  %s\n\n", raw)
			fmt.Fprintln(w, "Store it now; it cannot be shown again.")
			return nil
		},
	}
	create.Flags().StringVar(&owner, "owner", "", "who the key belongs to (shown in logs)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			keys, err := auth.NewAPIKeyStore(database).List(cmd.Context())
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), keys)
			}
			return printAPIKeys(cmd.OutOrStdout(), keys)
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseInt64("key", args[0])
			if err != nil {
				return err
			}
			database, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(database)

			if err := auth.NewAPIKeyStore(database).Delete(cmd.Context(), id); err != nil {
				if errors.Is(err, auth.ErrKeyNotFound) {
					return fmt.Errorf("API key #%d not found", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key #%d revoked.\n", id)
			return nil
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}
