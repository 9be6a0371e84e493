package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/store/pgstore"
)

// ErrResetAborted is returned when the reset prompt is not confirmed.
var ErrResetAborted = errors.New("reset aborted")

// NewResetCommand creates the reset command, which empties the record store.
func NewResetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record in the database",
		Long: `Delete every record and field value and restart record ids at 1.

This cannot be undone. Without --yes the command asks for confirmation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if !yes && !confirm(cmd, pgstore.DatabaseName(cfg.Database.URL)) {
				return ErrResetAborted
			}

			pool, err := pgstore.Connect(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pgstore.New(pool).Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "records reset")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirm asks on stderr and reads the answer from stdin.
func confirm(cmd *cobra.Command, database string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "Delete all records in %q? Type yes to continue: ", database)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}
