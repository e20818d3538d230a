// Package cli defines the cobra command tree for vsched.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/evcraddock/visit-scheduler/internal/client"
	"github.com/evcraddock/visit-scheduler/internal/db"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
)

var (
	flagFormat string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vsched",
		Short:         "Schedule property visits for agents",
		Long:          "Book, confirm, reschedule and cancel property visits without double-booking agents. Runs the scheduling server and talks to it from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database path or postgres:// DSN (default: $VS_DB or ~/.config/vsched/visits.db)")

	root.AddCommand(
		newBookCmd(),
		newShowCmd(),
		newUpdateCmd(),
		newRescheduleCmd(),
		newConfirmCmd(),
		newCancelCmd(),
		newDoneCmd(),
		newHistoryCmd(),
		newICSCmd(),
		newBulkCmd(),
		newCheckCmd(),
		newSlotsCmd(),
		newCalendarCmd(),
		newAgentsCmd(),
		newPropertiesCmd(),
		newKeysCmd(),
		newServeCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// dbPath resolves the database from the --db flag, VS_DB, or the default path.
func dbPath() (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	if v := os.Getenv("VS_DB"); v != "" {
		return v, nil
	}
	return db.DefaultPath()
}

// openDB opens the database for commands that work on it directly.
func openDB() (*sqlx.DB, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	return db.Open(path)
}

// newAPIClient creates an HTTP client for the vsched API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sqlx.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}

// explain adds CLI hints to API errors.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Kind == schedule.KindConflict && len(apiErr.ConflictIDs) > 0 {
		return fmt.Errorf("agent is already booked (%s); pass --ack to book anyway", strings.Join(apiErr.ConflictIDs, ", "))
	}
	if apiErr.StatusCode == 401 {
		return fmt.Errorf("%s; run 'vsched login' to authenticate", apiErr.Error())
	}
	return err
}

// whenLayouts are accepted for --at and --to, besides RFC 3339.
var whenLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04"}

// parseWhen reads an instant as RFC 3339 or as a local wall-clock time.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC 3339 or YYYY-MM-DD HH:MM)", s)
}

func parseInt64(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, s)
	}
	return id, nil
}
