package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/visit-scheduler/internal/client"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

func newBookCmd() *cobra.Command {
	var (
		propertyID, agentID int64
		req                 schedule.CreateRequest
		at                  string
	)

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a property visit",
		Long: `Book a visit for a client with an agent at a property.

Times are RFC 3339 or "YYYY-MM-DD HH:MM" in your local timezone.

Examples:
  vsched book --property 3 --agent 1 --client "Dana Lee" --at "2026-11-02 10:00"
  vsched book --property 3 --agent 1 --client "Dana Lee" --at 2026-11-02T10:00:00Z --duration 90 --ack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			start, err := parseWhen(at, loc)
			if err != nil {
				return err
			}
			req.PropertyID, req.AgentID, req.StartAt = propertyID, agentID, start

			v, err := newAPIClient().CreateVisit(cmd.Context(), req)
			if err != nil {
				return explain(err)
			}
			return showVisit(cmd, "Visit booked.", v, loc)
		},
	}

	cmd.Flags().Int64Var(&propertyID, "property", 0, "property ID")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent ID")
	cmd.Flags().StringVar(&req.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&req.ClientPhone, "phone", "", "client phone")
	cmd.Flags().StringVar(&req.ClientEmail, "email", "", "client email")
	cmd.Flags().StringVar(&at, "at", "", "start time")
	cmd.Flags().IntVarP(&req.DurationMinutes, "duration", "d", 60, "duration in minutes")
	cmd.Flags().StringVarP(&req.Notes, "notes", "n", "", "notes")
	cmd.Flags().BoolVar(&req.AcknowledgeConflict, "ack", false, "book even if the agent is already booked")
	for _, f := range []string{"property", "agent", "client", "at"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <visit-id>",
		Short: "Show a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			v, err := newAPIClient().GetVisit(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			return showVisit(cmd, "", v, loc)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	var (
		clientName, phone, email, notes, at string
		duration                            int
		ack                                 bool
	)

	cmd := &cobra.Command{
		Use:   "update <visit-id>",
		Short: "Change client details, time or duration of a visit",
		Long:  "Change the fields given as flags. Omitted flags keep their current values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}

			req := schedule.UpdateRequest{AcknowledgeConflict: ack}
			flags := cmd.Flags()
			if flags.Changed("client") {
				req.ClientName = &clientName
			}
			if flags.Changed("phone") {
				req.ClientPhone = &phone
			}
			if flags.Changed("email") {
				req.ClientEmail = &email
			}
			if flags.Changed("notes") {
				req.Notes = &notes
			}
			if flags.Changed("duration") {
				req.DurationMinutes = &duration
			}
			if flags.Changed("at") {
				start, err := parseWhen(at, loc)
				if err != nil {
					return err
				}
				req.StartAt = &start
			}

			v, err := newAPIClient().UpdateVisit(cmd.Context(), args[0], req)
			if err != nil {
				return explain(err)
			}
			return showVisit(cmd, "Visit updated.", v, loc)
		},
	}

	cmd.Flags().StringVar(&clientName, "client", "", "client name")
	cmd.Flags().StringVar(&phone, "phone", "", "client phone")
	cmd.Flags().StringVar(&email, "email", "", "client email")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "notes")
	cmd.Flags().StringVar(&at, "at", "", "new start time")
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "new duration in minutes")
	cmd.Flags().BoolVar(&ack, "ack", false, "apply even if the agent is already booked")

	return cmd
}

func newRescheduleCmd() *cobra.Command {
	var (
		to    string
		shift time.Duration
		ack   bool
	)

	cmd := &cobra.Command{
		Use:   "reschedule <visit-id>",
		Short: "Move a visit to a new time",
		Long: `Move a visit to an absolute time (--to) or by a relative offset (--shift).

Examples:
  vsched reschedule 6f1c... --to "2026-11-03 14:00"
  vsched reschedule 6f1c... --shift -30m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			req, err := rescheduleRequest(cmd, to, shift, ack, loc)
			if err != nil {
				return err
			}
			v, err := newAPIClient().Reschedule(cmd.Context(), args[0], req)
			if err != nil {
				return explain(err)
			}
			return showVisit(cmd, "Visit rescheduled.", v, loc)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "new start time")
	cmd.Flags().DurationVar(&shift, "shift", 0, "move by this offset, e.g. 30m or -1h")
	cmd.Flags().BoolVar(&ack, "ack", false, "move even if the agent is already booked")
	cmd.MarkFlagsMutuallyExclusive("to", "shift")
	cmd.MarkFlagsOneRequired("to", "shift")

	return cmd
}

// rescheduleRequest builds a request from --to or --shift.
func rescheduleRequest(cmd *cobra.Command, to string, shift time.Duration, ack bool, loc *time.Location) (client.RescheduleRequest, error) {
	req := client.RescheduleRequest{AcknowledgeConflict: ack}
	if cmd.Flags().Changed("to") {
		start, err := parseWhen(to, loc)
		if err != nil {
			return req, err
		}
		req.StartAt = &start
		return req, nil
	}
	if shift%time.Minute != 0 {
		return req, fmt.Errorf("--shift must be whole minutes")
	}
	minutes := int(shift / time.Minute)
	req.ShiftMinutes = &minutes
	return req, nil
}

func newConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <visit-id>",
		Short: "Confirm a pending visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, "Visit confirmed.", func(c *client.Client) (*visit.Visit, error) {
				return c.Confirm(cmd.Context(), args[0])
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <visit-id>",
		Short: "Cancel a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, "Visit cancelled.", func(c *client.Client) (*visit.Visit, error) {
				return c.Cancel(cmd.Context(), args[0], reason)
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "cancellation reason")

	return cmd
}

func newDoneCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "done <visit-id>",
		Short: "Mark a confirmed visit as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, "Visit done.", func(c *client.Client) (*visit.Visit, error) {
				return c.MarkDone(cmd.Context(), args[0], notes)
			})
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "n", "", "notes to append")

	return cmd
}

func runTransition(cmd *cobra.Command, msg string, fn func(*client.Client) (*visit.Visit, error)) error {
	loc, err := getLocation()
	if err != nil {
		return err
	}
	v, err := fn(newAPIClient())
	if err != nil {
		return explain(err)
	}
	return showVisit(cmd, msg, v, loc)
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <visit-id>",
		Short: "Show the audit history of a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			recs, err := newAPIClient().History(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			printHistory(cmd.OutOrStdout(), recs, loc)
			return nil
		},
	}
}

func newICSCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "ics <visit-id>",
		Short: "Download a visit as an iCalendar file",
		Long:  "Writes visit-<id>.ics to the current directory, or to --output. Use --output - for stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, name, err := newAPIClient().ICS(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")

	return cmd
}

// showVisit prints v as JSON or text, preceded by msg in text mode.
func showVisit(cmd *cobra.Command, msg string, v *visit.Visit, loc *time.Location) error {
	w := cmd.OutOrStdout()
	if isJSON() {
		return printJSON(w, v)
	}
	if msg != "" {
		fmt.Fprintln(w, msg)
	}
	printVisit(w, v, loc)
	return nil
}
