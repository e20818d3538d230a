package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/visit-scheduler/internal/calendar"
	"github.com/evcraddock/visit-scheduler/internal/client"
)

func newCalendarCmd() *cobra.Command {
	var (
		q       client.CalendarQuery
		agentID int64
	)

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show scheduled visits",
		Long: `Show visits in a date range, for one agent or all of them.

Pick the range with --from/--to (dates or RFC 3339 times) or with --view
day|week and --date. Without flags, shows today.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			if q.From == "" && q.To == "" {
				if q.View == "" {
					q.View = string(calendar.DayView)
				}
				if q.Date == "" {
					q.Date = time.Now().In(loc).Format(time.DateOnly)
				}
			}
			q.AgentID = agentID

			resp, err := newAPIClient().Calendar(cmd.Context(), q)
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			days := resp.Days
			if days == nil {
				days = calendar.GroupByDay(resp.Entries, resp.From, resp.To, loc)
			}
			printCalendar(cmd.OutOrStdout(), days, loc)
			return nil
		},
	}

	cmd.Flags().StringVar(&q.From, "from", "", "range start")
	cmd.Flags().StringVar(&q.To, "to", "", "range end (exclusive)")
	cmd.Flags().StringVar(&q.View, "view", "", "day or week")
	cmd.Flags().StringVar(&q.Date, "date", "", "date within the view (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&agentID, "agent", 0, "only this agent")
	cmd.MarkFlagsRequiredTogether("from", "to")
	cmd.MarkFlagsMutuallyExclusive("from", "view")

	return cmd
}

func newSlotsCmd() *cobra.Command {
	var (
		agentID  int64
		date     string
		duration int
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free start times for an agent on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			resp, err := newAPIClient().Slots(cmd.Context(), agentID, date, duration)
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printSlots(cmd.OutOrStdout(), resp.Slots, resp.DurationMinutes, loc)
			return nil
		},
	}

	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent ID")
	cmd.Flags().StringVar(&date, "date", "", "day (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&duration, "duration", "d", 60, "visit length in minutes")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newCheckCmd() *cobra.Command {
	var (
		req client.CheckRequest
		at  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a booking would conflict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := getLocation()
			if err != nil {
				return err
			}
			if req.StartAt, err = parseWhen(at, loc); err != nil {
				return err
			}
			resp, err := newAPIClient().CheckConflict(cmd.Context(), req)
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printConflict(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.AgentID, "agent", 0, "agent ID")
	cmd.Flags().StringVar(&at, "at", "", "start time")
	cmd.Flags().IntVarP(&req.DurationMinutes, "duration", "d", 60, "duration in minutes")
	cmd.Flags().StringVar(&req.ExcludeVisitID, "exclude", "", "ignore this visit (when moving it)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("at")

	return cmd
}
