package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/visit-scheduler/internal/schedule"
)

func newBulkCmd() *cobra.Command {
	var (
		reason string
		to     string
		shift  time.Duration
		ack    bool
	)

	cmd := &cobra.Command{
		Use:   "bulk <confirm|cancel|reschedule> <visit-id>...",
		Short: "Apply one action to many visits",
		Long: `Apply confirm, cancel or reschedule to several visits at once.
Each visit succeeds or fails on its own; the results are reported per visit.

Examples:
  vsched bulk confirm 6f1c... 9a2b...
  vsched bulk cancel 6f1c... 9a2b... --reason "agent out sick"
  vsched bulk reschedule 6f1c... 9a2b... --shift 1h`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := schedule.BulkRequest{
				Action:   schedule.BulkAction(args[0]),
				VisitIDs: args[1:],
				Options:  schedule.BulkOptions{Reason: reason, AcknowledgeConflict: ack},
			}

			switch req.Action {
			case schedule.BulkConfirm, schedule.BulkCancel:
			case schedule.BulkReschedule:
				if !cmd.Flags().Changed("to") && !cmd.Flags().Changed("shift") {
					return fmt.Errorf("reschedule needs --to or --shift")
				}
				loc, err := getLocation()
				if err != nil {
					return err
				}
				r, err := rescheduleRequest(cmd, to, shift, ack, loc)
				if err != nil {
					return err
				}
				req.Options.NewStart, req.Options.ShiftMinutes = r.StartAt, r.ShiftMinutes
			default:
				return fmt.Errorf("unknown action %q (use confirm, cancel or reschedule)", args[0])
			}

			resp, err := newAPIClient().BulkAction(cmd.Context(), req)
			if err != nil {
				return explain(err)
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printBulk(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "cancellation reason")
	cmd.Flags().StringVar(&to, "to", "", "new start time for reschedule")
	cmd.Flags().DurationVar(&shift, "shift", 0, "offset for reschedule, e.g. 30m or -1h")
	cmd.Flags().BoolVar(&ack, "ack", false, "reschedule even if agents are already booked")
	cmd.MarkFlagsMutuallyExclusive("to", "shift")

	return cmd
}
