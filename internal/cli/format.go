package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/auth"
	"github.com/evcraddock/visit-scheduler/internal/calendar"
	"github.com/evcraddock/visit-scheduler/internal/client"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

const whenLayout = "Mon 2006-01-02 15:04"

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printVisit prints a single visit in text format.
func printVisit(w io.Writer, v *visit.Visit, loc *time.Location) {
	fmt.Fprintf(w, "Visit %s\n", v.ID)
	fmt.Fprintf(w, "  Status:   %s\n", v.Status)
	fmt.Fprintf(w, "  When:     %s\n", formatSpan(v.StartAt, v.EndAt(), loc))
	fmt.Fprintf(w, "  Agent:    #%d\n", v.AgentID)
	fmt.Fprintf(w, "  Property: #%d\n", v.PropertyID)
	fmt.Fprintf(w, "  Client:   %s\n", v.ClientName)
	if v.ClientPhone != "" {
		fmt.Fprintf(w, "  Phone:    %s\n", v.ClientPhone)
	}
	if v.ClientEmail != "" {
		fmt.Fprintf(w, "  Email:    %s\n", v.ClientEmail)
	}
	if v.Notes != "" {
		fmt.Fprintf(w, "  Notes:    %s\n", v.Notes)
	}
	if v.CancellationReason != "" {
		fmt.Fprintf(w, "  Reason:   %s\n", v.CancellationReason)
	}
}

// printBulk prints per-visit bulk outcomes as a table.
func printBulk(w io.Writer, resp *client.BulkResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "VISIT\tRESULT\tDETAIL"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, r := range resp.Results {
		result, detail := "ok", ""
		if r.Success && r.Visit != nil {
			detail = string(r.Visit.Status)
		}
		if !r.Success {
			result, detail = string(r.ErrorKind), r.Error
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", r.VisitID, result, truncate(detail, 60)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	fmt.Fprintf(w, "\nSucceeded: %d  Failed: %d\n", resp.Succeeded, resp.Failed)
	return nil
}

// printCalendar prints entries grouped by day.
func printCalendar(w io.Writer, days []calendar.Day, loc *time.Location) {
	total := 0
	for _, d := range days {
		if len(d.Entries) == 0 {
			continue
		}
		fmt.Fprintln(w, d.Date)
		for _, e := range d.Entries {
			who := e.AgentName
			if who == "" {
				who = fmt.Sprintf("agent #%d", e.AgentID)
			}
			fmt.Fprintf(w, "  %s-%s  %-9s  %s (%s)  %s\n",
				e.Start.In(loc).Format("15:04"), e.End.In(loc).Format("15:04"),
				e.Status, e.Title, who, e.VisitID)
			total++
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "No visits scheduled.")
		return
	}
	fmt.Fprintf(w, "\nTotal: %d visits\n", total)
}

// printSlots prints free start times.
func printSlots(w io.Writer, slots []time.Time, duration int, loc *time.Location) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "No free slots.")
		return
	}
	for _, s := range slots {
		fmt.Fprintf(w, "%s\n", formatSpan(s, s.Add(time.Duration(duration)*time.Minute), loc))
	}
}

// printHistory prints audit records oldest first.
func printHistory(w io.Writer, recs []*visit.Record, loc *time.Location) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}
	for _, r := range recs {
		transition := string(r.ToStatus)
		if r.FromStatus != "" && r.FromStatus != r.ToStatus {
			transition = fmt.Sprintf("%s -> %s", r.FromStatus, r.ToStatus)
		}
		fmt.Fprintf(w, "[%s] %s (%s)\n", r.CreatedAt.In(loc).Format("2006-01-02 15:04"), r.Event, transition)
		if d := string(r.Details); d != "" && d != "{}" {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}

// printConflict prints the result of a conflict check.
func printConflict(w io.Writer, c *schedule.ConflictCheck) {
	if !c.HasConflict {
		fmt.Fprintln(w, "No conflict.")
		return
	}
	fmt.Fprintf(w, "Conflicts with: %s\n", strings.Join(c.VisitIDs, ", "))
}

// printAgents prints agents as a table.
func printAgents(w io.Writer, agents []*directory.Agent) error {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tACTIVE"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, a := range agents {
		active := "yes"
		if !a.Active {
			active = "no"
		}
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.ID, truncate(a.Name, 30), orDash(a.Email), active); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return tw.Flush()
}

// printProperties prints properties as a table.
func printProperties(w io.Writer, props []*directory.Property) error {
	if len(props) == 0 {
		fmt.Fprintln(w, "No properties found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tCODE\tADDRESS"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, p := range props {
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Code, truncate(p.Address, 40)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return tw.Flush()
}

// printAPIKeys prints stored keys without their secrets.
func printAPIKeys(w io.Writer, keys []auth.APIKey) error {
	if len(keys) == 0 {
		fmt.Fprintln(w, "No API keys.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tNAME\tOWNER\tPREFIX\tCREATED\tLAST USED"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, k := range keys {
		used := "never"
		if k.LastUsedAt != nil {
			used = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Name, orDash(k.Owner), k.KeyPrefix, k.CreatedAt.Format("2006-01-02"), used); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return tw.Flush()
}

// formatSpan renders [start, end) in loc, eliding the end date when it
// falls on the same day.
func formatSpan(start, end time.Time, loc *time.Location) string {
	s, e := start.In(loc), end.In(loc)
	if s.Year() == e.Year() && s.YearDay() == e.YearDay() {
		return fmt.Sprintf("%s-%s %s", s.Format(whenLayout), e.Format("15:04"), s.Format("MST"))
	}
	return fmt.Sprintf("%s - %s %s", s.Format(whenLayout), e.Format(whenLayout), e.Format("MST"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
