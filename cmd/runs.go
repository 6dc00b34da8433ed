package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/doc-intake/internal/config"
	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect intake run history",
	Long:  "Commands for listing, viewing, and summarizing intake runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List intake runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRuns); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRuns); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		phases, err := st.ListPhases(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show phases")
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(runDetail{Run: run, Phases: phases})
		}
		formatRunDetail(out, run, phases)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRuns); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		if since > 0 {
			runs = runsSince(runs, time.Now().Add(-since))
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the run and its phases as JSON")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runDetail is the JSON shape of runs show and GET /api/runs/{id}.
type runDetail struct {
	Run    *model.Run       `json:"run"`
	Phases []model.RunPhase `json:"phases"`
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total        int
	Complete     int
	Failed       int
	Running      int
	Degraded     int
	EmailsSent   int
	EmailsFailed int
	CostUSD      float64
	AvgDurSecs   float64
}

// runsSince keeps the runs created at or after cutoff. runs is newest first.
func runsSince(runs []model.Run, cutoff time.Time) []model.Run {
	for i, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			return runs[:i]
		}
	}
	return runs
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}

		if r.Result == nil {
			continue
		}
		if len(r.Result.Degraded) > 0 {
			s.Degraded++
		}
		for _, o := range r.Result.Outcomes {
			if o.Success {
				s.EmailsSent++
			} else {
				s.EmailsFailed++
			}
		}
		s.CostUSD += r.Result.TokenUsage.Cost
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDOCUMENT\tSTATUS\tVERIFIED\tEMAILS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t--------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		doc := r.DocumentName
		if len(doc) > 30 {
			doc = doc[:27] + "..."
		}

		verified, emails := "-", "-"
		if r.Result != nil {
			verified = fmt.Sprintf("%d", len(r.Result.VerifiedClients))
			sent := 0
			for _, o := range r.Result.Outcomes {
				if o.Success {
					sent++
				}
			}
			emails = fmt.Sprintf("%d/%d", sent, len(r.Result.Outcomes))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			doc,
			r.Status,
			verified,
			emails,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunDetail writes one run with its phases and outcomes to w.
func formatRunDetail(out io.Writer, run *model.Run, phases []model.RunPhase) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Document:\t%s\n", run.DocumentName)
	_, _ = fmt.Fprintf(w, "Alias:\t%s\n", run.Alias)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", run.CreatedAt.Format(time.RFC3339))
	if run.Result != nil {
		_, _ = fmt.Fprintf(w, "Verified clients:\t%v\n", run.Result.VerifiedClients)
		_, _ = fmt.Fprintf(w, "Email sent:\t%t\n", run.Result.EmailSent)
		_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", run.Result.TokenUsage.Cost)
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "PHASE\tSTATUS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t------\t--------\t-----")
	for _, p := range phases {
		dur, errMsg := "-", ""
		if p.Result != nil {
			dur = (time.Duration(p.Result.Duration) * time.Millisecond).String()
			errMsg = p.Result.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Status, dur, errMsg)
	}

	if run.Result != nil && len(run.Result.Outcomes) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "CLIENT\tEMAIL\tRESULT\tATTEMPTS")
		_, _ = fmt.Fprintln(w, "------\t-----\t------\t--------")
		for _, o := range run.Result.Outcomes {
			result := "sent"
			if !o.Success {
				result = "failed"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", o.Client, o.Email, result, o.Attempts)
		}
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "With degraded nodes:\t%d\n", s.Degraded)
	_, _ = fmt.Fprintf(w, "Emails sent:\t%d\n", s.EmailsSent)
	_, _ = fmt.Fprintf(w, "Emails failed:\t%d\n", s.EmailsFailed)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", s.CostUSD)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}
