package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/qprovider/internal/history"
	"github.com/nao1215/qprovider/internal/provider"
	"github.com/nao1215/qprovider/internal/report"
)

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and compare recorded jobs",
		Long: `History reads the local job log written by 'qprovider run'. It works
offline: results shown here are the ones stored when the job finished.

Examples:
  # List the last 20 jobs on H1-1E
  qprovider history list --backend H1-1E --limit 20

  # Show the counts of a job
  qprovider history show 3f0c...

  # Compare the first experiment of two jobs
  qprovider history compare 3f0c... 9a1b... --markdown`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryCompareCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

// withHistory opens the history for a command that does not need the API.
func withHistory(cmd *cobra.Command, fn func(context.Context, *history.DB) error) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errors.New("job history is disabled (--no-history)")
	}
	defer db.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return fn(ctx, db)
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f history.Filter
			var err error
			if f.Backend, err = cmd.Flags().GetString("backend"); err != nil {
				return err
			}
			if f.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
				return err
			}

			return withHistory(cmd, func(ctx context.Context, db *history.DB) error {
				jobs, err := db.ListJobs(ctx, f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}

				table := newTable(out, "LOCAL ID", "NAME", "BACKEND", "STATUS", "CIRCUITS", "SHOTS", "SUBMITTED")
				for _, j := range jobs {
					row := []string{
						j.LocalID, j.Name, j.Backend, j.Status,
						strconv.Itoa(len(j.APIJobs)), strconv.Itoa(j.Shots), formatTime(j.SubmittedAt),
					}
					if err := table.Append(row); err != nil {
						return err
					}
				}
				return table.Render()
			})
		},
	}
	cmd.Flags().String("backend", "", "Only jobs on this backend")
	cmd.Flags().IntP("limit", "l", 0, "Maximum number of jobs (0 means all)")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// resultFromHistory rebuilds a Result from the stored counts of hj.
func resultFromHistory(hj *history.Job) *provider.Result {
	r := &provider.Result{
		BackendName:    hj.Backend,
		BackendVersion: "-",
		JobID:          hj.LocalID,
		Status:         hj.Status,
		Success:        hj.Status == provider.JobStatusDone.String(),
	}
	for _, a := range hj.APIJobs {
		counts := provider.Counts(a.Counts)
		if counts == nil {
			counts = provider.Counts{}
		}
		r.Results = append(r.Results, provider.ExperimentResult{
			JobID:   a.ID,
			Status:  a.Status,
			Success: len(counts) > 0,
			Shots:   counts.Shots(),
			Counts:  counts,
			Header:  map[string]any{"name": hj.Name, "position": a.Position},
		})
	}
	return r
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the stored result of a job",
		Long: `Show prints the counts stored for a job. The id is a local job id or
one of its API job ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := getReportOptions(cmd); err != nil {
				return err
			}
			return withHistory(cmd, func(ctx context.Context, db *history.DB) error {
				hj, err := db.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				if hj.Error != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Job failed: %s\n", hj.Error)
				}
				return withReportWriter(cmd, func(w report.Writer) error {
					_, err := w.Write(resultFromHistory(hj))
					return err
				})
			})
		},
	}
	addReportFlags(cmd)
	return cmd
}

func newHistoryCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <id> <id>",
		Short: "Compare the counts of two jobs",
		Long: `Compare computes the total variation distance between the outcome
distributions of two recorded jobs and lists the outcomes that differ most.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			experiment, err := cmd.Flags().GetInt("experiment")
			if err != nil {
				return err
			}
			if _, err := getReportOptions(cmd); err != nil {
				return err
			}

			return withHistory(cmd, func(ctx context.Context, db *history.DB) error {
				left, err := storedCounts(ctx, db, args[0], experiment)
				if err != nil {
					return err
				}
				right, err := storedCounts(ctx, db, args[1], experiment)
				if err != nil {
					return err
				}
				c := report.Compare(args[0], left, args[1], right)
				return withReportWriter(cmd, func(w report.Writer) error {
					_, err := w.WriteComparison(c)
					return err
				})
			})
		},
	}
	cmd.Flags().IntP("experiment", "e", 0, "Index of the circuit to compare")
	addReportFlags(cmd)
	return cmd
}

// storedCounts returns the counts of one experiment of a recorded job.
func storedCounts(ctx context.Context, db *history.DB, id string, experiment int) (provider.Counts, error) {
	hj, err := db.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := resultFromHistory(hj).GetCounts(experiment)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("job %s has no stored counts (status %s)", id, hj.Status)
	}
	return res, nil
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <local-id>...",
		Short: "Remove jobs from the history",
		Long: `Delete removes jobs from the local history. Jobs on the machine are not
affected; use 'qprovider job cancel' for that.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, db *history.DB) error {
				for _, id := range args {
					if err := db.DeleteJob(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}
