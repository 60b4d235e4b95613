package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/qprovider/internal/history"
	"github.com/nao1215/qprovider/internal/provider"
	"github.com/nao1215/qprovider/internal/report"
)

// NewJobCmd creates the job command and its subcommands.
func NewJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Query, fetch or cancel submitted jobs",
		Long: `Job works on jobs submitted earlier. An id is either a local job id from
the history or an API job id. Ids that are not in the history need
--backend.`,
	}

	cmd.PersistentFlags().String("backend", "", "Backend of API job ids that are not in the history")

	cmd.AddCommand(newJobStatusCmd())
	cmd.AddCommand(newJobResultCmd())
	cmd.AddCommand(newJobCancelCmd())

	return cmd
}

// resolveJob rebuilds a Job from the history, or treats id as an API job
// id on the --backend machine.
func resolveJob(ctx context.Context, cmd *cobra.Command, s *session, id string) (*provider.Job, error) {
	if s.history != nil {
		hj, err := s.history.GetJob(ctx, id)
		switch {
		case err == nil:
			b, err := s.provider.GetBackend(ctx, hj.Backend)
			if err != nil {
				return nil, err
			}
			return b.ResumeJob(hj.LocalID, hj.APIJobIDs(), provider.Options{
				Shots:    hj.Shots,
				Priority: hj.Priority,
				Name:     hj.Name,
			}), nil
		case !errors.Is(err, history.ErrNotFound):
			return nil, err
		}
	}

	backend := getGlobalString(cmd, "backend")
	if backend == "" {
		return nil, fmt.Errorf("job %s is not in the history (use --backend to query it directly)", id)
	}
	b, err := s.provider.GetBackend(ctx, backend)
	if err != nil {
		return nil, err
	}
	return b.RetrieveJob(id), nil
}

func newJobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>...",
		Short: "Show the status of jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			table := newTable(cmd.OutOrStdout(), "JOB", "BACKEND", "STATUS", "MESSAGE")
			var errs []error
			for _, id := range args {
				job, err := resolveJob(ctx, cmd, s, id)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				st, err := job.Status(ctx)
				if err != nil {
					errs = append(errs, fmt.Errorf("job %s: %w", id, err))
					continue
				}
				if err := table.Append([]string{id, job.Backend().Name(), st.String(), job.ErrorMessage()}); err != nil {
					return err
				}
			}
			if err := table.Render(); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func newJobResultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "result <id>",
		Short: "Wait for a job and print its counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			if _, err := getReportOptions(cmd); err != nil {
				return err
			}

			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			job, err := resolveJob(ctx, cmd, s, args[0])
			if err != nil {
				return err
			}
			result, err := job.Result(ctx, timeout)
			if err != nil {
				return err
			}
			return withReportWriter(cmd, func(w report.Writer) error {
				_, err := w.Write(result)
				return err
			})
		},
	}
	cmd.Flags().DurationP("timeout", "t", 0, "How long to wait for results (default: 5m)")
	addReportFlags(cmd)
	return cmd
}

func newJobCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>...",
		Short: "Cancel jobs that have not finished",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			var errs []error
			for _, id := range args {
				job, err := resolveJob(ctx, cmd, s, id)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if err := job.Cancel(ctx); err != nil {
					errs = append(errs, fmt.Errorf("job %s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for %s\n", id)
			}
			return errors.Join(errs...)
		},
	}
}
