package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/qprovider/internal/provider"
	"github.com/nao1215/qprovider/internal/report"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <backend> <file.qasm>...",
		Short: "Submit OpenQASM circuits and wait for the counts",
		Long: `Run submits one API job per OpenQASM 2.0 file to the backend, waits for all
of them and prints the measurement counts. The job is recorded in the
history, so 'qprovider job result' can pick it up again after --no-wait or
an interrupted wait.

Examples:
  # Run a circuit with 100 shots
  qprovider run H1-1E bell.qasm --shots 100

  # Submit two circuits as one job and return immediately
  qprovider run H1-1E ghz.qasm bell.qasm --name nightly --no-wait

  # Write a Markdown report
  qprovider run H1-1E bell.qasm --markdown -o reports/bell.md`,
		Args: cobra.MinimumNArgs(2),
		RunE: runRunCmd,
	}

	cmd.Flags().IntP("shots", "s", 0, "Number of shots (default: 1024)")
	cmd.Flags().StringP("priority", "p", "", "Queue priority: low, normal or high (default: normal)")
	cmd.Flags().StringP("name", "n", "", "Job name (default: the file name)")
	cmd.Flags().DurationP("timeout", "t", 0, "How long to wait for results (default: 5m)")
	cmd.Flags().Bool("no-wait", false, "Return after submission")
	addReportFlags(cmd)

	return cmd
}

// loadCircuits reads OpenQASM files. The file name without extension
// becomes the circuit name.
func loadCircuits(paths []string) ([]provider.Circuit, error) {
	circuits := make([]provider.Circuit, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // user-provided circuit path is intentional
		if err != nil {
			return nil, fmt.Errorf("failed to read circuit: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("circuit file is empty: %s", path)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		circuits = append(circuits, provider.Circuit{
			Name:     name,
			QASM:     string(data),
			Kind:     provider.CircuitQASM,
			Metadata: map[string]any{"name": name, "file": path},
		})
	}
	return circuits, nil
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	// Read circuits before touching the API so a typo fails fast.
	circuits, err := loadCircuits(args[1:])
	if err != nil {
		return err
	}

	var opts provider.Options
	if opts.Shots, err = cmd.Flags().GetInt("shots"); err != nil {
		return err
	}
	if opts.Priority, err = cmd.Flags().GetString("priority"); err != nil {
		return err
	}
	if opts.Name, err = cmd.Flags().GetString("name"); err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	noWait, err := cmd.Flags().GetBool("no-wait")
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

	b, err := s.provider.GetBackend(ctx, args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	job, err := b.Run(ctx, circuits, opts)
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Submitted job %s to %s (%d circuit(s))\n", job.LocalID(), b.Name(), len(circuits))
	s.logger.Info("job submitted", "job", job.LocalID(), "api_jobs", job.JobIDs())

	if noWait {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", job.LocalID())
		return nil
	}

	fmt.Fprintf(out, "Waiting for results...\n")
	result, err := job.Result(ctx, timeout)
	if err != nil {
		return fmt.Errorf("%w (resume with 'qprovider job result %s')", err, job.LocalID())
	}
	fmt.Fprintf(out, "Job finished in %s\n", time.Since(start).Round(time.Millisecond))

	return withReportWriter(cmd, func(w report.Writer) error {
		_, err := w.Write(result)
		return err
	})
}
