package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/qprovider/internal/provider"
)

// NewBackendsCmd creates the backends command.
func NewBackendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends [name]",
		Short: "List the machines available to the account",
		Long: `Backends lists the machines and emulators the selected account can submit
to. With a name only that backend is shown.

Examples:
  qprovider backends
  qprovider backends H1-1E --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBackendsCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Print backend configurations as JSON")
	return cmd
}

func runBackendsCmd(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	backends, err := s.provider.Backends(ctx, name)
	if err != nil {
		return err
	}
	if name != "" && len(backends) == 0 {
		return fmt.Errorf("%w: %s", provider.ErrBackendNotFound, name)
	}

	if asJSON {
		configs := make([]provider.BackendConfiguration, 0, len(backends))
		for _, b := range backends {
			configs = append(configs, b.Configuration())
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(configs)
	}

	table := newTable(cmd.OutOrStdout(), "NAME", "QUBITS", "MAX SHOTS", "VERSION")
	for _, b := range backends {
		c := b.Configuration()
		if err := table.Append([]string{c.BackendName, strconv.Itoa(c.NQubits), strconv.Itoa(c.MaxShots), c.BackendVersion}); err != nil {
			return err
		}
	}
	return table.Render()
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <backend>",
		Short: "Show the state of a machine",
		Long: `Status queries the live state of a machine: whether it is online and how
many jobs are waiting in its queue.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			st, err := b.Status(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:      %s\n", st.BackendName)
			fmt.Fprintf(out, "Version:      %s\n", st.BackendVersion)
			fmt.Fprintf(out, "Status:       %s\n", st.StatusMsg)
			fmt.Fprintf(out, "Operational:  %t\n", st.Operational)
			fmt.Fprintf(out, "Pending jobs: %d\n", st.PendingJobs)
			return nil
		},
	}
}
