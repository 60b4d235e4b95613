package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/qprovider/internal/api"
	"github.com/nao1215/qprovider/internal/config"
	"github.com/nao1215/qprovider/internal/credential"
	"github.com/nao1215/qprovider/internal/history"
	qlog "github.com/nao1215/qprovider/internal/log"
	"github.com/nao1215/qprovider/internal/provider"
)

// NewRootCmd creates the root command for qprovider.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qprovider",
		Short: "Run quantum circuits on Quantinuum machines",
		Long: `qprovider submits OpenQASM 2.0 circuits to Quantinuum (formerly Honeywell)
trapped-ion machines and emulators and retrieves their measurement counts.

Accounts are kept in an account file (see 'qprovider init'); tokens are kept
in the OS keyring or an encrypted file. Submitted jobs are recorded in a local
history so that results can be fetched and compared later.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Account file path, YAML or TOML (default: "+config.DefaultAccountFilePath()+")")
	cmd.PersistentFlags().StringP("account", "a", "",
		"Saved account to use (default: the current account)")
	cmd.PersistentFlags().StringSlice("proxy", nil,
		"Proxy as [scheme=]url, e.g. https=socks5://127.0.0.1:1080 (repeatable)")
	cmd.PersistentFlags().String("history-dir", "",
		"Job history directory (default: "+config.DefaultHistoryDir()+")")
	cmd.PersistentFlags().Bool("no-history", false, "Do not record jobs in the history")
	cmd.PersistentFlags().String("service-url", "",
		"Override the REST base URL, e.g. for a staging deployment")
	_ = cmd.PersistentFlags().MarkHidden("service-url") //nolint:errcheck // flag is defined above

	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())
	cmd.AddCommand(NewAccountCmd())
	cmd.AddCommand(NewBackendsCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewJobCmd())
	cmd.AddCommand(NewHistoryCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

// errorHint suggests a next step for errors the user can act on.
func errorHint(err error) string {
	switch {
	case api.IsUnauthorized(err), errors.Is(err, credential.ErrRefreshRejected):
		return "Hint: the API rejected the stored credentials. Run 'qprovider account load' to log in again."
	case errors.Is(err, provider.ErrCredentialsNotFound):
		return "Hint: save an account first with 'qprovider account save --user <email>'."
	case errors.Is(err, provider.ErrJobNotFound):
		return "Hint: check the job id and pass the backend it ran on with --backend."
	default:
		return ""
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getGlobalString reads a persistent string flag.
func getGlobalString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, _ = cmd.Root().PersistentFlags().GetString(name) //nolint:errcheck // zero value is fine
	}
	return v
}

// parseProxies turns "[scheme=]url" values into account proxies. A value
// without a scheme applies to all traffic.
func parseProxies(values []string) (config.Proxies, error) {
	if len(values) == 0 {
		return config.Proxies{}, nil
	}
	urls := make(map[string]string, len(values))
	for _, v := range values {
		key, raw := "all", v
		if i := strings.Index(v, "="); i > 0 && !strings.Contains(v[:i], "://") {
			key, raw = v[:i], v[i+1:]
		}
		urls[key] = raw
	}
	p := config.Proxies{URLs: urls}
	if err := p.Validate(); err != nil {
		return config.Proxies{}, err
	}
	return p, nil
}

// buildConfig creates a Config from the account file, the environment
// and the global flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.AccountFilePath = getGlobalString(cmd, "config")

	env := config.FromEnv(os.Getenv)
	if name := getGlobalString(cmd, "account"); name != "" {
		env.AccountName = name
	}

	proxyValues, err := cmd.Flags().GetStringSlice("proxy")
	if err != nil {
		return nil, err
	}
	proxies, err := parseProxies(proxyValues)
	if err != nil {
		return nil, fmt.Errorf("invalid --proxy: %w", err)
	}

	if err := config.Resolve(cfg, env, config.Account{Proxies: proxies}); err != nil {
		return nil, fmt.Errorf("failed to load account file %s: %w", cfg.AccountFile(), err)
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	if !noHistory {
		cfg.HistoryDir = getGlobalString(cmd, "history-dir")
		if cfg.HistoryDir == "" {
			cfg.HistoryDir = config.DefaultHistoryDir()
		}
	}

	return cfg, nil
}

// setupLogger creates a structured logger that masks tokens.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return qlog.NewSecureLogger(w, verbose)
}

// openHistory opens the job history, or returns nil when it is disabled.
func openHistory(cfg *config.Config) (*history.DB, error) {
	if cfg.HistoryDir == "" {
		return nil, nil
	}
	db, err := history.Open(cfg.HistoryDir, history.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open job history: %w", err)
	}
	return db, nil
}

// session bundles what a command needs to talk to the API.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *provider.Provider
	history  *history.DB
}

// Close releases the provider and the history database.
func (s *session) Close() error {
	var errs []error
	if s.provider != nil {
		errs = append(errs, s.provider.Close())
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	return errors.Join(errs...)
}

// newSession builds the configuration, logger, history and provider for
// cmd.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	s := &session{cfg: cfg, logger: logger}
	s.history, err = openHistory(cfg)
	if err != nil {
		return nil, err
	}

	opts := []provider.Option{
		provider.WithLogger(logger),
		provider.WithPrompter(credential.NewTerminalPrompter()),
	}
	if s.history != nil {
		opts = append(opts, provider.WithRecorder(s.history))
	}
	if u := getGlobalString(cmd, "service-url"); u != "" {
		opts = append(opts, provider.WithServiceURL(u))
	}

	s.provider, err = provider.New(cfg, opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Debug("session ready",
		"account", cfg.AccountName,
		"user", cfg.Account.UserName,
		"history", cfg.HistoryDir,
	)
	return s, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
