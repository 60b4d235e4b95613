package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/qprovider/internal/config"
)

// NewAccountCmd creates the account command and its subcommands.
func NewAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage saved accounts and their tokens",
		Long: `Account manages the entries of the account file and the tokens stored
for them. Passwords are never saved: 'account save' logs in once and keeps
the id and refresh tokens in the token store.`,
	}

	cmd.AddCommand(newAccountSaveCmd())
	cmd.AddCommand(newAccountLoadCmd())
	cmd.AddCommand(newAccountDeleteCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountShowCmd())

	return cmd
}

func newAccountSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [name]",
		Short: "Log in and save an account",
		Long: `Save logs in with the given user name, stores the tokens and writes the
account to the account file. The password is read from the terminal, or
from stdin when it is not a terminal.

Examples:
  qprovider account save --user alice@example.com
  qprovider account save staging --user alice@example.com \
      --api-url https://staging-qapi.quantinuum.com --overwrite`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAccountSaveCmd,
	}

	cmd.Flags().StringP("user", "u", "", "User name (e-mail address)")
	cmd.Flags().String("api-url", "", "API URL (default: "+config.DefaultAPIURL+")")
	cmd.Flags().Bool("overwrite", false, "Replace an existing account with the same name")

	return cmd
}

func runAccountSaveCmd(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	name := config.DefaultAccountName
	if len(args) > 0 {
		name = args[0]
	}

	user, err := cmd.Flags().GetString("user")
	if err != nil {
		return err
	}
	apiURL, err := cmd.Flags().GetString("api-url")
	if err != nil {
		return err
	}
	overwrite, err := cmd.Flags().GetBool("overwrite")
	if err != nil {
		return err
	}

	acct := s.cfg.Account.Merge(config.Account{UserName: user, APIURL: apiURL})
	if acct.UserName == "" {
		return errors.New("a user name is required (use --user or QPROVIDER_USER_NAME)")
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := s.provider.SaveAccount(ctx, name, acct, overwrite); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved account %q for %s in %s\n", name, acct.UserName, s.cfg.AccountFile())
	return nil
}

func newAccountLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Check that the selected account has usable tokens",
		Long: `Load verifies the selected account: it needs a user name and a stored
token, and an expired id token is refreshed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			if err := s.provider.LoadAccount(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q loaded (%s)\n", s.cfg.AccountName, s.provider.Credentials().UserName())
			return nil
		},
	}
}

func newAccountDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a saved account and its tokens",
		Long: `Delete removes the account from the account file together with its stored
tokens. With --tokens-only the account entry is kept and only the tokens of
the selected account are removed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAccountDeleteCmd,
	}
	cmd.Flags().Bool("tokens-only", false, "Only remove the stored tokens")
	return cmd
}

func runAccountDeleteCmd(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	tokensOnly, err := cmd.Flags().GetBool("tokens-only")
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if tokensOnly {
		if err := s.provider.DeleteCredentials(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed tokens of %s\n", s.provider.Credentials().UserName())
		return nil
	}

	name := s.cfg.AccountName
	if len(args) > 0 {
		name = args[0]
	}
	if err := s.provider.DeleteAccount(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %q\n", name)
	return nil
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			af, err := config.LoadOrEmpty(cfg.AccountFile())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := af.Names()
			if len(names) == 0 {
				fmt.Fprintf(out, "No accounts saved in %s\n", cfg.AccountFile())
				return nil
			}
			for _, name := range names {
				marker := " "
				if name == af.CurrentName() {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-16s %s\n", marker, name, af.Accounts[name].UserName)
			}
			return nil
		},
	}
}

func newAccountShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show the settings of an account",
		Long: `Show prints an account as YAML after environment variables and flags are
applied. Tokens are never shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}

			acct := cfg.Account
			name := cfg.AccountName
			if len(args) > 0 {
				af, err := config.LoadOrEmpty(cfg.AccountFile())
				if err != nil {
					return err
				}
				if acct, err = af.Get(args[0]); err != nil {
					return err
				}
				name = args[0]
			}

			data, err := yaml.Marshal(map[string]config.Account{name: acct})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
