package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/qprovider/internal/config"
)

//go:embed templates/accounts.yaml
var accountTemplate embed.FS

// templatePath is the embedded account file template.
const templatePath = "templates/accounts.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an account file from a template",
		Long: `Init writes a commented account file that can be edited by hand.

The generated file includes:
- A "default" account pointing at the production API
- Commented examples for proxies and a second account

Use 'qprovider account save' afterwards to log in and store tokens.

Examples:
  # Create the account file at the default location
  qprovider init

  # Create it at a specific path (YAML or TOML extension)
  qprovider init -o accounts.yaml

  # Force overwrite existing file
  qprovider init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Output file path (default: "+config.DefaultAccountFilePath()+")")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing account file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = config.DefaultAccountFilePath()
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("account file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	// TOML paths get the template converted through the account file codec.
	if filepath.Ext(outputPath) == ".toml" {
		return writeTOMLTemplate(cmd, outputPath)
	}

	content, err := accountTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read account template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write account file: %w", err)
	}

	printInitHint(cmd, outputPath)
	return nil
}

// writeTOMLTemplate writes the default account as TOML. Comments are not
// carried over.
func writeTOMLTemplate(cmd *cobra.Command, path string) error {
	af := config.NewAccountFile()
	if err := af.Put(config.DefaultAccountName, config.Account{APIURL: config.DefaultAPIURL}, true); err != nil {
		return err
	}
	if err := config.SaveAccountFile(path, af); err != nil {
		return fmt.Errorf("failed to write account file: %w", err)
	}
	printInitHint(cmd, path)
	return nil
}

func printInitHint(cmd *cobra.Command, path string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created account file: %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  - set user_name to the e-mail address of your account")
	fmt.Fprintln(out, "  - run 'qprovider account save' to log in and store tokens")
}
