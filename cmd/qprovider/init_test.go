package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/qprovider/internal/config"
)

// TestNewInitCmd tests the init command creation.
func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	if cmd.Use != "init" {
		t.Errorf("expected use 'init', got %q", cmd.Use)
	}
	for _, tt := range []struct{ name, shorthand string }{{"output", "o"}, {"force", "f"}} {
		flag := cmd.Flags().Lookup(tt.name)
		if flag == nil {
			t.Fatalf("expected %s flag", tt.name)
		}
		if flag.Shorthand != tt.shorthand {
			t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
		}
	}
}

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// TestRunInitCmd tests the init command execution.
func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates a loadable account file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "accounts.yaml")
		out, err := runInit(t, "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Created account file") {
			t.Errorf("unexpected output: %q", out)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.Contains(string(content), "# proxies:") {
			t.Error("expected comments to be kept")
		}

		af, err := config.LoadAccountFile(path)
		if err != nil {
			t.Fatalf("LoadAccountFile: %v", err)
		}
		acct, err := af.Get("")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if acct.APIURL != config.DefaultAPIURL {
			t.Errorf("APIURL = %q", acct.APIURL)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "accounts.yaml")
		if err := os.WriteFile(path, []byte("existing"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := runInit(t, "-o", path); err == nil {
			t.Fatal("expected error for existing file")
		}
		content, _ := os.ReadFile(path) //nolint:errcheck // checked by comparison
		if string(content) != "existing" {
			t.Error("existing file was modified")
		}

		if _, err := runInit(t, "-o", path, "-f"); err != nil {
			t.Fatalf("unexpected error with -f: %v", err)
		}
		content, _ = os.ReadFile(path) //nolint:errcheck // checked by comparison
		if string(content) == "existing" {
			t.Error("expected file to be overwritten with -f")
		}
	})

	t.Run("toml", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "accounts.toml")
		if _, err := runInit(t, "-o", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		af, err := config.LoadAccountFile(path)
		if err != nil {
			t.Fatalf("LoadAccountFile: %v", err)
		}
		if af.CurrentName() != config.DefaultAccountName {
			t.Errorf("CurrentName() = %q", af.CurrentName())
		}
	})
}
