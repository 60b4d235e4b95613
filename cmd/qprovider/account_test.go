package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/qprovider/internal/config"
)

func writeAccounts(t *testing.T) string {
	t.Helper()

	af := config.NewAccountFile()
	if err := af.Put("default", config.Account{UserName: "alice@example.com"}, false); err != nil {
		t.Fatal(err)
	}
	if err := af.Put("staging", config.Account{
		UserName: "bob@example.com",
		APIURL:   "https://staging-qapi.quantinuum.com",
	}, false); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	if err := config.SaveAccountFile(path, af); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAccountList(t *testing.T) {
	clearEnv(t)

	t.Run("lists accounts with current marker", func(t *testing.T) {
		path := writeAccounts(t)

		out, _, err := execute(t, "--config", path, "account", "list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %q", out)
		}
		if !strings.HasPrefix(lines[0], "* default") || !strings.Contains(lines[0], "alice@example.com") {
			t.Errorf("unexpected first line %q", lines[0])
		}
		if !strings.HasPrefix(lines[1], "  staging") {
			t.Errorf("unexpected second line %q", lines[1])
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "accounts.yaml")

		out, _, err := execute(t, "--config", path, "account", "list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No accounts saved") {
			t.Errorf("unexpected output %q", out)
		}
	})
}

func TestAccountShow(t *testing.T) {
	clearEnv(t)
	path := writeAccounts(t)

	t.Run("selected account with flag overrides", func(t *testing.T) {
		out, _, err := execute(t, "--config", path, "--account", "staging",
			"--proxy", "https=http://proxy.example.com:3128", "account", "show")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"staging:", "user_name: bob@example.com", "https: http://proxy.example.com:3128"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv(config.EnvUserName, "carol@example.com")

		out, _, err := execute(t, "--config", path, "account", "show")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "user_name: carol@example.com") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("named account", func(t *testing.T) {
		out, _, err := execute(t, "--config", path, "account", "show", "staging")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "api_url: https://staging-qapi.quantinuum.com") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		if _, _, err := execute(t, "--config", path, "account", "show", "missing"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestAccountSave_RequiresUser(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvAPIKey, "test-key")

	dir := t.TempDir()
	_, _, err := execute(t,
		"--config", filepath.Join(dir, "accounts.yaml"),
		"--history-dir", dir,
		"account", "save",
	)
	if err == nil || !strings.Contains(err.Error(), "user name is required") {
		t.Errorf("err = %v, want missing user name", err)
	}
}
