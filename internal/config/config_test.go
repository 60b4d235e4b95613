package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies the defaults so that changing one is a deliberate act.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default API URL", func(t *testing.T) {
		t.Parallel()
		if cfg.Account.APIURL != "https://qapi.quantinuum.com" {
			t.Errorf("expected default API URL, got %q", cfg.Account.APIURL)
		}
	})

	t.Run("default retries is 5 with 500ms backoff", func(t *testing.T) {
		t.Parallel()
		if cfg.Retries != 5 {
			t.Errorf("expected 5 retries, got %d", cfg.Retries)
		}
		if cfg.BackoffFactor != 500*time.Millisecond {
			t.Errorf("expected 500ms backoff, got %v", cfg.BackoffFactor)
		}
	})

	t.Run("default shots and priority", func(t *testing.T) {
		t.Parallel()
		if cfg.Shots != 1024 {
			t.Errorf("expected 1024 shots, got %d", cfg.Shots)
		}
		if cfg.Priority != "normal" {
			t.Errorf("expected priority normal, got %q", cfg.Priority)
		}
	})

	t.Run("default result timeout is 300 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.ResultTimeout != 300*time.Second {
			t.Errorf("expected 300s, got %v", cfg.ResultTimeout)
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})
}

// TestConfigValidate tests one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative retries", func(c *Config) { c.Retries = -1 }, ErrInvalidRetries},
		{"negative backoff", func(c *Config) { c.BackoffFactor = -time.Second }, ErrInvalidBackoff},
		{"zero shots", func(c *Config) { c.Shots = 0 }, ErrInvalidShots},
		{"zero result timeout", func(c *Config) { c.ResultTimeout = 0 }, ErrInvalidTimeout},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"unknown token store", func(c *Config) { c.TokenStore = "vault" }, ErrInvalidTokenStore},
		{"bad proxy scheme", func(c *Config) {
			c.Account.Proxies.URLs = map[string]string{"https": "ftp://proxy:21"}
		}, ErrInvalidProxy},
		{"zero retries is valid", func(c *Config) { c.Retries = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestCanonicalizeURL_Valid walks the same combinations of scheme, prefix,
// version and trailing path that the hosted service documents as valid.
func TestCanonicalizeURL_Valid(t *testing.T) {
	t.Parallel()

	schemes := []string{"https://", ""}
	prefixes := []string{"test", "test.", "qa", "qa.", "dev", "dev.", "q"}
	versions := []string{"/v1", "/v1234", "/v019", "", "/"}
	rests := []string{"/login", ""}

	for _, scheme := range schemes {
		for _, prefix := range prefixes {
			for _, version := range versions {
				wantURL := "https://" + prefix + "api.quantinuum.com"
				if version != "" && version != "/" {
					for _, rest := range rests {
						raw := scheme + prefix + "api.quantinuum.com" + version + rest
						gotURL, gotVersion, err := CanonicalizeURL(raw)
						if err != nil {
							t.Errorf("%q: unexpected error %v", raw, err)
							continue
						}
						if gotURL != wantURL || gotVersion != version[1:] {
							t.Errorf("%q: got (%q, %q), want (%q, %q)", raw, gotURL, gotVersion, wantURL, version[1:])
						}
					}
					continue
				}

				raw := scheme + prefix + "api.quantinuum.com" + version
				gotURL, gotVersion, err := CanonicalizeURL(raw)
				if err != nil {
					t.Errorf("%q: unexpected error %v", raw, err)
					continue
				}
				if gotURL != wantURL || gotVersion != DefaultAPIVersion {
					t.Errorf("%q: got (%q, %q), want (%q, %q)", raw, gotURL, gotVersion, wantURL, DefaultAPIVersion)
				}
			}
		}
	}
}

// TestCanonicalizeURL_Invalid checks that any single broken component
// falls back to the default URL and version with ErrInvalidURL.
func TestCanonicalizeURL_Invalid(t *testing.T) {
	t.Parallel()

	tests := []string{
		"http://qapi.quantinuum.com",
		"http://test.api.quantinuum.com/v1",
		"https://qapi.quantinuum.com/vA",
		"qa.api.quantinuum.com/1",
		"https://dev.api.quantinuum.com/login",
		"qapi.quantinuum.com//login",
		"https://example.com",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			gotURL, gotVersion, err := CanonicalizeURL(raw)
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("expected ErrInvalidURL, got %v", err)
			}
			if gotURL != DefaultAPIURL || gotVersion != DefaultAPIVersion {
				t.Errorf("expected defaults, got (%q, %q)", gotURL, gotVersion)
			}
		})
	}

	t.Run("empty URL selects defaults silently", func(t *testing.T) {
		t.Parallel()
		gotURL, gotVersion, err := CanonicalizeURL("")
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if gotURL != DefaultAPIURL || gotVersion != DefaultAPIVersion {
			t.Errorf("expected defaults, got (%q, %q)", gotURL, gotVersion)
		}
	})

	t.Run("legacy honeywell host is accepted", func(t *testing.T) {
		t.Parallel()
		gotURL, gotVersion, err := CanonicalizeURL("https://qapi.honeywell.com/v2")
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if gotURL != "https://qapi.honeywell.com" || gotVersion != "v2" {
			t.Errorf("got (%q, %q)", gotURL, gotVersion)
		}
	})
}

func TestServiceURL(t *testing.T) {
	t.Parallel()

	if got := ServiceURL("https://qapi.quantinuum.com/", "/v1"); got != "https://qapi.quantinuum.com/v1" {
		t.Errorf("unexpected service URL %q", got)
	}
}

func TestProxiesProxyFor(t *testing.T) {
	t.Parallel()

	p := Proxies{URLs: map[string]string{
		"https":                       "http://proxy.example.com:3128",
		"https://qapi.quantinuum.com": "socks5://127.0.0.1:1080",
		"all":                         "http://fallback:8080",
	}}

	tests := []struct {
		target string
		want   string
	}{
		{"https://qapi.quantinuum.com/v1/job", "socks5://127.0.0.1:1080"},
		{"https://other.quantinuum.com/v1", "http://proxy.example.com:3128"},
		{"http://plain.example.com", "http://fallback:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			target, _ := url.Parse(tt.target)
			got, err := p.ProxyFor(target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil || got.String() != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got)
			}
		})
	}

	t.Run("no proxies means direct", func(t *testing.T) {
		t.Parallel()
		target, _ := url.Parse("https://qapi.quantinuum.com")
		got, err := Proxies{}.ProxyFor(target)
		if err != nil || got != nil {
			t.Errorf("expected direct connection, got %v, %v", got, err)
		}
	})
}

func TestAccountFile(t *testing.T) {
	t.Parallel()

	t.Run("first saved account becomes current", func(t *testing.T) {
		t.Parallel()
		af := NewAccountFile()
		if err := af.Put("work", Account{UserName: "a@example.com"}, false); err != nil {
			t.Fatalf("put: %v", err)
		}
		if af.Current != "work" {
			t.Errorf("expected current to be work, got %q", af.Current)
		}
		got, err := af.Get("")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.UserName != "a@example.com" {
			t.Errorf("unexpected account %+v", got)
		}
	})

	t.Run("put without overwrite refuses existing name", func(t *testing.T) {
		t.Parallel()
		af := NewAccountFile()
		_ = af.Put("default", Account{UserName: "a@example.com"}, false)
		err := af.Put("default", Account{UserName: "b@example.com"}, false)
		if !errors.Is(err, ErrAccountExists) {
			t.Errorf("expected ErrAccountExists, got %v", err)
		}
		if err := af.Put("default", Account{UserName: "b@example.com"}, true); err != nil {
			t.Errorf("expected overwrite to succeed, got %v", err)
		}
	})

	t.Run("delete moves current to remaining account", func(t *testing.T) {
		t.Parallel()
		af := NewAccountFile()
		_ = af.Put("a", Account{}, false)
		_ = af.Put("b", Account{}, false)
		if err := af.Delete("a"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if af.Current != "b" {
			t.Errorf("expected current b, got %q", af.Current)
		}
		if err := af.Delete("missing"); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestSaveAndLoadAccountFile(t *testing.T) {
	t.Parallel()

	account := Account{
		UserName: "alice@example.com",
		APIURL:   "https://qapi.quantinuum.com",
		Proxies:  Proxies{URLs: map[string]string{"https": "http://proxy:3128"}},
	}

	for _, name := range []string{"accounts.yaml", "accounts.toml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "nested", name)
			af := NewAccountFile()
			if err := af.Put("default", account, false); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := SaveAccountFile(path, af); err != nil {
				t.Fatalf("save: %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("expected 0600, got %o", perm)
			}

			loaded, err := LoadAccountFile(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			got, err := loaded.Get("default")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.UserName != account.UserName || got.APIURL != account.APIURL {
				t.Errorf("round trip mismatch: %+v", got)
			}
			if got.Proxies.URLs["https"] != "http://proxy:3128" {
				t.Errorf("proxies lost: %+v", got.Proxies)
			}
		})
	}

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := LoadAccountFile(filepath.Join(t.TempDir(), "none.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("unknown extension is rejected", func(t *testing.T) {
		t.Parallel()
		err := SaveAccountFile(filepath.Join(t.TempDir(), "accounts.ini"), NewAccountFile())
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

func TestFromEnvAndResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	af := NewAccountFile()
	_ = af.Put("lab", Account{UserName: "saved@example.com", APIURL: "https://qa.api.quantinuum.com"}, false)
	if err := SaveAccountFile(path, af); err != nil {
		t.Fatalf("save: %v", err)
	}

	env := map[string]string{
		EnvAccount:    "lab",
		EnvHTTPSProxy: "http://proxy:3128",
		EnvAPIKey:     "  key-from-env  ",
	}
	overrides := FromEnv(func(k string) string { return env[k] })

	cfg := NewConfig()
	cfg.AccountFilePath = path
	if err := Resolve(cfg, overrides, Account{UserName: "flag@example.com"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.AccountName != "lab" {
		t.Errorf("expected account lab, got %q", cfg.AccountName)
	}
	if cfg.APIKey != "key-from-env" {
		t.Errorf("expected trimmed api key, got %q", cfg.APIKey)
	}
	if cfg.Account.UserName != "flag@example.com" {
		t.Errorf("expected flag to win, got %q", cfg.Account.UserName)
	}
	if cfg.Account.APIURL != "https://qa.api.quantinuum.com" {
		t.Errorf("expected saved API URL, got %q", cfg.Account.APIURL)
	}
	if cfg.Account.Proxies.URLs["https"] != "http://proxy:3128" {
		t.Errorf("expected env proxy, got %+v", cfg.Account.Proxies)
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Parallel()

	data := XDGDataDir()
	if filepath.Base(data) != AppName {
		t.Errorf("XDGDataDir() = %q, want it to end in %q", data, AppName)
	}
	if DefaultHistoryDir() != data {
		t.Errorf("DefaultHistoryDir() = %q, want %q", DefaultHistoryDir(), data)
	}
	if filepath.Dir(DefaultTokenStorePath()) != data {
		t.Errorf("DefaultTokenStorePath() = %q, want it under %q", DefaultTokenStorePath(), data)
	}
	if filepath.Dir(DefaultAccountFilePath()) != XDGConfigDir() {
		t.Errorf("DefaultAccountFilePath() = %q, want it under %q", DefaultAccountFilePath(), XDGConfigDir())
	}

	c := NewConfig()
	if c.AccountFile() != DefaultAccountFilePath() {
		t.Errorf("AccountFile() = %q", c.AccountFile())
	}
	c.AccountFilePath = "custom.toml"
	if c.AccountFile() != "custom.toml" {
		t.Errorf("AccountFile() = %q, want custom.toml", c.AccountFile())
	}
}
