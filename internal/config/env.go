package config

import "strings"

// Environment variables read by FromEnv.
const (
	EnvUserName   = "QPROVIDER_USER_NAME"
	EnvAPIURL     = "QPROVIDER_API_URL"
	EnvAPIKey     = "QPROVIDER_API_KEY"
	EnvAccount    = "QPROVIDER_ACCOUNT"
	EnvHTTPSProxy = "QPROVIDER_HTTPS_PROXY"
	EnvHTTPProxy  = "QPROVIDER_HTTP_PROXY"
	EnvTokenStore = "QPROVIDER_TOKEN_STORE"
)

// EnvOverrides holds the values found in the environment.
type EnvOverrides struct {
	AccountName string
	Account     Account
	APIKey      string
	TokenStore  string
}

// FromEnv reads overrides using getenv (normally os.Getenv).
// Taking the lookup function keeps tests free of process-wide state.
func FromEnv(getenv func(string) string) EnvOverrides {
	env := EnvOverrides{
		AccountName: strings.TrimSpace(getenv(EnvAccount)),
		APIKey:      strings.TrimSpace(getenv(EnvAPIKey)),
		TokenStore:  strings.TrimSpace(getenv(EnvTokenStore)),
		Account: Account{
			UserName: strings.TrimSpace(getenv(EnvUserName)),
			APIURL:   strings.TrimSpace(getenv(EnvAPIURL)),
		},
	}

	urls := make(map[string]string)
	if v := strings.TrimSpace(getenv(EnvHTTPSProxy)); v != "" {
		urls["https"] = v
	}
	if v := strings.TrimSpace(getenv(EnvHTTPProxy)); v != "" {
		urls["http"] = v
	}
	if len(urls) > 0 {
		env.Account.Proxies.URLs = urls
	}

	return env
}

// Apply copies non-empty overrides into c.
func (e EnvOverrides) Apply(c *Config) {
	if e.AccountName != "" {
		c.AccountName = e.AccountName
	}
	if e.APIKey != "" {
		c.APIKey = e.APIKey
	}
	if e.TokenStore != "" {
		c.TokenStore = e.TokenStore
	}
	c.Account = c.Account.Merge(e.Account)
}

// Resolve builds the effective account: the saved account named by
// c.AccountName (if the file has it), then env overrides, then flags.
// A missing account file is not an error.
func Resolve(c *Config, env EnvOverrides, flags Account) error {
	env.Apply(c)

	af, err := LoadOrEmpty(c.AccountFile())
	if err != nil {
		return err
	}

	name := c.AccountName
	if name == "" {
		name = af.CurrentName()
		c.AccountName = name
	}
	if saved, err := af.Get(name); err == nil {
		c.Account = saved.Merge(env.Account)
	}

	c.Account = c.Account.Merge(flags)
	return nil
}
