package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultAccountName is the account key used when none is given.
const DefaultAccountName = "default"

// DefaultAccountFileName is the file name of the saved-account file.
const DefaultAccountFileName = "accounts.yaml"

// Proxies maps a protocol ("http", "https", "all") or a "scheme://host"
// prefix to a proxy URL.
type Proxies struct {
	URLs map[string]string `yaml:"urls,omitempty" toml:"urls,omitempty" json:"urls,omitempty"`
}

// IsZero reports whether no proxy is configured.
func (p Proxies) IsZero() bool {
	return len(p.URLs) == 0
}

// Validate checks that every proxy URL parses and uses a supported scheme.
func (p Proxies) Validate() error {
	for key, raw := range p.URLs {
		if _, err := parseProxyURL(raw); err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidProxy, key, raw)
		}
	}
	return nil
}

// ProxyFor returns the proxy URL to use for target, or nil for a direct
// connection. Lookup order: "scheme://host", "scheme", "all".
func (p Proxies) ProxyFor(target *url.URL) (*url.URL, error) {
	if len(p.URLs) == 0 || target == nil {
		return nil, nil
	}

	candidates := []string{
		target.Scheme + "://" + target.Host,
		target.Scheme,
		"all",
	}
	for _, key := range candidates {
		if raw, ok := p.URLs[key]; ok && raw != "" {
			return parseProxyURL(raw)
		}
	}
	return nil, nil
}

// parseProxyURL parses and checks a single proxy URL.
func parseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, ErrInvalidProxy
	}
	if u.Host == "" {
		return nil, ErrInvalidProxy
	}
	return u, nil
}

// Account is one saved set of connection settings.
// Secrets are never stored here; tokens live in the token store.
type Account struct {
	// UserName is the e-mail address used to log in.
	UserName string `yaml:"user_name,omitempty" toml:"user_name,omitempty" json:"user_name,omitempty"`

	// APIURL is the API host, e.g. https://qapi.quantinuum.com.
	// A version path segment is allowed and preserved by CanonicalizeURL.
	APIURL string `yaml:"api_url,omitempty" toml:"api_url,omitempty" json:"api_url,omitempty"`

	// Proxies routes API traffic through HTTP or SOCKS5 proxies.
	Proxies Proxies `yaml:"proxies,omitempty" toml:"proxies,omitempty" json:"proxies,omitempty"`
}

// Merge returns a copy of a with the non-empty fields of override applied.
func (a Account) Merge(override Account) Account {
	result := a
	if override.UserName != "" {
		result.UserName = override.UserName
	}
	if override.APIURL != "" {
		result.APIURL = override.APIURL
	}
	if len(override.Proxies.URLs) > 0 {
		urls := make(map[string]string, len(result.Proxies.URLs)+len(override.Proxies.URLs))
		for k, v := range result.Proxies.URLs {
			urls[k] = v
		}
		for k, v := range override.Proxies.URLs {
			urls[k] = v
		}
		result.Proxies.URLs = urls
	}
	return result
}

// AccountFile is the on-disk structure of the saved-account file.
//
// Example:
//
//	current: default
//	accounts:
//	  default:
//	    user_name: alice@example.com
//	    api_url: https://qapi.quantinuum.com
//	    proxies:
//	      urls:
//	        https: http://proxy.example.com:3128
type AccountFile struct {
	// Current names the account used when none is selected explicitly.
	Current string `yaml:"current,omitempty" toml:"current,omitempty"`

	// Accounts maps account names to settings.
	Accounts map[string]Account `yaml:"accounts,omitempty" toml:"accounts,omitempty"`
}

// NewAccountFile returns an empty account file.
func NewAccountFile() *AccountFile {
	return &AccountFile{Accounts: make(map[string]Account)}
}

// Put stores account under name. It fails with ErrAccountExists when the
// name is taken and overwrite is false. The first saved account becomes
// the current one.
func (f *AccountFile) Put(name string, account Account, overwrite bool) error {
	if name == "" {
		name = DefaultAccountName
	}
	if f.Accounts == nil {
		f.Accounts = make(map[string]Account)
	}
	if _, ok := f.Accounts[name]; ok && !overwrite {
		return fmt.Errorf("%w: %s", ErrAccountExists, name)
	}
	f.Accounts[name] = account
	if f.Current == "" {
		f.Current = name
	}
	return nil
}

// Get returns the named account. An empty name resolves to Current.
func (f *AccountFile) Get(name string) (Account, error) {
	if name == "" {
		name = f.CurrentName()
	}
	account, ok := f.Accounts[name]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return account, nil
}

// Delete removes the named account. Deleting the current account clears
// Current, or moves it to the first remaining name.
func (f *AccountFile) Delete(name string) error {
	if name == "" {
		name = f.CurrentName()
	}
	if _, ok := f.Accounts[name]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	delete(f.Accounts, name)
	if f.Current == name {
		f.Current = ""
		if names := f.Names(); len(names) > 0 {
			f.Current = names[0]
		}
	}
	return nil
}

// Names returns the saved account names in sorted order.
func (f *AccountFile) Names() []string {
	names := make([]string, 0, len(f.Accounts))
	for name := range f.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CurrentName returns Current, or DefaultAccountName when unset.
func (f *AccountFile) CurrentName() string {
	if f.Current != "" {
		return f.Current
	}
	return DefaultAccountName
}
