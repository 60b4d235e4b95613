package config

import (
	"fmt"
	"regexp"
	"strings"
)

// apiURLPattern splits an API URL into scheme, host prefix, API host,
// optional version segment and trailing path. Hosts on the legacy
// honeywell domain are accepted as well.
var apiURLPattern = regexp.MustCompile(`^(https://)?([^/]*)(api\.(?:quantinuum|honeywell)\.com)(/+v[0-9]+)?/?(.*)$`)

// CanonicalizeURL normalises a user-supplied API URL.
//
// Accepted shapes are "[https://]<prefix>api.quantinuum.com[/vN][/rest]".
// A trailing path is only allowed after a version segment. The result is
// "https://<prefix>api.quantinuum.com" and the version ("v1" when absent).
//
// An empty URL selects the defaults. Any other URL that does not fit
// returns the defaults together with an error wrapping ErrInvalidURL, so
// callers can warn and carry on.
func CanonicalizeURL(raw string) (apiURL, version string, err error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultAPIURL, DefaultAPIVersion, nil
	}

	m := apiURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return DefaultAPIURL, DefaultAPIVersion, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	prefix, host, versionPart, rest := m[2], m[3], m[4], m[5]
	if rest != "" && versionPart == "" {
		return DefaultAPIURL, DefaultAPIVersion, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	apiURL = "https://" + prefix + host
	version = strings.Trim(versionPart, "/")
	if version == "" {
		version = DefaultAPIVersion
	}
	return apiURL, version, nil
}

// ServiceURL joins the API URL and version into the REST base URL,
// e.g. "https://qapi.quantinuum.com/v1".
func ServiceURL(apiURL, version string) string {
	return strings.TrimRight(apiURL, "/") + "/" + strings.Trim(version, "/")
}
