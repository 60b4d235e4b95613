package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/qprovider/internal/config"
)

// Token names used as Store keys (before the _first/_second suffix).
const (
	IDTokenName      = "id_token"
	RefreshTokenName = "refresh_token"
)

const servicePrefix = "HQS-API"

// TokenPair is what a successful login returns.
type TokenPair struct {
	IDToken      string
	RefreshToken string
}

// ServiceName returns the Store service under which tokens for user at
// apiURL/version are kept.
//
//	default URL, user     -> HQS-API<user>
//	other URL, user       -> HQS-API:<apiURL>/<version>:<user>
//	no user               -> HQS-API
func ServiceName(apiURL, version, user string) string {
	if user == "" {
		return servicePrefix
	}
	if apiURL == config.DefaultAPIURL {
		return servicePrefix + user
	}
	return servicePrefix + ":" + config.ServiceURL(apiURL, version) + ":" + user
}

func halfKeys(name string) (first, second string) {
	return name + "_first", name + "_second"
}

// SaveTokens stores both tokens of pair, each split into two halves.
func SaveTokens(store Store, service string, pair TokenPair) error {
	tokens := []struct{ name, value string }{
		{IDTokenName, pair.IDToken},
		{RefreshTokenName, pair.RefreshToken},
	}
	for _, tok := range tokens {
		first, second := halfKeys(tok.name)
		mid := len(tok.value) / 2
		if err := store.Set(service, first, tok.value[:mid]); err != nil {
			return fmt.Errorf("save %s: %w", tok.name, err)
		}
		if err := store.Set(service, second, tok.value[mid:]); err != nil {
			return fmt.Errorf("save %s: %w", tok.name, err)
		}
	}
	return nil
}

// LoadToken joins the two halves of the named token. It returns
// ErrTokenNotFound unless both halves are present.
func LoadToken(store Store, service, name string) (string, error) {
	first, second := halfKeys(name)
	a, err := store.Get(service, first)
	if err != nil {
		return "", err
	}
	b, err := store.Get(service, second)
	if err != nil {
		return "", err
	}
	return a + b, nil
}

// DeleteTokens removes all token halves for service. Missing entries are
// not an error.
func DeleteTokens(store Store, service string) error {
	for _, name := range []string{IDTokenName, RefreshTokenName} {
		first, second := halfKeys(name)
		for _, key := range []string{first, second} {
			if err := store.Delete(service, key); err != nil && !errors.Is(err, ErrTokenNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
	}
	return nil
}

// TokenExpired reports whether the exp claim of token is before now.
// The signature is not verified; the API does that. A token that cannot
// be parsed or has no exp claim counts as expired so it gets replaced.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(now)
}
