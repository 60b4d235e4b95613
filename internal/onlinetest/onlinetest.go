// Package onlinetest gates tests that talk to the live machine API.
package onlinetest

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/qprovider/internal/config"
	"github.com/nao1215/qprovider/internal/provider"
)

// SkipOnlineEnv disables online tests when set to any non-empty value.
const SkipOnlineEnv = "QPROVIDER_TEST_SKIP_ONLINE"

const (
	apiHost     = "qapi.quantinuum.com"
	apiPort     = 443
	dialTimeout = 5 * time.Second
)

var (
	connMu    sync.Mutex
	connCache = map[string]bool{}
)

// HasConnection reports whether host:port accepts TCP connections.
// The answer is cached for the life of the test binary.
func HasConnection(host string, port int) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	connMu.Lock()
	defer connMu.Unlock()
	if ok, found := connCache[addr]; found {
		return ok
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	ok := err == nil
	if ok {
		_ = conn.Close()
	}
	connCache[addr] = ok
	return ok
}

// Require skips t unless online tests are enabled, the API is reachable
// and the saved account has usable credentials. It returns a Provider for
// that account.
func Require(t *testing.T) *provider.Provider {
	t.Helper()

	if os.Getenv(SkipOnlineEnv) != "" {
		t.Skipf("%s is set", SkipOnlineEnv)
	}
	if !HasConnection(apiHost, apiPort) {
		t.Skipf("no connection to %s:%d", apiHost, apiPort)
	}

	cfg := config.NewConfig()
	if err := config.Resolve(cfg, config.FromEnv(os.Getenv), config.Account{}); err != nil {
		t.Skipf("load account: %v", err)
	}

	p, err := provider.New(cfg)
	if err != nil {
		t.Skipf("create provider: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := p.LoadAccount(ctx); err != nil {
		t.Skipf("no credentials: %v", err)
	}
	return p
}
