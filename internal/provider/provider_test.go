package provider

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/qprovider/internal/config"
	"github.com/nao1215/qprovider/internal/credential"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUser,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Shots = 0
	_, err := New(cfg, WithStore(credential.NewMemoryStore()))
	require.ErrorIs(t, err, config.ErrInvalidShots)
}

func TestProvider_Backends(t *testing.T) {
	t.Parallel()

	fake := newFakeAPI()
	p := newTestProvider(t, fake)
	ctx := t.Context()

	backends, err := p.Backends(ctx, "")
	require.NoError(t, err)
	require.Len(t, backends, 2)
	assert.Equal(t, "H1-1E", backends[0].Name())
	assert.Equal(t, "H1-2", backends[1].Name())

	cfg := backends[0].Configuration()
	assert.Equal(t, 20, cfg.NQubits)
	assert.Equal(t, "0.0.1", cfg.BackendVersion)
	assert.Equal(t, 10000, cfg.MaxShots)
	assert.True(t, cfg.Conditional)
	assert.False(t, cfg.Simulator)
	assert.Equal(t, []string{"rx", "ry", "rz", "cx", "h", "u1", "x", "y", "u3"}, cfg.BasisGates)
	assert.True(t, cfg.SupportsGate("cu3"))
	assert.False(t, cfg.SupportsGate("swap"))

	t.Run("filtered by name", func(t *testing.T) {
		t.Parallel()

		got, err := p.Backends(ctx, "H1-2")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 12, got[0].Configuration().NQubits)

		none, err := p.Backends(ctx, "H9")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("GetBackend", func(t *testing.T) {
		t.Parallel()

		b, err := p.GetBackend(ctx, "H1-1E")
		require.NoError(t, err)
		assert.Same(t, p, b.Provider())

		_, err = p.GetBackend(ctx, "H9")
		require.ErrorIs(t, err, ErrBackendNotFound)
	})

	t.Run("machine list is fetched once", func(t *testing.T) {
		t.Parallel()

		_, err := p.Backends(ctx, "")
		require.NoError(t, err)
		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, 1, fake.machineCalls)
	})
}

func TestBackend_Status(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, newFakeAPI())
	b, err := p.GetBackend(t.Context(), "H1-1E")
	require.NoError(t, err)

	st, err := b.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, BackendStatus{
		BackendName:    "H1-1E",
		BackendVersion: "1.2.3",
		StatusMsg:      "online",
		Operational:    true,
		PendingJobs:    3,
	}, st)

	other, err := p.GetBackend(t.Context(), "H1-2")
	require.NoError(t, err)
	_, err = other.Status(t.Context())
	require.ErrorIs(t, err, ErrBackendNotFound)
}

func TestProvider_LoadAccount(t *testing.T) {
	t.Parallel()

	fake := newFakeAPI()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	newCfg := func(t *testing.T, user string) *config.Config {
		t.Helper()
		cfg := config.NewConfig()
		cfg.Account.UserName = user
		cfg.AccountFilePath = filepath.Join(t.TempDir(), "accounts.yaml")
		return cfg
	}

	t.Run("no user name", func(t *testing.T) {
		t.Parallel()

		p := newProviderAt(t, srv, newCfg(t, ""), WithStore(credential.NewMemoryStore()))
		err := p.LoadAccount(t.Context())
		require.ErrorIs(t, err, ErrCredentialsNotFound)
	})

	t.Run("no stored token", func(t *testing.T) {
		t.Parallel()

		p := newProviderAt(t, srv, newCfg(t, testUser), WithStore(credential.NewMemoryStore()))
		err := p.LoadAccount(t.Context())
		require.ErrorIs(t, err, ErrCredentialsNotFound)

		_, err = p.Backends(t.Context(), "")
		require.ErrorIs(t, err, ErrCredentialsNotFound)
	})

	t.Run("valid stored token", func(t *testing.T) {
		t.Parallel()

		store := credential.NewMemoryStore()
		p := newProviderAt(t, srv, newCfg(t, testUser), WithStore(store))
		require.NoError(t, credential.SaveTokens(store, p.Credentials().Service(), credential.TokenPair{
			IDToken:      signedToken(t, time.Now().Add(time.Hour)),
			RefreshToken: "refresh-0",
		}))

		require.NoError(t, p.LoadAccount(t.Context()))
		backends, err := p.Backends(t.Context(), "")
		require.NoError(t, err)
		assert.Len(t, backends, 2)
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		t.Parallel()

		store := credential.NewMemoryStore()
		p := newProviderAt(t, srv, newCfg(t, testUser), WithStore(store))
		service := p.Credentials().Service()
		require.NoError(t, credential.SaveTokens(store, service, credential.TokenPair{
			IDToken:      signedToken(t, time.Now().Add(-time.Hour)),
			RefreshToken: "refresh-0",
		}))

		require.NoError(t, p.LoadAccount(t.Context()))
		id, err := credential.LoadToken(store, service, credential.IDTokenName)
		require.NoError(t, err)
		assert.Equal(t, testToken, id)
	})
}

func TestProvider_SaveAndDeleteAccount(t *testing.T) {
	t.Parallel()

	fake := newFakeAPI()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.AccountFilePath = filepath.Join(t.TempDir(), "accounts.yaml")
	store := credential.NewMemoryStore()
	prompts := 0
	prompter := credential.PrompterFunc(func(_ context.Context, user string) (string, error) {
		prompts++
		assert.Equal(t, testUser, user)
		return "hunter2", nil
	})
	p := newProviderAt(t, srv, cfg, WithStore(store), WithPrompter(prompter))
	ctx := t.Context()

	acct := config.Account{UserName: testUser}
	require.NoError(t, p.SaveAccount(ctx, "lab", acct, false))
	assert.Equal(t, 1, prompts)
	assert.Equal(t, "lab", p.Config().AccountName)

	af, err := config.LoadAccountFile(cfg.AccountFilePath)
	require.NoError(t, err)
	saved, err := af.Get("lab")
	require.NoError(t, err)
	assert.Equal(t, testUser, saved.UserName)
	assert.True(t, p.Credentials().HasToken())

	t.Run("existing name without overwrite", func(t *testing.T) {
		err := p.SaveAccount(ctx, "lab", acct, false)
		require.ErrorIs(t, err, ErrAccountError)
		require.ErrorIs(t, err, config.ErrAccountExists)
		assert.Equal(t, 1, prompts)
	})

	t.Run("missing user name", func(t *testing.T) {
		err := p.SaveAccount(ctx, "other", config.Account{}, false)
		require.ErrorIs(t, err, ErrAccountError)
	})

	t.Run("delete credentials", func(t *testing.T) {
		require.NoError(t, p.SaveAccount(ctx, "lab", acct, true))
		require.NoError(t, p.DeleteCredentials(ctx))
		assert.False(t, p.Credentials().HasToken())
	})

	t.Run("delete account", func(t *testing.T) {
		require.NoError(t, p.SaveAccount(ctx, "lab", acct, true))
		require.NoError(t, p.DeleteAccount(ctx, "lab"))

		af, err := config.LoadAccountFile(cfg.AccountFilePath)
		require.NoError(t, err)
		_, err = af.Get("lab")
		require.ErrorIs(t, err, config.ErrAccountNotFound)
		assert.False(t, p.Credentials().HasToken())

		err = p.DeleteAccount(ctx, "lab")
		require.ErrorIs(t, err, ErrAccountError)
	})
}
