package credential

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// probeService is written and removed by Probe to test the keyring.
const probeService = "HQS-API:probe"

// KeyringStore stores secrets in the OS keyring (macOS Keychain,
// Windows Credential Manager, Secret Service on Linux).
type KeyringStore struct{}

var _ Store = KeyringStore{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() KeyringStore {
	return KeyringStore{}
}

// Get implements Store.
func (KeyringStore) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if isNotFound(err, keyring.ErrNotFound) {
		return "", ErrTokenNotFound
	}
	return v, err
}

// Set implements Store.
func (KeyringStore) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}

// Delete implements Store.
func (KeyringStore) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if isNotFound(err, keyring.ErrNotFound) {
		return ErrTokenNotFound
	}
	return err
}

// Probe checks that the keyring accepts writes. Headless Linux hosts
// often have no Secret Service running.
func (k KeyringStore) Probe() error {
	if err := keyring.Set(probeService, "probe", "ok"); err != nil {
		return err
	}
	if err := keyring.Delete(probeService, "probe"); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
