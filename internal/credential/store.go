package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/qprovider/internal/config"
)

// Store keeps secrets addressed by service and key. Get returns
// ErrTokenNotFound for a missing key.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// MemoryStore is an in-process Store, used for API-key sessions and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func memoryKey(service, key string) string {
	return service + "\x00" + key
}

// Get implements Store.
func (m *MemoryStore) Get(service, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memoryKey(service, key)]
	if !ok {
		return "", ErrTokenNotFound
	}
	return v, nil
}

// Set implements Store.
func (m *MemoryStore) Set(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memoryKey(service, key)] = value
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(service, key)
	if _, ok := m.values[k]; !ok {
		return ErrTokenNotFound
	}
	delete(m.values, k)
	return nil
}

// OpenStore returns the Store selected by kind (see config.TokenStore*).
// "auto" uses the OS keyring when it answers and the file store at path
// otherwise. The returned close function releases file handles and is
// never nil.
func OpenStore(kind, path string, logger *slog.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() error { return nil }

	switch kind {
	case config.TokenStoreKeyring:
		return NewKeyringStore(), noop, nil
	case config.TokenStoreFile:
		fs, err := OpenFileStore(path)
		if err != nil {
			return nil, noop, err
		}
		return fs, fs.Close, nil
	case config.TokenStoreAuto, "":
		ks := NewKeyringStore()
		err := ks.Probe()
		if err == nil {
			return ks, noop, nil
		}
		logger.Debug("keyring unavailable, using file token store", "path", path, "error", err)
		fs, err := OpenFileStore(path)
		if err != nil {
			return nil, noop, err
		}
		return fs, fs.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
	}
}

// isNotFound folds backend-specific not-found errors into ErrTokenNotFound.
func isNotFound(err error, backendNotFound error) bool {
	return errors.Is(err, ErrTokenNotFound) || (backendNotFound != nil && errors.Is(err, backendNotFound))
}
