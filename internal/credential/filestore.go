package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

// FileStore keeps secrets in a bbolt database, one bucket per service.
// Each value is a CBOR-encoded record encrypted with encryptValue, which
// is secretbox on unix and DPAPI on Windows.
type FileStore struct {
	db *bbolt.DB
}

var _ Store = (*FileStore)(nil)

// record is the stored form of one secret.
type record struct {
	Value     string    `cbor:"1,keyasint"`
	UpdatedAt time.Time `cbor:"2,keyasint"`
}

// OpenFileStore opens (creating if needed) the token database at path.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("token store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create token store directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	return &FileStore{db: db}, nil
}

// Close closes the database.
func (s *FileStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *FileStore) Path() string {
	return s.db.Path()
}

// Get implements Store.
func (s *FileStore) Get(service, key string) (string, error) {
	var sealed []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(service))
		if b == nil {
			return ErrTokenNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrTokenNotFound
		}
		sealed = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return "", err
	}

	plain, err := decryptValue(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt %s/%s: %w", service, key, err)
	}
	var rec record
	if err := cbor.Unmarshal(plain, &rec); err != nil {
		return "", fmt.Errorf("decode %s/%s: %w", service, key, err)
	}
	return rec.Value, nil
}

// Set implements Store.
func (s *FileStore) Set(service, key, value string) error {
	plain, err := cbor.Marshal(record{Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", service, key, err)
	}
	sealed, err := encryptValue(plain)
	if err != nil {
		return fmt.Errorf("encrypt %s/%s: %w", service, key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(service))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", service, err)
		}
		return b.Put([]byte(key), sealed)
	})
}

// Delete implements Store. Removing the last key of a service drops its
// bucket.
func (s *FileStore) Delete(service, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(service))
		if b == nil || b.Get([]byte(key)) == nil {
			return ErrTokenNotFound
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			return tx.DeleteBucket([]byte(service))
		}
		return nil
	})
}

// UpdatedAt returns when key was last written.
func (s *FileStore) UpdatedAt(service, key string) (time.Time, error) {
	var sealed []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(service))
		if b == nil {
			return ErrTokenNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrTokenNotFound
		}
		sealed = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	plain, err := decryptValue(sealed)
	if err != nil {
		return time.Time{}, err
	}
	var rec record
	if err := cbor.Unmarshal(plain, &rec); err != nil {
		return time.Time{}, err
	}
	return rec.UpdatedAt, nil
}
