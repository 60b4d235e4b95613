package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileFormat is the serialization used for an account file.
type fileFormat int

const (
	formatYAML fileFormat = iota
	formatTOML
)

// formatOf picks the format from the file extension.
// Files without an extension are treated as YAML.
func formatOf(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", "":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	default:
		return 0, ErrUnsupportedFormat
	}
}

// LoadAccountFile loads saved accounts from a YAML or TOML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadAccountFile(path string) (*AccountFile, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	af := NewAccountFile()
	switch format {
	case formatTOML:
		if _, err := toml.Decode(string(data), af); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, af); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if af.Accounts == nil {
		af.Accounts = make(map[string]Account)
	}

	return af, nil
}

// LoadOrEmpty loads the account file, returning an empty one when the file
// does not exist yet.
func LoadOrEmpty(path string) (*AccountFile, error) {
	af, err := LoadAccountFile(path)
	if errors.Is(err, ErrConfigNotFound) {
		return NewAccountFile(), nil
	}
	return af, err
}

// SaveAccountFile writes af to path in the format implied by its extension.
// Parent directories are created with 0700 and the file is written 0600
// through a temp file and rename.
func SaveAccountFile(path string, af *AccountFile) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case formatTOML:
		if err := toml.NewEncoder(&buf).Encode(af); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(af); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return atomicWriteFile(path, buf.Bytes(), 0600)
}

// atomicWriteFile writes data to a temp file and renames it to the target path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
