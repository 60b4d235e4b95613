// Package config provides configuration structures and utilities for qprovider.
// It defines runtime defaults, the saved-account file (YAML or TOML),
// environment overrides and API URL canonicalisation.
package config
