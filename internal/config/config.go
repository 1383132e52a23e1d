// Package config loads livecode settings from YAML.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/livecode/internal/model"
)

// ErrInvalidLevel is returned when security_level is not a known label.
var ErrInvalidLevel = errors.New("invalid security level")

// GRPCConfig holds the bridge listener settings.
type GRPCConfig struct {
	Listen string `yaml:"listen"`
}

// Config holds every configurable livecode parameter.
type Config struct {
	SecurityLevel   string     `yaml:"security_level"`
	Namespace       string     `yaml:"namespace"`
	TypeName        string     `yaml:"type_name"`
	Denylist        string     `yaml:"denylist"`
	AuditLog        string     `yaml:"audit_log"`
	HistoryDB       string     `yaml:"history_db"`
	GRPC            GRPCConfig `yaml:"grpc"`
	ExtraReferences []string   `yaml:"extra_references"`
	AllowParallel   bool       `yaml:"allow_parallel"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		SecurityLevel: model.Restricted.String(),
		Namespace:     model.DefaultNamespace,
		TypeName:      model.DefaultTypeName,
		GRPC: GRPCConfig{
			Listen: "127.0.0.1:50061",
		},
	}
}

// Level returns the parsed security level.
func (c *Config) Level() (model.SecurityLevel, error) {
	lvl, err := model.ParseSecurityLevel(c.SecurityLevel)
	if err != nil {
		return model.Disabled, fmt.Errorf("%w: %q", ErrInvalidLevel, c.SecurityLevel)
	}
	return lvl, nil
}

// Validate checks field values that YAML decoding cannot.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.TypeName != "" && !isExported(c.TypeName) {
		return fmt.Errorf("type_name %q must be an exported Go identifier", c.TypeName)
	}
	return nil
}

// DefaultPath returns ~/.livecode/config.yaml, or "" when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".livecode", "config.yaml")
}

// Load loads configuration from a YAML file.
// Empty path falls back to ~/.livecode/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return DefaultConfig(), hashOf(nil), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Denylist = expandHome(cfg.Denylist)
	cfg.AuditLog = expandHome(cfg.AuditLog)
	cfg.HistoryDB = expandHome(cfg.HistoryDB)

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, hashOf(data), nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func isExported(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	if c < 'A' || c > 'Z' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
