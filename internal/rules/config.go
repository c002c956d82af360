package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/opsgate/opsgate/internal/model"
)

// PermissionsConfig is the rule section of the config file.
type PermissionsConfig struct {
	DefaultLevel    string   `yaml:"default_level"`
	AutoApprove     []string `yaml:"auto_approve"`
	RequireApproval []string `yaml:"require_approval"`
	Blacklist       []string `yaml:"blacklist"`
}

// AuditConfig is the audit trail section of the config file.
type AuditConfig struct {
	LogPath       string `yaml:"log_path"`
	IndexPath     string `yaml:"index_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Config holds all configurable parameters.
type Config struct {
	Permissions PermissionsConfig `yaml:"permissions"`
	Audit       AuditConfig       `yaml:"audit"`
	ApprovalDir string            `yaml:"approval_dir"`
}

// DefaultDir returns the opsgate home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "opsgate")
	}
	return filepath.Join(home, ".opsgate")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns the built-in configuration. The pattern lists mirror
// the conservative out-of-the-box posture: read-only helpers auto-approved,
// irreversible destruction blacklisted.
func DefaultConfig() *Config {
	return &Config{
		Permissions: PermissionsConfig{
			DefaultLevel: "suggest",
			AutoApprove: []string{
				"list_files",
				"read_file",
				"get_system_info",
				"get_time",
			},
			RequireApproval: []string{
				"delete_*",
				"execute_*",
				"write_*",
				"move_*",
				"modify_*",
			},
			Blacklist: []string{
				"format_disk",
				"rm -rf /",
				"rm -rf /*",
				"del /f /s /q *",
				"format c:",
			},
		},
		Audit: AuditConfig{
			LogPath:       filepath.Join(DefaultDir(), "audit.jsonl"),
			IndexPath:     filepath.Join(DefaultDir(), "audit.db"),
			RetentionDays: 0, // retention only on explicit request
		},
		ApprovalDir: filepath.Join(DefaultDir(), "pending"),
	}
}

// Load reads configuration from a YAML file. Empty path falls back to the
// default location. Missing file returns defaults. Invalid YAML is an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 of the raw bytes
// on disk. When no file exists (defaults used), the hash is of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("rules: read config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("rules: parse config: %w", err)
	}

	cfg.Audit.LogPath = expandTilde(cfg.Audit.LogPath)
	cfg.Audit.IndexPath = expandTilde(cfg.Audit.IndexPath)
	cfg.ApprovalDir = expandTilde(cfg.ApprovalDir)

	return cfg, hash, nil
}

// expandTilde resolves a leading "~/" against the user home directory.
func expandTilde(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Compile builds the rule Set described by the config.
func (c *Config) Compile() (*Set, error) {
	level, err := model.ParseLevel(c.Permissions.DefaultLevel)
	if err != nil {
		return nil, fmt.Errorf("rules: default_level: %w", err)
	}
	return NewSet(level, c.Permissions.Blacklist, c.Permissions.AutoApprove, c.Permissions.RequireApproval)
}

// Save writes the config to disk, creating parent directories. Used to
// persist blacklist/auto-approve changes made at runtime.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("rules: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("rules: marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("rules: write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rules: replace config: %w", err)
	}
	return nil
}

// ApplySet copies the live rule set's pattern lists back into the config so
// a subsequent Save persists runtime changes.
func (c *Config) ApplySet(s *Set) {
	c.Permissions.Blacklist = s.Blacklist()
	c.Permissions.AutoApprove = s.AutoApprove()
	c.Permissions.RequireApproval = s.RequireApproval()
	c.Permissions.DefaultLevel = s.DefaultLevel().String()
}

// DefaultConfigYAML returns a commented config template for `opsgate init`.
func DefaultConfigYAML() string {
	return `# opsgate configuration
# Generated by: opsgate init
#
# Decision order (cannot be changed):
#   1. blacklist match        -> denied
#   2. auto_approve match     -> approved
#   3. level == read          -> approved
#   4. level == suggest       -> dry-run (preview only)
#   5. otherwise              -> interactive approval

permissions:
  # Level assumed when a request does not supply one:
  # read | suggest | safe_write | system_write | execute | admin
  default_level: suggest

  # Glob patterns matched against action_type. '*' matches any run of
  # characters; matching is case-sensitive.
  auto_approve:
    - list_files
    - read_file
    - get_system_info
    - get_time

  # Informational: anything not auto-approved or blacklisted prompts anyway.
  require_approval:
    - "delete_*"
    - "execute_*"
    - "write_*"
    - "move_*"
    - "modify_*"

  # A blacklist match is a permanent denial. Deny wins over auto_approve.
  blacklist:
    - format_disk
    - "rm -rf /"
    - "rm -rf /*"
    - "del /f /s /q *"
    - "format c:"

audit:
  log_path: ~/.opsgate/audit.jsonl
  index_path: ~/.opsgate/audit.db
  # Entries older than this many days move to the archive when
  # 'opsgate audit retention' runs. 0 disables the command.
  retention_days: 0

approval_dir: ~/.opsgate/pending
`
}
