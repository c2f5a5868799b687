// Package store manages ULTRATHINK_HOME: its layout, config.yaml and the
// health checks run by "ultrathink doctor".
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/ultrathink/internal/storage"
	"github.com/kokistudios/ultrathink/internal/thinking"
)

const configFile = "config.yaml"

// StorageConfig selects where sessions are kept.
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file badger sqlite"`
	// Path overrides the backend's default location under sessions/.
	Path string `yaml:"path,omitempty"`
}

// OutputConfig controls JSON output of the CLI.
type OutputConfig struct {
	Indent int `yaml:"indent" validate:"gte=0,lte=8"`
}

// LogConfig controls diagnostics on stderr.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Name string `yaml:"name" validate:"required"`
}

// Config holds ultrathink configuration.
type Config struct {
	Version string        `yaml:"version"`
	Storage StorageConfig `yaml:"storage"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
	MCP     MCPConfig     `yaml:"mcp"`
}

var validate = validator.New()

// Validate checks that every setting holds an accepted value.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Storage: StorageConfig{Backend: storage.BackendFile},
		Output:  OutputConfig{Indent: 2},
		Log:     LogConfig{Level: "warn"},
		MCP:     MCPConfig{Name: "ultrathink"},
	}
}

// Store represents a loaded ULTRATHINK_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Home returns the ULTRATHINK_HOME path, respecting the ULTRATHINK_HOME env
// var. The default lives under the system temp directory.
func Home() string {
	if h := os.Getenv("ULTRATHINK_HOME"); h != "" {
		return h
	}
	return filepath.Join(os.TempDir(), "ultrathink")
}

// Init creates the ULTRATHINK_HOME directory structure.
func Init(home string, force bool) error {
	if _, err := os.Stat(filepath.Join(home, configFile)); err == nil && !force {
		return fmt.Errorf("ULTRATHINK_HOME already initialized at %s (use --force to reinitialize)", home)
	}

	for _, d := range []string{home, filepath.Join(home, "sessions")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return writeConfig(home, DefaultConfig())
}

// Load reads ULTRATHINK_HOME. A missing config.yaml yields the defaults so
// the tool works without "ultrathink init". Missing fields are filled from
// defaults.
func Load(home string) (*Store, error) {
	cfg := DefaultConfig()
	cfgPath := filepath.Join(home, configFile)
	data, err := os.ReadFile(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &Store{Home: home, Config: cfg}, nil
	case err != nil:
		return nil, fmt.Errorf("cannot read config at %s: %w", cfgPath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

func writeConfig(home string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", home, err)
	}
	if err := os.WriteFile(filepath.Join(home, configFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	return writeConfig(s.Home, s.Config)
}

// ConfigKeys lists the keys accepted by SetConfigValue.
var ConfigKeys = []string{"storage.backend", "storage.path", "output.indent", "log.level", "mcp.name"}

// SetConfigValue sets a config value by dot-path key (e.g. "storage.backend").
func (s *Store) SetConfigValue(key, value string) error {
	next := s.Config
	switch key {
	case "storage.backend":
		next.Storage.Backend = value
	case "storage.path":
		next.Storage.Path = value
	case "output.indent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("output.indent must be an integer")
		}
		next.Output.Indent = n
	case "log.level":
		next.Log.Level = strings.ToLower(value)
	case "mcp.name":
		next.MCP.Name = value
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys, ", "))
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	s.Config = next
	return s.SaveConfig()
}

// Path resolves a path within ULTRATHINK_HOME.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// StorageConfig returns the backend settings with the path resolved.
func (s *Store) StorageConfig(logger *log.Logger) storage.Config {
	path := s.Config.Storage.Path
	if path == "" {
		path = storage.DefaultPath(s.Config.Storage.Backend, s.Path("sessions"))
	}
	return storage.Config{Backend: s.Config.Storage.Backend, Path: path, Logger: logger}
}

// OpenBackend opens the configured session backend. The caller must Close it.
func (s *Store) OpenBackend(logger *log.Logger) (storage.Backend, error) {
	return storage.Open(s.StorageConfig(logger))
}

// CheckHealth verifies ULTRATHINK_HOME structure integrity.
func CheckHealth(home string) []Issue {
	var issues []Issue

	p := filepath.Join(home, "sessions")
	info, err := os.Stat(p)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", p)})
	} else if !info.IsDir() {
		issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
	}

	cfgPath := filepath.Join(home, configFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"warning", fmt.Sprintf("cannot read config.yaml, using defaults: %v", err)})
		return issues
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
	} else if err := cfg.Validate(); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml has invalid values: %v", err)})
	}

	return issues
}

// CheckSessionIntegrity decodes every stored session. A record that does
// not decode would be silently replaced by a fresh session on next use.
func CheckSessionIntegrity(ctx context.Context, b storage.Backend) []Issue {
	var issues []Issue
	ids, err := b.List(ctx)
	if err != nil {
		return append(issues, Issue{"error", fmt.Sprintf("cannot list sessions: %v", err)})
	}
	for _, id := range ids {
		data, err := b.Read(ctx, id)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("session %s: cannot read: %v", id, err)})
			continue
		}
		sess, err := thinking.Decode(data)
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("session %s: corrupt record: %v", id, err)})
			continue
		}
		if refs := sess.UnresolvedRefs(); len(refs) > 0 {
			issues = append(issues, Issue{"warning", fmt.Sprintf("session %s: %d unresolved cross-session reference(s)", id, len(refs))})
		}
	}
	return issues
}

// FixIssues attempts to repair simple issues in ULTRATHINK_HOME.
func FixIssues(home string) []string {
	var fixed []string

	sessions := filepath.Join(home, "sessions")
	if _, err := os.Stat(sessions); err != nil {
		if err := os.MkdirAll(sessions, 0755); err == nil {
			fixed = append(fixed, "recreated missing directory: sessions")
		}
	}

	if _, err := os.Stat(filepath.Join(home, configFile)); err != nil {
		if writeConfig(home, DefaultConfig()) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	// Interrupted atomic writes leave temp files next to the records.
	leftovers, _ := filepath.Glob(filepath.Join(sessions, ".tmp-*"))
	for _, p := range leftovers {
		if os.Remove(p) == nil {
			fixed = append(fixed, fmt.Sprintf("removed leftover temp file: %s", filepath.Base(p)))
		}
	}

	return fixed
}
