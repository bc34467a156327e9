// Package config loads inkwell's configuration.
//
// A YAML file is decoded, INKWELL_* environment variables are layered on
// top, and the result is validated and defaulted against an embedded CUE
// schema. Command-line flags are applied by the caller afterwards.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/inkwell/internal/timestamp"
)

//go:embed schema.cue
var schemaCUE string

// Config is the validated configuration.
type Config struct {
	DataDir   string    `json:"data_dir"`
	Docstore  Docstore  `json:"docstore"`
	Blobstore Blobstore `json:"blobstore"`
	Identity  Identity  `json:"identity"`
	Locale    string    `json:"locale"`
	Timezone  string    `json:"timezone"`
	LogLevel  string    `json:"log_level"`
	Server    Server    `json:"server"`
}

type Docstore struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type Blobstore struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

type Identity struct {
	Provider string `json:"provider"`
	OAuth    OAuth  `json:"oauth"`
}

type OAuth struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type Server struct {
	Addr string `json:"addr"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INKWELL_"

// envKeys maps environment variable suffixes to config paths.
var envKeys = map[string][]string{
	"DATA_DIR":            {"data_dir"},
	"DOCSTORE_DRIVER":     {"docstore", "driver"},
	"DOCSTORE_DSN":        {"docstore", "dsn"},
	"BLOBSTORE_DIR":       {"blobstore", "dir"},
	"BLOBSTORE_BASE_URL":  {"blobstore", "base_url"},
	"IDENTITY_PROVIDER":   {"identity", "provider"},
	"OAUTH_CLIENT_ID":     {"identity", "oauth", "client_id"},
	"OAUTH_CLIENT_SECRET": {"identity", "oauth", "client_secret"},
	"LOCALE":              {"locale"},
	"TIMEZONE":            {"timezone"},
	"LOG_LEVEL":           {"log_level"},
	"SERVER_ADDR":         {"server", "addr"},
}

// ErrInvalid wraps every schema violation.
var ErrInvalid = errors.New("invalid config")

// Load reads path (skipped when empty), applies overrides from getenv and
// validates the result. A nil getenv means os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	for suffix, keys := range envKeys {
		if v := getenv(EnvPrefix + suffix); v != "" {
			setPath(raw, keys, v)
		}
	}

	return decode(raw)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := decode(map[string]any{})
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

func decode(raw map[string]any) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cfg, nil
}

// setPath stores v at keys, creating intermediate maps. A non-map value
// in the way is replaced.
func setPath(m map[string]any, keys []string, v string) {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}

// DocstoreDSN returns the configured DSN, or the SQLite file under
// DataDir when none is set.
func (c *Config) DocstoreDSN() string {
	if c.Docstore.DSN != "" {
		return c.Docstore.DSN
	}
	return filepath.Join(c.DataDir, "inkwell.db")
}

// BlobDir returns the blob root, defaulting to DataDir/blobs.
func (c *Config) BlobDir() string {
	if c.Blobstore.Dir != "" {
		return c.Blobstore.Dir
	}
	return filepath.Join(c.DataDir, "blobs")
}

// SessionPath is where the signed-in user is persisted.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// AccountsPath is the local provider's account database.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.DataDir, "accounts.db")
}

// Serializer builds the timestamp serializer for Locale and Timezone.
func (c *Config) Serializer() (*timestamp.Serializer, error) {
	ts, err := timestamp.Parse(c.Locale, c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return ts, nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
