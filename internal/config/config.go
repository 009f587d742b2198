// Package config loads tally settings from an optional CUE file, a .env
// file and TALLY_* environment variables, in increasing precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
)

//go:embed schema.cue
var schemaSource string

// Config is the resolved configuration.
type Config struct {
	Database       string `json:"database"`
	RemoteURL      string `json:"remote_url,omitempty"`
	AttachmentsDir string `json:"attachments_dir"`
	GCSBucket      string `json:"gcs_bucket,omitempty"`
	Listen         string `json:"listen"`
	JWTSecret      string `json:"jwt_secret,omitempty"`
	PostgresURL    string `json:"postgres_url,omitempty"`
	Timezone       string `json:"timezone"`
}

// envVars maps environment variables onto config fields.
var envVars = []struct {
	name  string
	field func(*Config) *string
}{
	{"TALLY_DB", func(c *Config) *string { return &c.Database }},
	{"TALLY_REMOTE_URL", func(c *Config) *string { return &c.RemoteURL }},
	{"TALLY_ATTACH_DIR", func(c *Config) *string { return &c.AttachmentsDir }},
	{"TALLY_GCS_BUCKET", func(c *Config) *string { return &c.GCSBucket }},
	{"TALLY_LISTEN", func(c *Config) *string { return &c.Listen }},
	{"TALLY_JWT_SECRET", func(c *Config) *string { return &c.JWTSecret }},
	{"TALLY_POSTGRES_URL", func(c *Config) *string { return &c.PostgresURL }},
	{"TALLY_TIMEZONE", func(c *Config) *string { return &c.Timezone }},
}

// Error reports an invalid configuration file or value.
type Error struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the CUE file at path (skipped if path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return Config{}, err
	}
	ApplyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes the CUE file at path against the schema and fills in
// defaults. An empty path yields the defaults.
func Parse(path string) (Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Path: path, Err: err}
		}
	}
	return parse(path, data)
}

func parse(path string, data []byte) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, &Error{Path: "schema.cue", Err: err}
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if len(data) > 0 {
		file := ctx.CompileBytes(data, cue.Filename(path))
		if err := file.Err(); err != nil {
			return Config{}, &Error{Path: path, Err: err}
		}
		v = v.Unify(file)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process
// environment. Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}

// ApplyEnv overrides fields from TALLY_* variables looked up with getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	for _, ev := range envVars {
		if v := getenv(ev.name); v != "" {
			*ev.field(cfg) = v
		}
	}
}

// Validate checks values that can also come from the environment.
func (c Config) Validate() error {
	if c.Database == "" {
		return &Error{Err: errors.New("database path is required")}
	}
	if _, err := c.Location(); err != nil {
		return &Error{Err: err}
	}
	return nil
}

// Location resolves Timezone. "Local" (or empty) is the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
