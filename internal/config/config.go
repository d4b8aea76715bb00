// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

// Package config loads rentloop configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, environment variables (optionally preloaded from a .env file)
// and finally explicitly set command-line flags. The merged result is
// validated against the JSON schema reflected from Config.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" json:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics"`
	Log      LogConfig      `koanf:"log" json:"log"`
	Database DatabaseConfig `koanf:"database" json:"database"`
	Media    MediaConfig    `koanf:"media" json:"media"`
	Events   EventsConfig   `koanf:"events" json:"events"`
	Cache    CacheConfig    `koanf:"cache" json:"cache"`
	Auth     AuthConfig     `koanf:"auth" json:"auth"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" json:"addr" jsonschema:"minLength=1"`
	AllowedOrigins  []string      `koanf:"allowed_origins" json:"allowed_origins,omitempty"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" json:"max_body_bytes" jsonschema:"minimum=1024"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" jsonschema:"minimum=0"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string       `koanf:"format" json:"format" jsonschema:"enum=json,enum=text,enum=pretty"`
	Level  string       `koanf:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Fluent FluentConfig `koanf:"fluent" json:"fluent"`
}

// FluentConfig configures log forwarding to Fluent Bit.
type FluentConfig struct {
	Enabled   bool   `koanf:"enabled" json:"enabled"`
	Host      string `koanf:"host" json:"host"`
	Port      int    `koanf:"port" json:"port" jsonschema:"minimum=1,maximum=65535"`
	TagPrefix string `koanf:"tag_prefix" json:"tag_prefix"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url"`
	MaxConns        int32         `koanf:"max_conns" json:"max_conns" jsonschema:"minimum=0"`
	ConnectAttempts uint64        `koanf:"connect_attempts" json:"connect_attempts" jsonschema:"minimum=1"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" json:"connect_backoff" jsonschema:"minimum=0"`
}

// MediaConfig configures the GridFS image store.
type MediaConfig struct {
	URI            string        `koanf:"uri" json:"uri"`
	Database       string        `koanf:"database" json:"database" jsonschema:"minLength=1"`
	Bucket         string        `koanf:"bucket" json:"bucket" jsonschema:"minLength=1"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" json:"connect_timeout" jsonschema:"minimum=0"`
	DeleteAttempts uint64        `koanf:"delete_attempts" json:"delete_attempts" jsonschema:"minimum=1"`
}

// EventsConfig configures the RabbitMQ publisher. An empty URL disables it.
type EventsConfig struct {
	URL      string `koanf:"url" json:"url"`
	Exchange string `koanf:"exchange" json:"exchange" jsonschema:"minLength=1"`
}

// CacheConfig configures the Redis list cache. An empty URL disables it.
type CacheConfig struct {
	URL    string        `koanf:"url" json:"url"`
	Prefix string        `koanf:"prefix" json:"prefix" jsonschema:"minLength=1"`
	TTL    time.Duration `koanf:"ttl" json:"ttl" jsonschema:"minimum=0"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" json:"jwt_secret"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MaxBodyBytes:    37 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
			Fluent: FluentConfig{Host: "localhost", Port: 24224, TagPrefix: "rentloop"},
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
		},
		Media: MediaConfig{
			Database:       "rentloop",
			Bucket:         "images",
			ConnectTimeout: 10 * time.Second,
			DeleteAttempts: 3,
		},
		Events: EventsConfig{Exchange: "rentloop.properties"},
		Cache:  CacheConfig{Prefix: "rentloop:list", TTL: time.Minute},
	}
}

// envKeys maps environment variables to config keys.
var envKeys = map[string]string{
	"DATABASE_URL":       "database.url",
	"JWT_SECRET":         "auth.jwt_secret",
	"MONGO_URI":          "media.uri",
	"AMQP_URL":           "events.url",
	"REDIS_URL":          "cache.url",
	"RENTLOOP_HTTP_ADDR": "http.addr",
	"RENTLOOP_LOG_LEVEL": "log.level",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// BindFlags registers the flags Load understands.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("config", "", "path to a YAML config file")
	flags.String("env-file", ".env", "dotenv file preloaded into the environment if present")
	flags.String("http-addr", d.HTTP.Addr, "API listen address")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics/health listen address (empty disables)")
	flags.String("log-format", d.Log.Format, "log format (json, text or pretty)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn or error)")
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// Path is a YAML file. Empty skips the file layer.
	Path string
	// EnvFile is a dotenv file read if it exists.
	EnvFile string
	// Getenv overrides os.Getenv.
	Getenv func(string) string
	// Flags contributes explicitly set flags named in BindFlags.
	Flags *pflag.FlagSet
}

// OptionsFromFlags reads the --config and --env-file flags.
func OptionsFromFlags(flags *pflag.FlagSet) LoadOptions {
	opts := LoadOptions{Flags: flags}
	if v, err := flags.GetString("config"); err == nil {
		opts.Path = v
	}
	if v, err := flags.GetString("env-file"); err == nil {
		opts.EnvFile = v
	}
	return opts
}

// Load merges every configured source and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", opts.Path).Wrap(err)
		}
	}

	env, err := environment(opts)
	if err != nil {
		return nil, err
	}
	for name, key := range envKeys {
		if v := env(name); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_ENV_FAILED").With("env", name).Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment returns a lookup over the process environment, falling back
// to the dotenv file. Process variables always win.
func environment(opts LoadOptions) (func(string) string, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if opts.EnvFile == "" {
		return getenv, nil
	}
	fileVars, err := godotenv.Read(opts.EnvFile)
	if errors.Is(err, fs.ErrNotExist) {
		return getenv, nil
	}
	if err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").With("path", opts.EnvFile).Wrap(err)
	}
	return func(name string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return fileVars[name]
	}, nil
}

// RequireServe checks the settings the API server cannot start without.
func (c *Config) RequireServe() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url (DATABASE_URL)")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret (JWT_SECRET)")
	}
	if c.Media.URI == "" {
		missing = append(missing, "media.uri (MONGO_URI)")
	}
	if len(missing) > 0 {
		return oops.Code("CONFIG_INCOMPLETE").
			With("missing", missing).
			Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireDatabase checks the settings migrations need.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INCOMPLETE").Errorf("missing required setting: database.url (DATABASE_URL)")
	}
	return nil
}

// Redacted returns a copy safe to print: credentials are masked.
func (c *Config) Redacted() *Config {
	r := *c
	r.HTTP.AllowedOrigins = append([]string(nil), c.HTTP.AllowedOrigins...)
	r.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	r.Database.URL = maskURL(c.Database.URL)
	r.Media.URI = maskURL(c.Media.URI)
	r.Events.URL = maskURL(c.Events.URL)
	r.Cache.URL = maskURL(c.Cache.URL)
	return &r
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted:" + strconv.Itoa(len(s)) + ">"
}

// maskURL hides the userinfo section of a connection URL.
func maskURL(s string) string {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return s
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return s
	}
	return scheme + "://<redacted>@" + rest[at+1:]
}
