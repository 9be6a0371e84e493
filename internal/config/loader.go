package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// ErrNoDatabase is returned by RequireDatabase when no connection string is set.
var ErrNoDatabase = errors.New("DATABASE_URL is required")

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DB_URL")
	}
	for _, list := range []*[]string{
		&cfg.Import.Whitelist,
		&cfg.Security.TrustedProxies,
		&cfg.Security.AllowedOrigins,
		&cfg.Security.APIKeys,
	} {
		*list = trimList(*list)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// trimList drops blanks and surrounding whitespace from a parsed list.
func trimList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ImportSlots is how many imports the server runs at once: MaxConcurrent,
// capped by the pool size since each import holds a connection.
func (c *Config) ImportSlots() int {
	if c.Database.MaxConns > 0 {
		return min(c.Import.MaxConcurrent, c.Database.MaxConns)
	}
	return c.Import.MaxConcurrent
}

// RequireDatabase reports whether a record store is configured. Dry runs
// work without one.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrNoDatabase
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.Workers <= 0 {
		errs = append(errs, "IMPORT_WORKERS must be positive")
	}
	if c.Import.Workers > c.Database.MaxConns && c.Database.MaxConns > 0 {
		errs = append(errs, fmt.Sprintf("IMPORT_WORKERS (%d) must not exceed DB_MAX_CONNS (%d)",
			c.Import.Workers, c.Database.MaxConns))
	}
	if c.Import.MaxAttempts < 0 {
		errs = append(errs, "IMPORT_MAX_ATTEMPTS must be non-negative (0 = unbounded)")
	}
	if c.Import.RetryInitialInterval < 0 || c.Import.RetryMaxInterval < c.Import.RetryInitialInterval {
		errs = append(errs, "IMPORT_RETRY_MAX_INTERVAL must be >= IMPORT_RETRY_INITIAL_INTERVAL >= 0")
	}
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if _, err := ParseDelimiter(c.Import.Delimiter); err != nil {
		errs = append(errs, "IMPORT_DELIMITER "+err.Error())
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ParseDelimiter accepts a single character, or "tab" / `\t`.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("(%q) must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\'' || r == '\n' || r == '\r' {
		return 0, fmt.Errorf("(%q) cannot be a quote or line break", s)
	}
	return r, nil
}

// RetryPolicy builds the commit retry policy for the import engine.
func (c *ImportConfig) RetryPolicy() core.RetryPolicy {
	if c.RetryInitialInterval <= 0 {
		return core.RetryPolicy{MaxAttempts: c.MaxAttempts}
	}
	return core.ExponentialRetry(c.MaxAttempts, c.RetryInitialInterval, c.RetryMaxInterval)
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {Workers: %d, MaxAttempts: %d, MaxFileSize: %d, MaxConcurrent: %d}, ",
		c.Import.Workers, c.Import.MaxAttempts, c.Import.MaxFileSize, c.Import.MaxConcurrent)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
