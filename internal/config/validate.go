package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validation modes, one per group of commands.
const (
	ModeStore   = "store"
	ModeExtract = "extract"
	ModeIngest  = "ingest"
	ModeServe   = "serve"
)

// Validate checks that the settings a mode depends on are present and sane.
// All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeStore:
		errs = append(errs, c.validateStore()...)
	case ModeExtract:
		errs = append(errs, c.validateStore()...)
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			errs = append(errs, "anthropic.model is required")
		}
		if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 64 {
			errs = append(errs, "extract.concurrency must be between 1 and 64")
		}
		if c.Extract.MaxPromptTokens <= 0 {
			errs = append(errs, "extract.max_prompt_tokens must be > 0")
		}
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, "retry.max_attempts must be >= 1")
		}
		if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
			errs = append(errs, "retry.jitter_fraction must be between 0 and 1")
		}
	case ModeIngest:
		errs = append(errs, c.validateStore()...)
		if c.Firecrawl.Key == "" {
			errs = append(errs, "firecrawl.key is required")
		}
		if c.Firecrawl.MaxPages <= 0 {
			errs = append(errs, "firecrawl.max_pages must be > 0")
		}
	case ModeServe:
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, `store.driver must be "sqlite" or "postgres"`)
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.Anthropic.Key = mask(c.Anthropic.Key)
	c.Firecrawl.Key = mask(c.Firecrawl.Key)
	c.Monitoring.WebhookURL = mask(c.Monitoring.WebhookURL)
	if strings.Contains(c.Store.DatabaseURL, "@") {
		c.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	}
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
