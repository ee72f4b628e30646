package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// minWriteMargin is the time left after the request deadline to store and write the response.
const minWriteMargin = 5 * time.Second

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		add("server.address", "invalid address format (expected host:port): %v", err)
	}
	if c.Server.MaxUploadMB <= 0 {
		add("server.max_upload_mb", "must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.RequestTimeout <= 0 {
		add("server.request_timeout", "must be positive, got %s", c.Server.RequestTimeout)
	} else {
		// A report request may call the model twice: once for the report and once
		// more when it lacks a solution.
		if minimum := 2 * c.GigaChat.Timeout; c.GigaChat.Timeout > 0 && c.Server.RequestTimeout < minimum {
			add("server.request_timeout", "must cover two model calls (2 x gigachat.timeout = %s), got %s", minimum, c.Server.RequestTimeout)
		}
		if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout-c.Server.RequestTimeout < minWriteMargin {
			add("server.write_timeout", "must exceed server.request_timeout (%s) by at least %s so timeouts can be reported, got %s",
				c.Server.RequestTimeout, minWriteMargin, c.Server.WriteTimeout)
		}
	}

	// GigaChat
	if c.GigaChat.ClientID == "" {
		add("gigachat.client_id", "client id is required (set CLIENT_ID or INCIDENTRAG_GIGACHAT_CLIENT_ID)")
	}
	if c.GigaChat.ClientSecret == "" {
		add("gigachat.client_secret", "client secret is required (set CLIENT_SECRET or INCIDENTRAG_GIGACHAT_CLIENT_SECRET)")
	}
	for field, raw := range map[string]string{
		"gigachat.base_url": c.GigaChat.BaseURL,
		"gigachat.auth_url": c.GigaChat.AuthURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add(field, "must be an absolute URL, got %q", raw)
		}
	}
	if c.GigaChat.Timeout <= 0 {
		add("gigachat.timeout", "must be positive, got %s", c.GigaChat.Timeout)
	}
	if c.GigaChat.CAFile != "" {
		if _, err := os.Stat(c.GigaChat.CAFile); os.IsNotExist(err) {
			add("gigachat.ca_file", "CA file does not exist: %s", c.GigaChat.CAFile)
		}
	}

	// Embedding
	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		add("embedding.provider", "must be one of openai, ollama; got %q", c.Embedding.Provider)
	}

	// Index
	switch c.Index.Type {
	case "sqlite":
		if c.Index.Path == "" {
			add("index.path", "path is required for the sqlite index")
		}
	case "memory":
	default:
		add("index.type", "must be one of sqlite, memory; got %q", c.Index.Type)
	}
	if strings.TrimSpace(c.Index.Collection) == "" {
		add("index.collection", "collection name is required")
	}

	// Store
	switch c.Store.Type {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path", "path is required for the sqlite store")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			add("store.mongo_uri", "mongo uri is required (set MONGO_URI or INCIDENTRAG_STORE_MONGO_URI)")
		}
	default:
		add("store.type", "must be one of sqlite, mongo; got %q", c.Store.Type)
	}

	// Retrieval
	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "must be at least 1, got %d", c.Retrieval.TopK)
	}

	// Logging
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format", "must be json or console, got %q", c.Logging.Format)
	}

	return errs
}
