package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INCIDENTRAG_GIGACHAT_MODEL.
const EnvPrefix = "INCIDENTRAG"

// Manager loads configuration and optionally tracks changes to the config file.
type Manager struct {
	configPath string
	envFiles   []string

	mu        sync.RWMutex
	config    *Config
	viper     *viper.Viper
	watchChan chan Config
}

// NewManager creates a manager for configPath. envFiles are loaded into the process
// environment before reading; missing files are ignored. With no envFiles, ".env" is tried.
func NewManager(configPath string, envFiles ...string) *Manager {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &Manager{
		configPath: configPath,
		envFiles:   envFiles,
		watchChan:  make(chan Config, 1),
	}
}

// Load is a convenience for NewManager(path).Load followed by Validate.
func Load(configPath string) (*Config, error) {
	m := NewManager(configPath)
	if err := m.Load(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m.Get(), nil
}

// Load reads configuration from all sources. A missing config file is not an error.
func (m *Manager) Load() error {
	for _, f := range m.envFiles {
		// godotenv.Load never overrides variables already set in the environment.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading env file %s: %w", f, err)
		}
	}

	v := viper.New()
	if m.configPath != "" {
		v.SetConfigFile(m.configPath)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if m.configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := unmarshalConfig(v)
	applyEnvOverrides(cfg)

	m.mu.Lock()
	m.viper = v
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate combines every validation failure into one error.
func (m *Manager) Validate() error {
	errs := m.Get().Validate()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Watch re-reads the config file when it changes and delivers configurations that
// pass validation. Invalid edits are reported through onError and otherwise ignored.
func (m *Manager) Watch(onError func(error)) <-chan Config {
	m.mu.RLock()
	v := m.viper
	m.mu.RUnlock()

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := unmarshalConfig(v)
		applyEnvOverrides(cfg)
		if errs := cfg.Validate(); len(errs) > 0 {
			if onError != nil {
				onError(fmt.Errorf("ignoring invalid config change in %s: %w", e.Name, errors.Join(errs...)))
			}
			return
		}

		m.mu.Lock()
		m.config = cfg
		m.mu.Unlock()

		select {
		case m.watchChan <- *cfg:
		default:
		}
	})
	v.WatchConfig()

	return m.watchChan
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)

	v.SetDefault("gigachat.base_url", d.GigaChat.BaseURL)
	v.SetDefault("gigachat.auth_url", d.GigaChat.AuthURL)
	v.SetDefault("gigachat.scope", d.GigaChat.Scope)
	v.SetDefault("gigachat.model", d.GigaChat.Model)
	v.SetDefault("gigachat.client_id", d.GigaChat.ClientID)
	v.SetDefault("gigachat.client_secret", d.GigaChat.ClientSecret)
	v.SetDefault("gigachat.temperature", d.GigaChat.Temperature)
	v.SetDefault("gigachat.repetition_penalty", d.GigaChat.RepetitionPenalty)
	v.SetDefault("gigachat.timeout", d.GigaChat.Timeout)
	v.SetDefault("gigachat.cache_token", d.GigaChat.CacheToken)
	v.SetDefault("gigachat.insecure_skip_verify", d.GigaChat.InsecureSkipVerify)
	v.SetDefault("gigachat.ca_file", d.GigaChat.CAFile)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.max_concurrency", d.Embedding.MaxConcurrency)

	v.SetDefault("index.type", d.Index.Type)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.collection", d.Index.Collection)

	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.mongo_uri", d.Store.MongoURI)
	v.SetDefault("store.mongo_database", d.Store.MongoDatabase)
	v.SetDefault("store.mongo_collection", d.Store.MongoCollection)

	v.SetDefault("glossary.path", d.Glossary.Path)

	v.SetDefault("morph.dictionary", d.Morph.Dictionary)
	v.SetDefault("morph.stemmer_language", d.Morph.StemmerLanguage)

	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)

	v.SetDefault("ingest.dir", d.Ingest.Dir)
	v.SetDefault("ingest.watch", d.Ingest.Watch)
	v.SetDefault("ingest.extensions", d.Ingest.Extensions)
	v.SetDefault("ingest.concurrency", d.Ingest.Concurrency)
	v.SetDefault("ingest.debounce", d.Ingest.Debounce)

	v.SetDefault("parser.service_url", d.Parser.ServiceURL)
	v.SetDefault("parser.timeout", d.Parser.Timeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

func unmarshalConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Server.Address = v.GetString("server.address")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.RequestTimeout = v.GetDuration("server.request_timeout")
	cfg.Server.CORSOrigins = stringList(v, "server.cors_origins")
	cfg.Server.MaxUploadMB = v.GetInt("server.max_upload_mb")

	cfg.GigaChat.BaseURL = v.GetString("gigachat.base_url")
	cfg.GigaChat.AuthURL = v.GetString("gigachat.auth_url")
	cfg.GigaChat.Scope = v.GetString("gigachat.scope")
	cfg.GigaChat.Model = v.GetString("gigachat.model")
	cfg.GigaChat.ClientID = v.GetString("gigachat.client_id")
	cfg.GigaChat.ClientSecret = v.GetString("gigachat.client_secret")
	cfg.GigaChat.Temperature = v.GetFloat64("gigachat.temperature")
	cfg.GigaChat.RepetitionPenalty = v.GetFloat64("gigachat.repetition_penalty")
	cfg.GigaChat.Timeout = v.GetDuration("gigachat.timeout")
	cfg.GigaChat.CacheToken = v.GetBool("gigachat.cache_token")
	cfg.GigaChat.InsecureSkipVerify = v.GetBool("gigachat.insecure_skip_verify")
	cfg.GigaChat.CAFile = v.GetString("gigachat.ca_file")

	cfg.Embedding.Provider = strings.ToLower(v.GetString("embedding.provider"))
	cfg.Embedding.BaseURL = v.GetString("embedding.base_url")
	cfg.Embedding.Model = v.GetString("embedding.model")
	cfg.Embedding.APIKey = v.GetString("embedding.api_key")
	cfg.Embedding.MaxConcurrency = v.GetInt("embedding.max_concurrency")

	cfg.Index.Type = strings.ToLower(v.GetString("index.type"))
	cfg.Index.Path = v.GetString("index.path")
	cfg.Index.Collection = v.GetString("index.collection")

	cfg.Store.Type = strings.ToLower(v.GetString("store.type"))
	cfg.Store.SQLitePath = v.GetString("store.sqlite_path")
	cfg.Store.MongoURI = v.GetString("store.mongo_uri")
	cfg.Store.MongoDatabase = v.GetString("store.mongo_database")
	cfg.Store.MongoCollection = v.GetString("store.mongo_collection")

	cfg.Glossary.Path = v.GetString("glossary.path")

	cfg.Morph.Dictionary = v.GetString("morph.dictionary")
	cfg.Morph.StemmerLanguage = v.GetString("morph.stemmer_language")

	cfg.Retrieval.TopK = v.GetInt("retrieval.top_k")

	cfg.Ingest.Dir = v.GetString("ingest.dir")
	cfg.Ingest.Watch = v.GetBool("ingest.watch")
	cfg.Ingest.Extensions = stringList(v, "ingest.extensions")
	cfg.Ingest.Concurrency = v.GetInt("ingest.concurrency")
	cfg.Ingest.Debounce = v.GetDuration("ingest.debounce")

	cfg.Parser.ServiceURL = v.GetString("parser.service_url")
	cfg.Parser.Timeout = v.GetDuration("parser.timeout")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Logging.File = v.GetString("logging.file")
	cfg.Logging.MaxSizeMB = v.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = v.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = v.GetInt("logging.max_age_days")
	cfg.Logging.Compress = v.GetBool("logging.compress")

	return cfg
}

// stringList accepts both YAML lists and comma-separated environment values.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// applyEnvOverrides honours the un-prefixed variable names of existing deployments.
// Prefixed variables, when set, still win.
func applyEnvOverrides(cfg *Config) {
	legacy := []struct {
		name, prefixed string
		dst            *string
	}{
		{"CLIENT_ID", "GIGACHAT_CLIENT_ID", &cfg.GigaChat.ClientID},
		{"CLIENT_SECRET", "GIGACHAT_CLIENT_SECRET", &cfg.GigaChat.ClientSecret},
		{"MONGO_URI", "STORE_MONGO_URI", &cfg.Store.MongoURI},
		{"CHROMA_PATH", "INDEX_PATH", &cfg.Index.Path},
	}
	for _, l := range legacy {
		if _, set := os.LookupEnv(EnvPrefix + "_" + l.prefixed); set {
			continue
		}
		if val := os.Getenv(l.name); val != "" {
			*l.dst = val
		}
	}
}
