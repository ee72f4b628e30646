// Package config loads service configuration from a YAML file, a .env file and
// INCIDENTRAG_-prefixed environment variables, in increasing order of precedence.
package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	GigaChat  GigaChatConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
	Store     StoreConfig
	Glossary  GlossaryConfig
	Morph     MorphConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Parser    ParserConfig
	Logging   LoggingConfig
}

// ServerConfig configures the HTTP listener. RequestTimeout bounds the whole
// synthesis of one request, retrieval and both model rounds included, and must end
// before WriteTimeout so that a timeout is still reported to the client.
type ServerConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	CORSOrigins    []string
	MaxUploadMB    int
}

// GigaChatConfig configures the chat-completion gateway and its OAuth exchange.
type GigaChatConfig struct {
	BaseURL            string
	AuthURL            string
	Scope              string
	Model              string
	ClientID           string
	ClientSecret       string
	Temperature        float64
	RepetitionPenalty  float64
	Timeout            time.Duration
	CacheToken         bool
	InsecureSkipVerify bool
	CAFile             string
}

type EmbeddingConfig struct {
	Provider       string // openai or ollama
	BaseURL        string
	Model          string
	APIKey         string
	MaxConcurrency int
}

type IndexConfig struct {
	Type       string // sqlite or memory
	Path       string
	Collection string
}

type StoreConfig struct {
	Type            string // sqlite or mongo
	SQLitePath      string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

type GlossaryConfig struct {
	Path string
}

// MorphConfig selects the lemmatization backends. Dictionary is a TSV of form, lemma
// and score as written by "incidentrag build-dictionary"; words it does not know, or
// every word when the file is missing, fall back to the Snowball stemmer.
type MorphConfig struct {
	Dictionary      string
	StemmerLanguage string
}

type RetrievalConfig struct {
	TopK int
}

type IngestConfig struct {
	Dir         string
	Watch       bool
	Extensions  []string
	Concurrency int
	Debounce    time.Duration
}

type ParserConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

type LoggingConfig struct {
	Level      string
	Format     string // json or console
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8000",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   300 * time.Second,
			RequestTimeout: 270 * time.Second,
			CORSOrigins:    []string{"http://localhost:5173"},
			MaxUploadMB:    20,
		},
		GigaChat: GigaChatConfig{
			BaseURL:           "https://gigachat.devices.sberbank.ru/api/v1",
			AuthURL:           "https://ngw.devices.sberbank.ru:9443/api/v2/oauth",
			Scope:             "GIGACHAT_API_PERS",
			Model:             "GigaChat-Max",
			Temperature:       0,
			RepetitionPenalty: 1.1,
			Timeout:           120 * time.Second,
			CacheToken:        true,
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai",
			BaseURL:        "http://localhost:8080/v1",
			Model:          "paraphrase-multilingual-MiniLM-L12-v2",
			MaxConcurrency: 4,
		},
		Index: IndexConfig{
			Type:       "sqlite",
			Path:       "./data/index",
			Collection: "postgres",
		},
		Store: StoreConfig{
			Type:            "sqlite",
			SQLitePath:      "./data/incidents.db",
			MongoDatabase:   "tks",
			MongoCollection: "incident_report",
		},
		Glossary: GlossaryConfig{
			Path: "./glossary.json",
		},
		Morph: MorphConfig{
			Dictionary:      "./data/morph/ru.tsv",
			StemmerLanguage: "english",
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Ingest: IngestConfig{
			Dir:         "./knowledge",
			Extensions:  []string{".json", ".yaml", ".yml", ".txt"},
			Concurrency: 4,
			Debounce:    500 * time.Millisecond,
		},
		Parser: ParserConfig{
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}
