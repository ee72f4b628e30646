package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/glossary"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/llm"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/morph"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/store"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/incidentrag-go/internal/config"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/usecases"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) closeAll(logger *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

// loadGlossary reads the glossary file. A missing file yields an empty glossary
// so that a fresh checkout still serves requests.
func loadGlossary(cfg config.GlossaryConfig, logger *zap.Logger) (entities.Glossary, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	g, err := glossary.Load(cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("glossary not found, continuing without one", zap.String("path", cfg.Path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("glossary loaded", zap.String("path", cfg.Path), zap.Int("terms", len(g)))
	return g, nil
}

// buildPreprocessor chains the morphology dictionary, when present, in front of the
// Snowball stemmer. Without a dictionary lemmas degrade to stems ("упала" becomes
// "упа"), so that case is logged as a warning rather than failing startup.
func buildPreprocessor(g entities.Glossary, cfg config.MorphConfig, logger *zap.Logger) (*usecases.Preprocessor, error) {
	var chain morph.Chain
	dict, err := loadDictionary(cfg.Dictionary)
	switch {
	case dict == nil && (err == nil || errors.Is(err, os.ErrNotExist)):
		logger.Warn("no morphology dictionary, lemmatizing with the Snowball stemmer only; run `incidentrag build-dictionary` to create it",
			zap.String("path", cfg.Dictionary))
	case err != nil:
		return nil, err
	default:
		logger.Info("morphology dictionary loaded", zap.String("path", cfg.Dictionary), zap.Int("forms", dict.Len()))
		chain = append(chain, dict)
	}
	chain = append(chain, morph.NewSnowballAnalyzer(cfg.StemmerLanguage))

	return usecases.NewPreprocessor(glossary.NewNormalizer(g), morph.NewLemmatizer(chain)), nil
}

func loadDictionary(path string) (*morph.DictionaryAnalyzer, error) {
	if path == "" {
		return nil, nil
	}
	return morph.LoadDictionary(path)
}

func buildEmbedder(cfg config.EmbeddingConfig) (ports.Embedder, error) {
	var e ports.Embedder
	switch cfg.Provider {
	case "openai":
		e = embedding.NewOpenAIAdapter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "ollama":
		e = embedding.NewOllamaAdapter(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return embedding.NewLimited(e, cfg.MaxConcurrency), nil
}

func buildIndex(ctx context.Context, cfg *config.Config, cl *closers) (ports.EmbeddingIndex, error) {
	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	switch cfg.Index.Type {
	case "memory":
		return vectordb.NewInMemoryIndex(embedder), nil
	case "sqlite":
		db, err := vectordb.OpenSQLiteStore(cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("opening index: %w", err)
		}
		cl.add(db.Close)
		return db.CreateOrGet(ctx, cfg.Index.Collection, cfg.Embedding.Model, embedder)
	default:
		return nil, fmt.Errorf("unknown index type %q", cfg.Index.Type)
	}
}

func buildStore(ctx context.Context, cfg config.StoreConfig, cl *closers) (ports.IncidentStore, error) {
	switch cfg.Type {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening incident store: %w", err)
		}
		cl.add(s.Close)
		return s, nil
	case "mongo":
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		cl.add(s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func buildGateway(cfg config.GigaChatConfig, logger *zap.Logger) (ports.Gateway, error) {
	client, err := llm.NewHTTPClient(cfg.InsecureSkipVerify, cfg.CAFile)
	if err != nil {
		return nil, err
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS verification disabled for GigaChat")
	}

	tokens := llm.NewOAuthTokenSource(cfg.AuthURL, llm.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
	}, client, cfg.CacheToken, logger)

	return llm.NewClient(llm.Options{
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		RepetitionPenalty: cfg.RepetitionPenalty,
		Timeout:           cfg.Timeout,
	}, tokens, client, logger), nil
}
