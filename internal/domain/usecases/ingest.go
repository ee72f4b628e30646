package usecases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/metrics"
)

const ingestBatchSize = 32

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	Indexed int
	Skipped int // entries without a solution
}

// IngestUseCase loads historical incidents into the embedding index.
// Incident text is preprocessed before embedding; the solution travels as metadata.
type IngestUseCase struct {
	index        ports.EmbeddingIndex
	preprocessor *Preprocessor
	loader       ports.DocumentLoader
	concurrency  int
	logger       *zap.Logger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	index ports.EmbeddingIndex,
	preprocessor *Preprocessor,
	loader ports.DocumentLoader,
	concurrency int,
	logger *zap.Logger,
) *IngestUseCase {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		index:        index,
		preprocessor: preprocessor,
		loader:       loader,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Ingest preprocesses, embeds and upserts entries. Entries lacking a solution are
// skipped since retrieval could never return them. Entries are embedded in batches
// of ingestBatchSize, up to concurrency batches at a time.
func (uc *IngestUseCase) Ingest(ctx context.Context, entries []entities.KnowledgeEntry) (IngestStats, error) {
	var stats IngestStats
	docs := make([]ports.Document, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.Solution) == "" || strings.TrimSpace(entry.Incident) == "" {
			stats.Skipped++
			metrics.IngestedEntriesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if entry.ID == "" {
			entry.ID = entryID(entry.Source, i)
		}
		text := uc.preprocessor.Process(entry.Incident)
		if text == "" {
			text = entry.Incident
		}
		docs = append(docs, ports.Document{ID: entry.ID, Text: text, Metadata: entry.Metadata()})
	}

	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)

	for batch := range slices.Chunk(docs, ingestBatchSize) {
		g.Go(func() error {
			if err := uc.index.Upsert(gctx, batch...); err != nil {
				metrics.IngestedEntriesTotal.WithLabelValues("failed").Add(float64(len(batch)))
				return fmt.Errorf("indexing entries %s..%s: %w", batch[0].ID, batch[len(batch)-1].ID, err)
			}
			indexed.Add(int64(len(batch)))
			metrics.IngestedEntriesTotal.WithLabelValues("indexed").Add(float64(len(batch)))
			return nil
		})
	}

	err := g.Wait()
	stats.Indexed = int(indexed.Load())
	return stats, err
}

// IngestFile loads one knowledge file and ingests its entries. Entries are keyed
// by the absolute path so that different spellings of one file share IDs.
func (uc *IngestUseCase) IngestFile(ctx context.Context, path string) (IngestStats, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return IngestStats{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	entries, err := uc.loader.Load(ctx, path)
	if err != nil {
		return IngestStats{}, fmt.Errorf("loading %s: %w", path, err)
	}
	stats, err := uc.Ingest(ctx, entries)
	if err != nil {
		return stats, err
	}
	uc.logger.Info("ingested knowledge file",
		zap.String("path", path),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// ReplaceFile purges the entries previously ingested from path, then ingests it again.
// Entry IDs are positional, so a shrunken file would otherwise leave stale tail entries.
func (uc *IngestUseCase) ReplaceFile(ctx context.Context, path string) (IngestStats, error) {
	if _, err := uc.Remove(ctx, path); err != nil {
		return IngestStats{}, fmt.Errorf("removing previous entries of %s: %w", path, err)
	}
	return uc.IngestFile(ctx, path)
}

// IngestDir ingests every supported file directly under dir. With replace set each
// file's previous entries are purged first.
func (uc *IngestUseCase) IngestDir(ctx context.Context, dir string, replace bool) (IngestStats, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return IngestStats{}, fmt.Errorf("reading directory: %w", err)
	}

	ingest := uc.IngestFile
	if replace {
		ingest = uc.ReplaceFile
	}

	var total IngestStats
	for _, item := range items {
		if item.IsDir() || !uc.supported(item.Name()) {
			continue
		}
		stats, err := ingest(ctx, filepath.Join(dir, item.Name()))
		total.Indexed += stats.Indexed
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Remove deletes every entry that was ingested from path.
func (uc *IngestUseCase) Remove(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", path, err)
	}
	return uc.index.Delete(ctx, ports.Filter{entities.MetadataSource: abs})
}

// Watch keeps the index in sync with a directory until ctx is done.
// Created and modified files are re-ingested, deleted files are purged.
func (uc *IngestUseCase) Watch(ctx context.Context, watcher ports.FileWatcher, dir string) error {
	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	uc.logger.Info("watching knowledge directory", zap.String("dir", dir))

	for event := range events {
		log := uc.logger.With(zap.String("path", event.Path), zap.Stringer("op", event.Operation))
		switch event.Operation {
		case ports.FileCreated:
			if _, err := uc.IngestFile(ctx, event.Path); err != nil {
				log.Error("ingesting new file failed", zap.Error(err))
			}
		case ports.FileModified:
			if _, err := uc.ReplaceFile(ctx, event.Path); err != nil {
				log.Error("ingesting changed file failed", zap.Error(err))
			}
		case ports.FileDeleted:
			n, err := uc.Remove(ctx, event.Path)
			if err != nil {
				log.Error("removing entries failed", zap.Error(err))
				continue
			}
			log.Info("removed entries", zap.Int("count", n))
		}
	}
	return ctx.Err()
}

func (uc *IngestUseCase) supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range uc.loader.SupportedExtensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// entryID creates a deterministic ID so re-ingesting a file replaces its entries.
func entryID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", source, index))).String()
}
