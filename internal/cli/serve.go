package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/incidentrag-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/incidentrag-go/internal/adapters/parser"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/incidentrag-go/internal/infrastructure/http"
)

func newServeCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API for questions and incident reports.

With --watch the knowledge directory (ingest.dir) is indexed on start and kept
in sync while the server runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(true); err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				a.cfg.Ingest.Watch = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "index and watch ingest.dir while serving")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	var cl closers
	defer cl.closeAll(logger)

	g, err := loadGlossary(cfg.Glossary, logger)
	if err != nil {
		return err
	}
	preprocessor, err := buildPreprocessor(g, cfg.Morph, logger)
	if err != nil {
		return err
	}
	index, err := buildIndex(ctx, cfg, &cl)
	if err != nil {
		return err
	}
	incidents, err := buildStore(ctx, cfg.Store, &cl)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(cfg.GigaChat, logger)
	if err != nil {
		return err
	}

	synth := usecases.NewSynthesizer(
		usecases.NewRetriever(index, cfg.Retrieval.TopK),
		gateway,
		incidents,
		g,
		cfg.Retrieval.TopK,
		logger.Named("synthesizer"),
	)

	var docParser ports.DocumentParser
	if cfg.Parser.ServiceURL != "" {
		extraction := parser.NewExtractionClient(cfg.Parser.ServiceURL, cfg.Parser.Timeout, logger)
		if err := extraction.Healthy(ctx); err != nil {
			logger.Warn("extraction service unreachable, PDF uploads will fail until it is up", zap.Error(err))
		}
		docParser = extraction
	}

	server := httpserver.NewServer(synth, incidents, index, docParser, httpserver.Options{
		Addr:           cfg.Server.Address,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	}, logger.Named("http"))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Start(ctx) })

	if cfg.Ingest.Watch {
		ingest := usecases.NewIngestUseCase(index, preprocessor, loader.NewMultiLoader(), cfg.Ingest.Concurrency, logger.Named("ingest"))
		group.Go(func() error { return a.watchKnowledge(ctx, ingest) })
	}

	group.Go(func() error {
		a.followConfig(ctx)
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// watchKnowledge indexes ingest.dir once and then follows its changes.
func (a *app) watchKnowledge(ctx context.Context, ingest *usecases.IngestUseCase) error {
	cfg := a.cfg.Ingest

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating knowledge directory: %w", err)
	}
	stats, err := ingest.IngestDir(ctx, cfg.Dir, true)
	if err != nil {
		return fmt.Errorf("initial ingest: %w", err)
	}
	a.logger.Info("knowledge directory indexed",
		zap.String("dir", cfg.Dir),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
	)

	watcher, err := filewatcher.NewFSNotifyWatcher(cfg.Extensions, cfg.Debounce, a.logger.Named("watcher"))
	if err != nil {
		return err
	}
	defer watcher.Stop()

	return ingest.Watch(ctx, watcher, cfg.Dir)
}

// followConfig applies log-level edits to the running logger. Everything else in
// the config file needs a restart.
func (a *app) followConfig(ctx context.Context) {
	if a.configPath == "" {
		return
	}
	if _, err := os.Stat(a.configPath); err != nil {
		return
	}

	changes := a.manager.Watch(func(err error) {
		a.logger.Warn("config reload rejected", zap.Error(err))
	})
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-changes:
			if err := a.level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
				a.logger.Warn("config reload rejected", zap.Error(err))
				continue
			}
			a.logger.Info("config reloaded", zap.Stringer("level", a.level.Level()))
		}
	}
}
