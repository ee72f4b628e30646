package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/incidentrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/usecases"
)

func newIngestCmd(a *app) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Load knowledge files into the embedding index",
		Long: `Load historical incidents into the embedding index.

Each path is a .json, .yaml, .yml or .txt knowledge file, or a directory whose
supported files are loaded. Files are identified by their absolute path, so
re-ingesting a file overwrites its entries however the path is spelled. With
--replace (the default) entries left over from a previous, longer version of a
file are dropped as well.

Examples:

  incidentrag ingest ./knowledge
  incidentrag ingest incidents-2024.yaml --replace=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(false); err != nil {
				return err
			}
			return a.ingest(cmd.Context(), args, replace)
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", true, "drop entries previously loaded from a file before loading it again")
	return cmd
}

func (a *app) ingest(ctx context.Context, paths []string, replace bool) error {
	var cl closers
	defer cl.closeAll(a.logger)

	g, err := loadGlossary(a.cfg.Glossary, a.logger)
	if err != nil {
		return err
	}
	preprocessor, err := buildPreprocessor(g, a.cfg.Morph, a.logger)
	if err != nil {
		return err
	}
	index, err := buildIndex(ctx, a.cfg, &cl)
	if err != nil {
		return err
	}

	uc := usecases.NewIngestUseCase(index, preprocessor, loader.NewMultiLoader(), a.cfg.Ingest.Concurrency, a.logger.Named("ingest"))

	var total usecases.IngestStats
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		var stats usecases.IngestStats
		switch {
		case info.IsDir():
			stats, err = uc.IngestDir(ctx, path, replace)
		case replace:
			stats, err = uc.ReplaceFile(ctx, path)
		default:
			stats, err = uc.IngestFile(ctx, path)
		}
		total.Indexed += stats.Indexed
		total.Skipped += stats.Skipped
		if err != nil {
			return err
		}
	}

	n, err := index.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "indexed %d entries, skipped %d without a solution; index now holds %d\n",
		total.Indexed, total.Skipped, n)
	return nil
}
