package cli

import (
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/adapters/morph"
)

func newBuildDictionaryCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build-dictionary <dict.opcorpora.xml[.bz2|.zip]>",
		Short: "Convert the OpenCorpora dictionary into the lemmatizer's TSV",
		Long: `Convert an OpenCorpora dictionary export (https://opencorpora.org/?page=downloads)
into the form/lemma/score table read from morph.dictionary.

The export may be given as plain XML or as the .bz2 or .zip archive it is
distributed in. The table is written to --out, or to morph.dictionary when
--out is not set.

Examples:

  incidentrag build-dictionary dict.opcorpora.xml.bz2
  incidentrag build-dictionary dict.opcorpora.xml --out ./data/morph/ru.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(false); err != nil {
				return err
			}
			if out == "" {
				out = a.cfg.Morph.Dictionary
			}
			if out == "" {
				return fmt.Errorf("no output path: set --out or morph.dictionary")
			}

			src, err := openDictionarySource(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			tmp, err := os.CreateTemp(filepath.Dir(out), filepath.Base(out)+".*.tmp")
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer os.Remove(tmp.Name())

			stats, err := morph.ConvertOpenCorpora(cmd.Context(), src, tmp)
			if err != nil {
				tmp.Close()
				return fmt.Errorf("converting %s: %w", args[0], err)
			}
			if err := tmp.Close(); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			if err := os.Rename(tmp.Name(), out); err != nil {
				return fmt.Errorf("replacing %s: %w", out, err)
			}

			a.logger.Info("morphology dictionary built",
				zap.String("source", args[0]),
				zap.String("path", out),
				zap.String("revision", stats.Revision),
				zap.Int("lemmas", stats.Lemmas),
				zap.Int("entries", stats.Entries),
			)
			fmt.Fprintf(a.stdout, "wrote %d forms of %d lemmas to %s\n", stats.Entries, stats.Lemmas, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output TSV path (default morph.dictionary)")
	return cmd
}

// openDictionarySource opens the export, unpacking it by extension.
func openDictionarySource(path string) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		for _, f := range zr.File {
			if strings.EqualFold(filepath.Ext(f.Name), ".xml") {
				rc, err := f.Open()
				if err != nil {
					zr.Close()
					return nil, fmt.Errorf("opening %s in %s: %w", f.Name, path, err)
				}
				return multiCloser{Reader: rc, closers: []io.Closer{rc, zr}}, nil
			}
		}
		zr.Close()
		return nil, fmt.Errorf("%s contains no .xml file", path)
	case ".bz2":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return multiCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return os.Open(path)
	}
}

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
