package usecases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

// Preprocessor turns free text into a NormalizedDocument: glossary substitution,
// tokenization and lemmatization, joined with single spaces.
// Both collaborators are read-only after construction, so it is safe for concurrent use.
type Preprocessor struct {
	normalizer ports.Normalizer
	lemmatizer ports.Lemmatizer
}

// NewPreprocessor creates a Preprocessor.
func NewPreprocessor(normalizer ports.Normalizer, lemmatizer ports.Lemmatizer) *Preprocessor {
	return &Preprocessor{normalizer: normalizer, lemmatizer: lemmatizer}
}

// Process normalizes a single text.
func (p *Preprocessor) Process(text string) string {
	return strings.Join(p.lemmatizer.TokenizeAndLemmatize(p.normalizer.Normalize(text)), " ")
}

// ProcessDirectory processes every .txt file in inDir and writes the result under the
// same name in outDir. It returns the number of files written.
func (p *Preprocessor) ProcessDirectory(ctx context.Context, inDir, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(inDir, "*.txt"))
	if err != nil {
		return 0, fmt.Errorf("listing input files: %w", err)
	}

	written := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return written, fmt.Errorf("reading %s: %w", path, err)
		}
		out := filepath.Join(outDir, filepath.Base(path))
		if err := os.WriteFile(out, []byte(p.Process(string(data))), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", out, err)
		}
		written++
	}
	return written, nil
}
