package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPreprocessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess <in-dir> <out-dir>",
		Short: "Normalize and lemmatize .txt files",
		Long: `Apply glossary substitution and lemmatization to every .txt file in
<in-dir> and write the results under the same names in <out-dir>.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(false); err != nil {
				return err
			}

			g, err := loadGlossary(a.cfg.Glossary, a.logger)
			if err != nil {
				return err
			}
			p, err := buildPreprocessor(g, a.cfg.Morph, a.logger)
			if err != nil {
				return err
			}

			n, err := p.ProcessDirectory(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %d files to %s\n", n, args[1])
			return nil
		},
	}
}
