// Package cli implements the incidentrag command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/config"
	"github.com/0xcro3dile/incidentrag-go/internal/logging"
)

type app struct {
	configPath string
	envFiles   []string
	logLevel   string

	manager *config.Manager
	cfg     *config.Config
	logger  *zap.Logger
	level   zap.AtomicLevel

	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "incidentrag",
		Short:         "Incident knowledge base with retrieval-augmented answers",
		Long:          "incidentrag indexes historical incidents, answers questions from their solutions and turns call transcripts into structured incident reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "env files loaded before the config")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newServeCmd(a),
		newIngestCmd(a),
		newPreprocessCmd(a),
		newBuildDictionaryCmd(a),
	)
	return cmd
}

// setup loads configuration and builds the logger. Only serve needs credentials,
// so validation is left to the caller.
func (a *app) setup(validate bool) error {
	a.manager = config.NewManager(a.configPath, a.envFiles...)
	if err := a.manager.Load(); err != nil {
		return err
	}
	a.cfg = a.manager.Get()
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	if validate {
		if err := a.manager.Validate(); err != nil {
			return err
		}
	}

	logger, level, err := logging.NewAtomicLogger(a.cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.logger, a.level = logger, level
	return nil
}
