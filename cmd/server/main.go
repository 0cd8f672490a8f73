package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/config"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:           "step-engine",
		Short:         "Workflow step dispatch engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, nil, err
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger, nil
	}

	root.AddCommand(newServeCommand(load), newMigrateCommand(load))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loader func() (*config.Config, *zap.Logger, error)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid LOG_LEVEL %q", level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}
