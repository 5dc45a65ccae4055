package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/config"
	logpkg "github.com/kailas-cloud/colsearch/internal/logger"
)

var (
	cfgFile  string
	envFiles []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "colsearch",
		Short: "HTTP search service over a late-interaction (ColBERT) passage index",
		Long: `colsearch serves ranked passage search over a prebuilt late-interaction index.

Example usage:
  colsearch serve                       # Run the HTTP service (config/$ENV.yaml)
  colsearch check --query "obama"       # Smoke test the deployment and exit
  colsearch version                     # Print build metadata`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config/$ENV.yaml)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load")

	root.AddCommand(newServeCmd(), newCheckCmd(), newVersionCmd())
	return root
}

// loadConfig resolves configuration from dotenv files, YAML and the environment.
func loadConfig() (config.Config, string, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return config.Config{}, "", err
	}

	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, env, nil
}

func newLogger(env string, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
