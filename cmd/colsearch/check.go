package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/domain/search/request"
)

func newCheckCmd() *cobra.Command {
	var (
		query string
		k     int
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve config, load metadata, initialize the backend and exit",
		Long: `check performs the full startup sequence synchronously and exits non-zero on any
fatal error. With --query it also runs one search end to end.

Examples:
  colsearch check
  colsearch check --query "barack obama" -k 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var kp *int
			if cmd.Flags().Changed("k") {
				kp = &k
			}
			return runCheck(cmd, query, kp)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "probe query to run after initialization")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of probe results (default from config)")
	return cmd
}

func runCheck(cmd *cobra.Command, query string, k *int) error {
	cfg, env, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(env, &cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Metadata check failed", zap.Error(err))
		return err
	}
	defer a.Close()

	start := time.Now()
	if err := a.manager.Init(ctx); err != nil {
		logger.Error("Backend check failed", zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "index %s (%s) ready in %s, %d documents\n",
		cfg.Index.Name, cfg.Index.Dir(), time.Since(start).Round(time.Millisecond), a.table.Len())

	if query == "" {
		return nil
	}

	req, err := request.New(query, k, cfg.Search.DefaultK, cfg.Search.MaxK)
	if err != nil {
		return err
	}
	results, err := a.search.Search(ctx, &req)
	if err != nil {
		logger.Error("Probe query failed", zap.Error(err))
		return err
	}
	for i := range results {
		r := &results[i]
		fmt.Fprintf(out, "%2d. [%.4f] %d %s\n", i+1, r.Score(), r.ID(), preview(r.Text(), 100))
	}
	return nil
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
