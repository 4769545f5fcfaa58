package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate embeddings for active jobs that have none",
	Run: func(cmd *cobra.Command, _ []string) {
		limit, _ := cmd.Flags().GetUint("limit")
		backfill(limit)
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Print the share of active jobs with an embedding",
	Run: func(_ *cobra.Command, _ []string) {
		coverage()
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.AddCommand(coverageCmd)

	embedCmd.Flags().Uint("limit", 500, "maximum number of jobs to embed, 0 for all")
}

func backfill(limit uint) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer a.Close()

	report, err := a.embeddings.Backfill(ctx, limit)
	logger.Info("embedding backfill",
		zap.Int("total", report.Generation.Total),
		zap.Int("generated", report.Generation.Generated),
		zap.Int("skipped", report.Generation.Skipped),
		zap.Int("failed", report.Generation.Failed),
		zap.Int("stored", report.Storage.Stored),
		zap.Strings("store_failures", report.Storage.Failed),
		zap.Float64("coverage", report.Coverage),
	)
	if err != nil {
		logger.Fatal("embedding backfill failed", zap.Error(err))
	}
}

func coverage() {
	ctx := context.Background()
	config, logger := setup()

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer a.Close()

	c, err := a.store.EmbeddingCoverage(ctx)
	if err != nil {
		logger.Fatal("reading embedding coverage", zap.Error(err))
	}
	logger.Info("embedding coverage",
		zap.Int("active", c.Active),
		zap.Int("embedded", c.Embedded),
		zap.Float64("ratio", c.Ratio()),
	)
}
