package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
)

var (
	batchProvider    string
	batchConcurrency int
	batchSave        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Analyze multiple rate sheet files concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx, batchSave)
		if err != nil {
			return err
		}
		defer env.Close()

		return processBatch(ctx, args, batchConcurrency, func(ctx context.Context, name string, data []byte) (*model.Report, error) {
			report, err := env.analyze(ctx, name, data, pipeline.Options{Provider: batchProvider})
			if err != nil {
				return nil, err
			}
			if batchSave {
				if err := env.persist(ctx, report, batchProvider); err != nil {
					return nil, err
				}
			}
			return report, nil
		})
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchProvider, "provider", "", "provider name applied to every file")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "max files analyzed in parallel")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist results to the store")
	rootCmd.AddCommand(batchCmd)
}

// analyzeFunc is the callback signature for analyzing one batch file.
type analyzeFunc func(ctx context.Context, name string, data []byte) (*model.Report, error)

// processBatch reads and analyzes files concurrently. Individual file
// failures are logged and counted but do not abort the batch.
func processBatch(ctx context.Context, paths []string, concurrency int, analyze analyzeFunc) error {
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))

			data, err := os.ReadFile(path)
			if err != nil {
				failed.Add(1)
				log.Error("read failed", zap.Error(err))
				return nil
			}

			report, err := analyze(gctx, filepath.Base(path), data)
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("analysis complete",
				zap.Int("vehicles", report.Stats.TotalVehicles),
				zap.Float64("top_score", report.Stats.TopScore),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if succeeded.Load() == 0 && failed.Load() > 0 {
		return eris.New("batch: all files failed")
	}
	return nil
}
