package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetscore/ratesheet-cli/internal/fetcher"
	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
)

var (
	fetchProvider string
	fetchDir      string
	fetchAnalyze  bool
	fetchSave     bool
	fetchLatest   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch rate sheets from the configured FTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := fetcher.NewFTP(cfg.FTP)
		if err != nil {
			return err
		}

		files, err := f.List(ctx)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			zap.L().Info("no rate sheets found on server")
			return nil
		}

		if !fetchAnalyze && fetchDir == "" {
			// List only.
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
			for _, rf := range files {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", rf.Name, rf.Size, rf.Time.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		}

		if fetchLatest {
			files = files[:1]
		}

		var env *analysisEnv
		if fetchAnalyze {
			env, err = initAnalysis(ctx, fetchSave)
			if err != nil {
				return err
			}
			defer env.Close()
		}

		for _, rf := range files {
			data, err := f.Download(ctx, rf.Name)
			if err != nil {
				return err
			}

			if fetchDir != "" {
				dest := filepath.Join(fetchDir, filepath.Base(rf.Name))
				if err := os.WriteFile(dest, data, 0o644); err != nil {
					return err
				}
				zap.L().Info("saved", zap.String("path", dest))
			}

			if env != nil {
				report, err := env.analyze(ctx, rf.Name, data, pipeline.Options{Provider: fetchProvider})
				if err != nil {
					zap.L().Error("analysis failed", zap.String("file", rf.Name), zap.Error(err))
					continue
				}
				if fetchSave {
					if err := env.persist(ctx, report, fetchProvider); err != nil {
						return err
					}
				}
				zap.L().Info("analysis complete",
					zap.String("file", rf.Name),
					zap.Int("vehicles", report.Stats.TotalVehicles),
					zap.Float64("top_score", report.Stats.TopScore),
				)
			}
		}

		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider name for analysis")
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "download files into this directory")
	fetchCmd.Flags().BoolVar(&fetchAnalyze, "analyze", false, "analyze downloaded files")
	fetchCmd.Flags().BoolVar(&fetchSave, "save", false, "persist analysis results to the store")
	fetchCmd.Flags().BoolVar(&fetchLatest, "latest", false, "only the newest file")
	rootCmd.AddCommand(fetchCmd)
}
