package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
)

var (
	analyzeProvider        string
	analyzeFormat          string
	analyzeMode            string
	analyzeInsuranceWeight float64
	analyzeOutput          string
	analyzeSave            bool
	analyzeLimit           int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a single rate sheet file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read file")
		}

		env, err := initAnalysis(ctx, analyzeSave)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := pipeline.Options{
			Provider: analyzeProvider,
			Format:   analyzeFormat,
			Mode:     analyzeMode,
		}
		if cmd.Flags().Changed("insurance-weight") {
			w := analyzeInsuranceWeight
			opts.InsuranceWeight = &w
		}

		report, err := env.analyze(ctx, filepath.Base(args[0]), data, opts)
		if err != nil {
			return err
		}

		if analyzeSave {
			if err := env.persist(ctx, report, analyzeProvider); err != nil {
				return err
			}
		}

		zap.L().Info("analysis complete",
			zap.String("file", report.FileName),
			zap.Int("vehicles", report.Stats.TotalVehicles),
			zap.Float64("top_score", report.Stats.TopScore),
		)

		if analyzeLimit > 0 && len(report.TopDeals) > analyzeLimit {
			report.TopDeals = report.TopDeals[:analyzeLimit]
		}
		return renderReport(os.Stdout, report, analyzeOutput)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "provider name (selects configured format)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "", "force a column layout (lex, vanarama-lcv, generic)")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "scoring mode (standard or extended)")
	analyzeCmd.Flags().Float64Var(&analyzeInsuranceWeight, "insurance-weight", 0, "insurance blend weight (0 to 0.2)")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "table", "output format (table, json, csv)")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist results to the store")
	analyzeCmd.Flags().IntVar(&analyzeLimit, "limit", 0, "show at most this many deals")
	rootCmd.AddCommand(analyzeCmd)
}
