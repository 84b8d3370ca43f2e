package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetscore/ratesheet-cli/internal/store"
)

var (
	bestManufacturer string
	bestFuelType     string
	bestMaxMonthly   float64
	bestMinScore     float64
	bestLimit        int
	bestJSON         bool
)

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the best stored quote per vehicle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.GetBestPricing(ctx, store.BestPricingFilter{
			Manufacturer: bestManufacturer,
			FuelType:     bestFuelType,
			MaxMonthly:   bestMaxMonthly,
			MinScore:     bestMinScore,
			Limit:        bestLimit,
		})
		if err != nil {
			return err
		}

		if bestJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		return renderBestPricing(os.Stdout, rows)
	},
}

func init() {
	bestCmd.Flags().StringVar(&bestManufacturer, "manufacturer", "", "filter by manufacturer")
	bestCmd.Flags().StringVar(&bestFuelType, "fuel", "", "filter by fuel type")
	bestCmd.Flags().Float64Var(&bestMaxMonthly, "max-monthly", 0, "max monthly rental")
	bestCmd.Flags().Float64Var(&bestMinScore, "min-score", 0, "minimum score")
	bestCmd.Flags().IntVar(&bestLimit, "limit", 0, "max rows (default 100)")
	bestCmd.Flags().BoolVar(&bestJSON, "json", false, "output JSON instead of a table")
	rootCmd.AddCommand(bestCmd)
}
