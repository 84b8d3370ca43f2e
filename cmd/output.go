package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/store"
)

// renderReport writes a report in the requested format.
func renderReport(w io.Writer, report *model.Report, format string) error {
	switch format {
	case "", "table":
		return renderReportTable(w, report)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "csv":
		return renderReportCSV(w, report)
	default:
		return eris.Errorf("unknown output format %q", format)
	}
}

func renderReportTable(w io.Writer, report *model.Report) error {
	fmt.Fprintf(w, "File: %s\n", report.FileName)
	fmt.Fprintf(w, "Vehicles scored: %d  Average: %.1f  Top: %.1f\n",
		report.Stats.TotalVehicles, report.Stats.AverageScore, report.Stats.TopScore)
	fmt.Fprintf(w, "Format: %s (header row %d)\n\n",
		report.DetectedFormat.Format, report.DetectedFormat.HeaderRow)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tMANUFACTURER\tMODEL\tMONTHLY\tTERM\tMILEAGE\tFUEL")
	for _, deal := range report.TopDeals {
		in := deal.Breakdown.Inputs
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%.2f\t%.0f\t%.0f\t%s\n",
			deal.Score, deal.Vehicle.Manufacturer, deal.Vehicle.Model,
			in.MonthlyPayment, in.Term, in.Mileage, in.FuelType)
	}
	return tw.Flush()
}

func renderReportCSV(w io.Writer, report *model.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"score", "manufacturer", "model", "monthly", "term", "mileage", "fuel"}); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for _, deal := range report.TopDeals {
		in := deal.Breakdown.Inputs
		row := []string{
			strconv.FormatFloat(deal.Score, 'f', 1, 64),
			deal.Vehicle.Manufacturer,
			deal.Vehicle.Model,
			strconv.FormatFloat(in.MonthlyPayment, 'f', 2, 64),
			strconv.FormatFloat(in.Term, 'f', 0, 64),
			strconv.FormatFloat(in.Mileage, 'f', 0, 64),
			in.FuelType,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return cw.Error()
}

// renderBestPricing writes the best-pricing query results as a table.
func renderBestPricing(w io.Writer, rows []store.BestPricing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tMANUFACTURER\tMODEL\tFUEL\tMONTHLY\tPROVIDER\tTERM\tMILEAGE")
	for _, row := range rows {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%.2f\t%s\t%d\t%d\n",
			row.Pricing.Score, row.Vehicle.Manufacturer, row.Vehicle.Model,
			row.Vehicle.FuelType, row.Pricing.MonthlyRental, row.Pricing.Provider,
			row.Pricing.Term, row.Pricing.Mileage)
	}
	return tw.Flush()
}
