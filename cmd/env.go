package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
	"github.com/fleetscore/ratesheet-cli/internal/store"
)

// analysisEnv bundles the analyzer with an optional store. Store is nil for
// commands that only print results.
type analysisEnv struct {
	Analyzer *pipeline.Analyzer
	Store    store.Store
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initAnalysis(ctx context.Context, withStore bool) (*analysisEnv, error) {
	env := &analysisEnv{Analyzer: pipeline.New(cfg)}
	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}
	return env, nil
}

func (e *analysisEnv) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
}

// analyze runs one file through the pipeline. When a store is attached, the
// provider's saved column mapping feeds header-detection fallback, and a
// successful header detection refreshes that mapping.
func (e *analysisEnv) analyze(ctx context.Context, fileName string, data []byte, opts pipeline.Options) (*model.Report, error) {
	if e.Store != nil && opts.Provider != "" && opts.SavedMapping == nil {
		saved, err := e.Store.GetProviderMapping(ctx, opts.Provider)
		if err != nil {
			zap.L().Warn("load saved mapping failed", zap.String("provider", opts.Provider), zap.Error(err))
		} else {
			opts.SavedMapping = saved
		}
	}

	report, err := e.Analyzer.Analyze(ctx, fileName, data, opts)
	if err != nil {
		return nil, err
	}

	if e.Store != nil && opts.Provider != "" && !report.DetectedFormat.UsedFallback && !report.DetectedFormat.UsedSavedMapping {
		if err := e.Store.SaveProviderMapping(ctx, opts.Provider, report.ColumnMappings); err != nil {
			zap.L().Warn("save mapping failed", zap.String("provider", opts.Provider), zap.Error(err))
		}
	}

	return report, nil
}

// persist writes the report and its top deals into the store.
func (e *analysisEnv) persist(ctx context.Context, report *model.Report, provider string) error {
	if e.Store == nil {
		return eris.New("persist: no store configured")
	}
	if provider == "" {
		provider = "unknown"
	}

	for i := range report.TopDeals {
		deal := &report.TopDeals[i]
		in := deal.Breakdown.Inputs

		vehicleID, err := e.Store.UpsertVehicle(ctx, &store.Vehicle{
			CapID:        deal.Vehicle.CapID,
			Manufacturer: deal.Vehicle.Manufacturer,
			Model:        deal.Vehicle.Model,
			FuelType:     in.FuelType,
			P11D:         in.P11D,
		})
		if err != nil {
			return eris.Wrap(err, "upsert vehicle")
		}

		if err := e.Store.UpsertPricing(ctx, &store.Pricing{
			VehicleID:     vehicleID,
			Provider:      provider,
			MonthlyRental: in.MonthlyPayment,
			Term:          int(in.Term),
			Mileage:       int(in.Mileage),
			Score:         deal.Score,
			Breakdown:     &deal.Breakdown,
		}); err != nil {
			return eris.Wrap(err, "upsert pricing")
		}
	}

	if err := e.Store.SaveReport(ctx, report); err != nil {
		return eris.Wrap(err, "save report")
	}

	zap.L().Info("report persisted",
		zap.String("run_id", report.RunID),
		zap.Int("deals", len(report.TopDeals)),
	)
	return nil
}
