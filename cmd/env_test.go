//go:build !integration

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
	"github.com/fleetscore/ratesheet-cli/internal/store"
)

func TestEnvAnalyzeSavedMappingFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Persist a mapping, then analyze a headerless sheet for that provider.
	require.NoError(t, env.Store.SaveProviderMapping(ctx, "acme", map[string]int{
		"manufacturer":    0,
		"model":           1,
		"p11d":            2,
		"monthly_payment": 3,
	}))

	headerless := "BMW,320d,35000,450\nAUDI,A4,32000,420\n"
	report, err := env.analyze(ctx, "sheet.csv", []byte(headerless), pipeline.Options{Provider: "acme"})
	require.NoError(t, err)

	assert.True(t, report.DetectedFormat.UsedSavedMapping)
	assert.Equal(t, 2, report.Stats.TotalVehicles)
}

func TestEnvAnalyzeRefreshesMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.analyze(ctx, "sheet.csv", []byte(testCSV), pipeline.Options{Provider: "acme"})
	require.NoError(t, err)

	mapping, err := env.Store.GetProviderMapping(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, 0, mapping["manufacturer"])
	assert.Equal(t, 3, mapping["monthly_payment"])
}

func TestEnvAnalyzeNoProviderSkipsMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.analyze(ctx, "sheet.csv", []byte(testCSV), pipeline.Options{})
	require.NoError(t, err)

	mapping, err := env.Store.GetProviderMapping(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, mapping)
}

func TestEnvPersist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report, err := env.analyze(ctx, "sheet.csv", []byte(testCSV), pipeline.Options{})
	require.NoError(t, err)

	require.NoError(t, env.persist(ctx, report, "lexfleet"))

	rows, err := env.Store.GetBestPricing(ctx, store.BestPricingFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "lexfleet", row.Pricing.Provider)
		assert.Greater(t, row.Pricing.Score, 0.0)
		require.NotNil(t, row.Pricing.Breakdown)
	}

	// Re-persisting the same report refreshes rather than duplicates.
	require.Error(t, env.persist(ctx, report, "lexfleet")) // duplicate run id
	rows, err = env.Store.GetBestPricing(ctx, store.BestPricingFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestEnvPersistNoStore(t *testing.T) {
	setTestConfig(t)
	env := &analysisEnv{Analyzer: pipeline.New(cfg)}

	report, err := env.analyze(context.Background(), "sheet.csv", []byte(testCSV), pipeline.Options{})
	require.NoError(t, err)

	err = env.persist(context.Background(), report, "lexfleet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store configured")
}
