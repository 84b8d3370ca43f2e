package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscore/ratesheet-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Vehicles ---

func TestSQLite_UpsertVehicle_CapIDMatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id1, err := st.UpsertVehicle(ctx, &Vehicle{CapID: "CAP123", Manufacturer: "BMW", Model: "320d M Sport", P11D: 35000})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// Same cap_id from another provider with slightly different details
	// must resolve to the same row.
	id2, err := st.UpsertVehicle(ctx, &Vehicle{CapID: "CAP123", Manufacturer: "BMW", Model: "320d MSport Auto", P11D: 35200})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestSQLite_UpsertVehicle_FuzzyMatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id1, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "AUDI", Model: "A4 35 TFSI Sport", P11D: 32000})
	require.NoError(t, err)

	// No cap_id, but same manufacturer, P11D within 2%, similar model name.
	id2, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "AUDI", Model: "A4 35 TFSI Sport Auto", P11D: 32500})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestSQLite_UpsertVehicle_NoMatchCreatesNew(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id1, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "FORD", Model: "Focus Titanium", P11D: 24000})
	require.NoError(t, err)

	// Different model entirely, even at the same price point.
	id2, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "FORD", Model: "Puma ST-Line", P11D: 24100})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// Price outside the 2% tolerance.
	id3, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "FORD", Model: "Focus Titanium", P11D: 29000})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

// --- Pricing ---

func TestSQLite_UpsertPricing_CompositeKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	vid, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "KIA", Model: "Sportage", P11D: 31000})
	require.NoError(t, err)

	p := &Pricing{VehicleID: vid, Provider: "lex", MonthlyRental: 380, Term: 36, Mileage: 10000, Score: 71.2}
	require.NoError(t, st.UpsertPricing(ctx, p))

	// Same composite key with a new score must update, not duplicate.
	p.Score = 74.8
	require.NoError(t, st.UpsertPricing(ctx, p))

	best, err := st.GetBestPricing(ctx, BestPricingFilter{})
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.Equal(t, 74.8, best[0].Pricing.Score)
}

func TestSQLite_GetBestPricing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	vid1, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "BMW", Model: "320d", FuelType: "Diesel", P11D: 35000})
	require.NoError(t, err)
	vid2, err := st.UpsertVehicle(ctx, &Vehicle{Manufacturer: "TESLA", Model: "Model 3", FuelType: "Electric", P11D: 40000})
	require.NoError(t, err)

	// Two quotes for the BMW: the cheaper one wins despite a lower score.
	require.NoError(t, st.UpsertPricing(ctx, &Pricing{VehicleID: vid1, Provider: "lex", MonthlyRental: 450, Term: 36, Mileage: 10000, Score: 70}))
	require.NoError(t, st.UpsertPricing(ctx, &Pricing{VehicleID: vid1, Provider: "vanarama", MonthlyRental: 430, Term: 36, Mileage: 10000, Score: 65}))
	require.NoError(t, st.UpsertPricing(ctx, &Pricing{VehicleID: vid2, Provider: "lex", MonthlyRental: 520, Term: 48, Mileage: 8000, Score: 88}))

	best, err := st.GetBestPricing(ctx, BestPricingFilter{})
	require.NoError(t, err)
	require.Len(t, best, 2)

	// Ordered by score descending; one row per vehicle.
	assert.Equal(t, "TESLA", best[0].Vehicle.Manufacturer)
	assert.Equal(t, "BMW", best[1].Vehicle.Manufacturer)
	assert.Equal(t, "vanarama", best[1].Pricing.Provider)
	assert.Equal(t, 430.0, best[1].Pricing.MonthlyRental)

	// Filters.
	diesel, err := st.GetBestPricing(ctx, BestPricingFilter{FuelType: "diesel"})
	require.NoError(t, err)
	require.Len(t, diesel, 1)
	assert.Equal(t, "BMW", diesel[0].Vehicle.Manufacturer)

	cheap, err := st.GetBestPricing(ctx, BestPricingFilter{MaxMonthly: 500})
	require.NoError(t, err)
	require.Len(t, cheap, 1)

	scored, err := st.GetBestPricing(ctx, BestPricingFilter{MinScore: 80})
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "TESLA", scored[0].Vehicle.Manufacturer)
}

// --- Provider mappings ---

func TestSQLite_ProviderMapping_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	mapping := map[string]int{"manufacturer": 0, "model": 1, "monthly_payment": 3}
	require.NoError(t, st.SaveProviderMapping(ctx, "LexFleet", mapping))

	// Lookup is case-insensitive on provider name.
	got, err := st.GetProviderMapping(ctx, "lexfleet")
	require.NoError(t, err)
	assert.Equal(t, mapping, got)

	// Overwrite replaces the stored mapping.
	mapping["p11d"] = 4
	require.NoError(t, st.SaveProviderMapping(ctx, "lexfleet", mapping))
	got, err = st.GetProviderMapping(ctx, "lexfleet")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestSQLite_ListProviderMappings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveProviderMapping(ctx, "lexfleet", map[string]int{"manufacturer": 0, "monthly_payment": 3}))
	require.NoError(t, st.SaveProviderMapping(ctx, "vanarama", map[string]int{"model": 1}))

	all, err := st.ListProviderMappings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 3, all["lexfleet"]["monthly_payment"])
	assert.Equal(t, 1, all["vanarama"]["model"])
}

func TestSQLite_ProviderMapping_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetProviderMapping(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Reports ---

func TestSQLite_SaveReport(t *testing.T) {
	st := newTestSQLiteStore(t)

	report := &model.Report{
		Success:  true,
		RunID:    "run-1",
		FileName: "rates.csv",
		Stats:    model.ReportStats{TotalVehicles: 3},
	}
	require.NoError(t, st.SaveReport(context.Background(), report))

	// Duplicate run IDs are a caller bug and must surface.
	assert.Error(t, st.SaveReport(context.Background(), report))
}
