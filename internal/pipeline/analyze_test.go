package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/fleetscore/ratesheet-cli/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Scoring: config.ScoringConfig{
			Mode:        "standard",
			TopDeals:    100,
			TopVehicles: 1000,
		},
		Providers: map[string]string{
			"lexfleet": "lex",
			"vanarama": "vanarama-lcv",
		},
	}
}

const basicCSV = "MANUFACTURER,MODEL,P11D,MONTHLY PAYMENT,MPG,CO2\n" +
	"BMW,320d,35000,450,55.4,120\n" +
	"AUDI,A4,32000,420,58.9,115\n" +
	"FORD,Focus,22000,300,45,130\n"

func TestAnalyzeBasicCSV(t *testing.T) {
	a := New(testConfig())
	report, err := a.Analyze(context.Background(), "rates.csv", []byte(basicCSV), Options{})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "rates.csv", report.FileName)
	assert.Equal(t, 3, report.Stats.TotalVehicles)
	assert.Equal(t, 3, report.Stats.ScoreDistribution.Total())
	require.Len(t, report.TopDeals, 3)

	// All three land in the same cost band, so within the 1.0 tie window the
	// cheaper monthly payment leads among the top two.
	assert.Equal(t, "AUDI", report.TopDeals[0].Vehicle.Manufacturer)
	assert.Equal(t, "BMW", report.TopDeals[1].Vehicle.Manufacturer)
	assert.Equal(t, "FORD", report.TopDeals[2].Vehicle.Manufacturer)
	assert.InDelta(t, 71.4, report.TopDeals[0].Score, 0.001)
	assert.InDelta(t, 70.6, report.TopDeals[1].Score, 0.001)
	assert.InDelta(t, 68.6, report.TopDeals[2].Score, 0.001)
	assert.Equal(t, 71.4, report.Stats.TopScore)

	assert.Equal(t, 0, report.DetectedFormat.HeaderRow)
	assert.False(t, report.DetectedFormat.UsedFallback)
	assert.Equal(t, "generic", report.DetectedFormat.Format)
	assert.Equal(t, 0, report.ColumnMappings["manufacturer"])
	assert.Equal(t, 3, report.ColumnMappings["monthly_payment"])

	// Defaults were substituted for term and mileage on every record.
	bd := report.TopDeals[0].Breakdown
	assert.True(t, bd.DefaultsApplied.Term)
	assert.True(t, bd.DefaultsApplied.Mileage)
	assert.Equal(t, 36.0, bd.Inputs.Term)
	assert.Equal(t, 10000.0, bd.Inputs.Mileage)
}

func TestAnalyzeJunkPreamble(t *testing.T) {
	data := "Fleet rates - confidential,,,,\n" +
		",,,,\n" +
		"MANUFACTURER,MODEL,P11D,MONTHLY PAYMENT,MPG\n" +
		"KIA,Sportage,31000,380,47\n"

	a := New(testConfig())
	report, err := a.Analyze(context.Background(), "rates.csv", []byte(data), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.DetectedFormat.HeaderRow)
	assert.Equal(t, 1, report.Stats.TotalVehicles)
	require.Len(t, report.TopDeals, 1)
	assert.Equal(t, "KIA", report.TopDeals[0].Vehicle.Manufacturer)
}

func TestAnalyzeHeaderlessStaticFallback(t *testing.T) {
	// vanarama-lcv layout: make, model, otr, monthly, term, mileage, fuel, co2
	data := "CITROEN,Berlingo 650,22000,280,48,10000,Diesel,140\n" +
		"FORD,Transit Custom,30000,350,48,10000,Diesel,160\n"

	a := New(testConfig())
	report, err := a.Analyze(context.Background(), "lcv.csv", []byte(data), Options{Provider: "vanarama"})
	require.NoError(t, err)

	assert.True(t, report.DetectedFormat.UsedFallback)
	assert.Equal(t, "vanarama-lcv", report.DetectedFormat.Format)
	assert.Equal(t, 2, report.Stats.TotalVehicles)

	// P11D is absent in this layout; OTR must be recorded as its proxy.
	for _, d := range report.TopDeals {
		assert.True(t, d.Breakdown.Derived.P11DFromOTR)
	}
}

func TestAnalyzeSavedMappingFallback(t *testing.T) {
	data := "VOLVO,XC40,38000,460\n"
	saved := map[string]int{
		"manufacturer":    0,
		"model":           1,
		"p11d":            2,
		"monthly_payment": 3,
	}

	a := New(testConfig())
	report, err := a.Analyze(context.Background(), "novendor.csv", []byte(data), Options{SavedMapping: saved})
	require.NoError(t, err)

	assert.True(t, report.DetectedFormat.UsedSavedMapping)
	assert.False(t, report.DetectedFormat.UsedFallback)
	assert.Equal(t, 1, report.Stats.TotalVehicles)
	assert.Equal(t, "VOLVO", report.TopDeals[0].Vehicle.Manufacturer)
}

func TestAnalyzeXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sh, err := f.AddSheet("Rates")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"MANUFACTURER", "MODEL", "P11D", "MONTHLY PAYMENT"},
		{"SEAT", "Leon", "26000", "310"},
	} {
		row := sh.AddRow()
		for _, c := range cells {
			row.AddCell().Value = c
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	a := New(testConfig())
	report, err := a.Analyze(context.Background(), "rates.xlsx", buf.Bytes(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.TotalVehicles)
	assert.Equal(t, "SEAT", report.TopDeals[0].Vehicle.Manufacturer)
}

func TestAnalyzeErrors(t *testing.T) {
	a := New(testConfig())
	ctx := context.Background()

	t.Run("empty file", func(t *testing.T) {
		_, err := a.Analyze(ctx, "empty.csv", nil, Options{})
		assert.True(t, eris.Is(err, ErrNoDataRows))
	})

	t.Run("columns unknown", func(t *testing.T) {
		// No header, no saved mapping, and generic has no static table.
		_, err := a.Analyze(ctx, "mystery.csv", []byte("a,b,c\n1,2,3\n"), Options{})
		assert.True(t, eris.Is(err, ErrColumnsUnknown))
	})

	t.Run("no valid records", func(t *testing.T) {
		// Header resolves but every row fails the identity/rental filter.
		data := "MANUFACTURER,MODEL,P11D,MONTHLY PAYMENT,MPG\n" +
			",,35000,450,55\n" +
			"BMW,320d,35000,0,55\n"
		_, err := a.Analyze(ctx, "hollow.csv", []byte(data), Options{})
		assert.True(t, eris.Is(err, ErrNoValidRecords))
	})

	t.Run("malformed workbook", func(t *testing.T) {
		_, err := a.Analyze(ctx, "broken.xlsx", []byte("PK\x03\x04not a real archive"), Options{})
		assert.True(t, eris.Is(err, ErrMalformedContent))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := a.Analyze(cancelled, "rates.csv", []byte(basicCSV), Options{})
		require.Error(t, err)
		assert.True(t, eris.Is(err, context.Canceled))
	})
}

func TestAnalyzeInsuranceWeightOption(t *testing.T) {
	data := "MANUFACTURER,MODEL,P11D,MONTHLY PAYMENT,INSURANCE GROUP\n" +
		"BMW,320d,35000,450,30\n"

	a := New(testConfig())
	w := 0.2
	weighted, err := a.Analyze(context.Background(), "r.csv", []byte(data), Options{InsuranceWeight: &w})
	require.NoError(t, err)
	plain, err := a.Analyze(context.Background(), "r.csv", []byte(data), Options{})
	require.NoError(t, err)

	assert.NotEqual(t, plain.TopDeals[0].Score, weighted.TopDeals[0].Score)
	assert.Contains(t, weighted.ScoringInfo.Weights, "insurance")
	assert.NotContains(t, plain.ScoringInfo.Weights, "insurance")
}

func TestAnalyzeLexFormatUsesExtendedMode(t *testing.T) {
	data := "MANUFACTURER,MODEL,P11D,MONTHLY PAYMENT,MPG,CO2,FUEL TYPE\n" +
		"TOYOTA,Corolla,29000,340,60,102,Petrol\n"

	a := New(testConfig())
	report, err := a.Analyze(context.Background(), "lex.csv", []byte(data), Options{Provider: "lexfleet"})
	require.NoError(t, err)

	assert.Equal(t, "extended", report.ScoringInfo.Mode)
	assert.Contains(t, report.ScoringInfo.Weights, "operating")
}

func TestAnalyzeProgressReported(t *testing.T) {
	var last float64
	a := New(testConfig())
	_, err := a.Analyze(context.Background(), "rates.csv", []byte(basicCSV), Options{
		OnProgress: func(done float64) { last = done },
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, last)
}

func TestBuildRecordRaggedRow(t *testing.T) {
	a := New(testConfig())
	data := "MANUFACTURER,MODEL,P11D,MONTHLY PAYMENT,MPG,CO2\n" +
		"BMW,320d,35000,450\n" // short row: mpg and co2 absent

	report, err := a.Analyze(context.Background(), "r.csv", []byte(data), Options{})
	require.NoError(t, err)
	require.Len(t, report.TopDeals, 1)

	bd := report.TopDeals[0].Breakdown
	assert.Zero(t, bd.Inputs.MPG)
	// Missing efficiency data yields the neutral components.
	assert.Equal(t, 50.0, bd.Components.Fuel)
	assert.Equal(t, 50.0, bd.Components.Emissions)
}
