//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/pipeline"
)

func analyzeTestCSV(t *testing.T) *model.Report {
	t.Helper()
	setTestConfig(t)
	report, err := pipeline.New(cfg).Analyze(context.Background(), "sheet.csv", []byte(testCSV), pipeline.Options{})
	require.NoError(t, err)
	return report
}

func TestRenderReportTable(t *testing.T) {
	report := analyzeTestCSV(t)

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, report, "table"))

	out := buf.String()
	assert.Contains(t, out, "File: sheet.csv")
	assert.Contains(t, out, "Vehicles scored: 3")
	assert.Contains(t, out, "AUDI")
	assert.Contains(t, out, "320d")

	// Best deal listed first.
	audi := strings.Index(out, "AUDI")
	bmw := strings.Index(out, "BMW")
	assert.Less(t, audi, bmw)
}

func TestRenderReportJSON(t *testing.T) {
	report := analyzeTestCSV(t)

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, report, "json"))

	var decoded model.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Len(t, decoded.TopDeals, 3)
}

func TestRenderReportCSV(t *testing.T) {
	report := analyzeTestCSV(t)

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, report, "csv"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "score,manufacturer,model,monthly,term,mileage,fuel", lines[0])
	assert.Contains(t, lines[1], "AUDI")
	assert.Contains(t, lines[1], "420.00")
}

func TestRenderReportUnknownFormat(t *testing.T) {
	report := analyzeTestCSV(t)

	var buf bytes.Buffer
	err := renderReport(&buf, report, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
