// Package pipeline orchestrates a rate sheet analysis run: container
// detection, header resolution, row streaming, scoring, and ranking into a
// final report.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetscore/ratesheet-cli/internal/config"
	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/rank"
	"github.com/fleetscore/ratesheet-cli/internal/scoring"
	"github.com/fleetscore/ratesheet-cli/internal/sheet"
)

// Fatal analysis errors. Each maps to one user-facing failure envelope; a
// run never returns partial results alongside one of these.
var (
	ErrNoDataRows       = eris.New("pipeline: no data rows found in file")
	ErrColumnsUnknown   = eris.New("pipeline: could not identify required columns")
	ErrNoValidRecords   = eris.New("pipeline: no valid vehicle records found")
	ErrMalformedContent = eris.New("pipeline: malformed spreadsheet content")
)

// Options are the per-run knobs a caller may set on top of the loaded
// configuration.
type Options struct {
	// Provider selects a configured format via the providers map; ignored
	// when Format is set explicitly.
	Provider string
	// Format forces a layout, bypassing the provider lookup.
	Format string
	// Mode overrides the scoring weight mode ("standard" or "extended").
	Mode string
	// InsuranceWeight overrides the configured insurance blend when non-nil.
	InsuranceWeight *float64
	// SavedMapping is a previously persisted column mapping for this
	// provider, tried when header detection fails.
	SavedMapping map[string]int
	// OnProgress, if set, receives fractional progress in [0, 1].
	OnProgress func(done float64)
}

// Analyzer runs rate sheet analyses against one loaded configuration.
type Analyzer struct {
	cfg      *config.Config
	resolver *sheet.Resolver
}

// New creates an Analyzer.
func New(cfg *config.Config) *Analyzer {
	return &Analyzer{cfg: cfg, resolver: sheet.NewResolver(nil)}
}

// runState carries the per-run mutable state shared between the header
// detection phase and the scoring phase.
type runState struct {
	scoreCfg scoring.Config
	agg      *rank.Aggregator

	detecting bool
	buffer    [][]string // preamble candidates held while detecting
	mapping   sheet.ColumnIndexMap
	headerRow int
	rowIndex  int
	validSeen int

	format       sheet.Format
	usedFallback bool
	usedSaved    bool
}

// Analyze processes one rate sheet held in memory and returns its report.
// The file may be CSV (any common charset) or XLSX; detection is by content,
// not extension. All failures are fatal: the returned report is nil whenever
// err is non-nil.
func (a *Analyzer) Analyze(ctx context.Context, fileName string, data []byte, opts Options) (*model.Report, error) {
	start := time.Now()
	runID := uuid.NewString()

	format := a.resolveFormat(opts)
	scoreCfg := a.scoringConfig(format, opts)
	if err := scoring.ValidateConfig(scoreCfg); err != nil {
		return nil, err
	}

	zap.L().Info("starting analysis",
		zap.String("run_id", runID),
		zap.String("file", fileName),
		zap.Int("bytes", len(data)),
		zap.String("format", string(format)),
		zap.String("mode", string(scoreCfg.Mode)))

	st := &runState{
		scoreCfg:  scoreCfg,
		agg:       rank.NewAggregator(a.topDeals(), a.topVehicles()),
		detecting: true,
		format:    format,
	}

	var err error
	if sheet.IsXLSX(data) {
		err = a.analyzeXLSX(ctx, data, opts, st)
	} else {
		err = a.analyzeCSV(ctx, data, opts, st)
	}
	if err != nil {
		return nil, err
	}

	// A run that never left the detection phase saw fewer preamble rows
	// than the scan window; resolve the mapping now and replay them.
	if st.detecting {
		if len(st.buffer) == 0 {
			return nil, ErrNoDataRows
		}
		if err := a.applyFallback(opts, st); err != nil {
			return nil, err
		}
		for _, row := range st.buffer {
			a.scoreRow(row, st)
		}
		st.buffer = nil
	}

	if st.validSeen == 0 {
		return nil, ErrNoValidRecords
	}

	report := a.buildReport(runID, fileName, st)
	zap.L().Info("analysis complete",
		zap.String("run_id", runID),
		zap.Int("vehicles", report.Stats.TotalVehicles),
		zap.Float64("top_score", report.Stats.TopScore),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

func (a *Analyzer) resolveFormat(opts Options) sheet.Format {
	if opts.Format != "" {
		return sheet.ParseFormat(opts.Format)
	}
	return sheet.ParseFormat(a.cfg.FormatFor(opts.Provider))
}

// scoringConfig layers the run options over the configured scoring section.
// The lex layout defaults to extended weighting unless the caller forces a
// mode.
func (a *Analyzer) scoringConfig(format sheet.Format, opts Options) scoring.Config {
	sc := a.cfg.Scoring
	if opts.Mode != "" {
		sc.Mode = opts.Mode
	} else if format == sheet.FormatLex {
		sc.Mode = string(scoring.ModeExtended)
	}
	if opts.InsuranceWeight != nil {
		sc.InsuranceWeight = *opts.InsuranceWeight
	}
	return scoring.FromConfig(sc)
}

func (a *Analyzer) topDeals() int {
	if a.cfg.Scoring.TopDeals > 0 {
		return a.cfg.Scoring.TopDeals
	}
	return 100
}

func (a *Analyzer) topVehicles() int {
	if a.cfg.Scoring.TopVehicles > 0 {
		return a.cfg.Scoring.TopVehicles
	}
	return 1000
}

// analyzeCSV streams the file in chunks, feeding each row through the
// detection or scoring phase.
func (a *Analyzer) analyzeCSV(ctx context.Context, data []byte, opts Options, st *runState) error {
	streamOpts := sheet.StreamOptions{
		Charset:    sheet.DetectCharset(data),
		OnProgress: opts.OnProgress,
		OnRow: func(row []string) error {
			return a.consumeRow(row, opts, st)
		},
	}
	return sheet.StreamBytes(ctx, data, streamOpts)
}

// analyzeXLSX decodes the workbook up front and replays its first sheet
// through the same per-row path the CSV streamer uses.
func (a *Analyzer) analyzeXLSX(ctx context.Context, data []byte, opts Options, st *runState) error {
	rows, err := sheet.ReadXLSXRows(data)
	if err != nil {
		return eris.Wrapf(ErrMalformedContent, "open workbook: %v", err)
	}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: cancelled")
		}
		if err := a.consumeRow(row, opts, st); err != nil {
			return err
		}
		if opts.OnProgress != nil && len(rows) > 0 {
			opts.OnProgress(float64(i+1) / float64(len(rows)))
		}
	}
	return nil
}

// consumeRow routes one row through the two-phase run: while detecting, rows
// are buffered and tested as header candidates; once a mapping exists every
// row is scored directly.
func (a *Analyzer) consumeRow(row []string, opts Options, st *runState) error {
	st.rowIndex++
	if !st.detecting {
		a.scoreRow(row, st)
		return nil
	}

	if m, ok := a.resolver.ResolveHeader(row); ok {
		// Header found: rows buffered before it were preamble.
		st.mapping = m
		st.headerRow = st.rowIndex - 1
		st.detecting = false
		st.buffer = nil
		return nil
	}

	st.buffer = append(st.buffer, row)
	if len(st.buffer) < sheet.HeaderScanRows {
		return nil
	}

	// Scan window exhausted without a header; the file is headerless.
	if err := a.applyFallback(opts, st); err != nil {
		return err
	}
	for _, buffered := range st.buffer {
		a.scoreRow(buffered, st)
	}
	st.buffer = nil
	return nil
}

// applyFallback resolves the column mapping for a headerless file: a saved
// provider mapping first, then the format's static table.
func (a *Analyzer) applyFallback(opts Options, st *runState) error {
	if len(opts.SavedMapping) > 0 {
		m := sheet.FromStringMap(opts.SavedMapping)
		if mappingUsable(m) {
			st.mapping = m
			st.detecting = false
			st.usedSaved = true
			return nil
		}
	}
	if m, ok := sheet.StaticFallbacks()[st.format]; ok {
		st.mapping = m
		st.detecting = false
		st.usedFallback = true
		return nil
	}
	return ErrColumnsUnknown
}

// mappingUsable reports whether a mapping covers the minimum needed to
// produce scoreable records: the rental column plus an identity column.
func mappingUsable(m sheet.ColumnIndexMap) bool {
	if _, ok := m[sheet.FieldMonthlyPayment]; !ok {
		return false
	}
	_, hasMake := m[sheet.FieldManufacturer]
	_, hasModel := m[sheet.FieldModel]
	return hasMake || hasModel
}

// scoreRow builds, filters, scores, and ranks one data row. Rows without an
// identity or a positive rental are skipped; scoreable rows always count,
// including hard failures scored zero.
func (a *Analyzer) scoreRow(row []string, st *runState) {
	rec := buildRecord(row, st.mapping)
	if !rec.HasIdentity() {
		return
	}
	if sheet.ParseNumeric(rec.MonthlyPayment) <= 0 {
		return
	}
	st.validSeen++

	score, breakdown := scoring.Score(&rec, st.scoreCfg)
	deal := model.ScoredDeal{Vehicle: rec, Score: score, Breakdown: breakdown}
	light := model.LightDeal{
		Manufacturer:   rec.Manufacturer,
		Model:          rec.Model,
		FuelType:       rec.FuelType,
		MonthlyPayment: breakdown.Inputs.MonthlyPayment,
		Term:           breakdown.Inputs.Term,
		Mileage:        breakdown.Inputs.Mileage,
		Score:          score,
	}
	st.agg.Observe(deal, light)
}

func (a *Analyzer) buildReport(runID, fileName string, st *runState) *model.Report {
	deals, light, stats := st.agg.Finalize()
	formula, weights, assumptions := st.scoreCfg.Describe()

	return &model.Report{
		Success:  true,
		RunID:    runID,
		FileName: fileName,
		Stats: model.ReportStats{
			TotalVehicles:     stats.TotalVehicles,
			AverageScore:      stats.Mean(),
			TopScore:          stats.TopScore,
			ScoreDistribution: stats.Distribution,
		},
		TopDeals:       deals,
		AllVehicles:    light,
		ColumnMappings: st.mapping.ToStringMap(),
		DetectedFormat: model.DetectedFormat{
			Format:           string(st.format),
			HeaderRow:        st.headerRow,
			UsedFallback:     st.usedFallback,
			UsedSavedMapping: st.usedSaved,
		},
		ScoringInfo: model.ScoringInfo{
			Formula:     formula,
			Mode:        string(st.scoreCfg.Mode),
			Weights:     weights,
			Assumptions: assumptions,
		},
		ProcessedAt: time.Now().UTC(),
	}
}
