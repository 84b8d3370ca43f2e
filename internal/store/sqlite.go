package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fleetscore/ratesheet-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vehicles (
	id           TEXT PRIMARY KEY,
	cap_id       TEXT,
	manufacturer TEXT NOT NULL,
	model        TEXT NOT NULL,
	fuel_type    TEXT,
	p11d         REAL NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pricing (
	id             TEXT PRIMARY KEY,
	vehicle_id     TEXT NOT NULL REFERENCES vehicles(id),
	provider       TEXT NOT NULL,
	monthly_rental REAL NOT NULL,
	term           INTEGER NOT NULL,
	mileage        INTEGER NOT NULL,
	upfront        REAL NOT NULL DEFAULT 0,
	score          REAL NOT NULL DEFAULT 0,
	breakdown      TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (vehicle_id, provider, monthly_rental, term, mileage)
);

CREATE TABLE IF NOT EXISTS provider_mappings (
	provider   TEXT PRIMARY KEY,
	mapping    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	file_name  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicles_cap_id ON vehicles(cap_id) WHERE cap_id <> '';
CREATE INDEX IF NOT EXISTS idx_vehicles_manufacturer ON vehicles(manufacturer);
CREATE INDEX IF NOT EXISTS idx_pricing_vehicle_id ON pricing(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_pricing_provider ON pricing(provider);
CREATE INDEX IF NOT EXISTS idx_pricing_score ON pricing(score);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertVehicle writes a vehicle row, matching an existing one by cap_id
// when present, otherwise by manufacturer plus P11D within tolerance plus
// model name similarity. Returns the vehicle ID.
func (s *SQLiteStore) UpsertVehicle(ctx context.Context, v *Vehicle) (string, error) {
	now := time.Now().UTC()

	id, err := s.matchVehicle(ctx, v)
	if err != nil {
		return "", err
	}
	if id != "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE vehicles SET cap_id = ?, manufacturer = ?, model = ?, fuel_type = ?, p11d = ?, updated_at = ? WHERE id = ?`,
			v.CapID, v.Manufacturer, v.Model, v.FuelType, v.P11D, now, id,
		)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: update vehicle %s", id)
		}
		return id, nil
	}

	id = uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, cap_id, manufacturer, model, fuel_type, p11d, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, v.CapID, v.Manufacturer, v.Model, v.FuelType, v.P11D, now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert vehicle")
	}
	return id, nil
}

// matchVehicle finds the existing vehicle ID for v, or "" when no row
// matches the natural key.
func (s *SQLiteStore) matchVehicle(ctx context.Context, v *Vehicle) (string, error) {
	if v.CapID != "" {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM vehicles WHERE cap_id = ?`, v.CapID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return "", eris.Wrap(err, "sqlite: match vehicle by cap_id")
		}
	}

	if v.Manufacturer == "" || v.P11D <= 0 {
		return "", nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model FROM vehicles WHERE manufacturer = ? COLLATE NOCASE AND p11d BETWEEN ? AND ?`,
		v.Manufacturer, v.P11D*(1-priceTolerance), v.P11D*(1+priceTolerance),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: match vehicle candidates")
	}
	defer rows.Close()

	for rows.Next() {
		var id, modelName string
		if err := rows.Scan(&id, &modelName); err != nil {
			return "", eris.Wrap(err, "sqlite: scan vehicle candidate")
		}
		if nameSimilarity(v.Model, modelName) > similarityThreshold {
			return id, nil
		}
	}
	return "", eris.Wrap(rows.Err(), "sqlite: match vehicle iterate")
}

// UpsertPricing writes a pricing row keyed on the quote's composite key.
func (s *SQLiteStore) UpsertPricing(ctx context.Context, p *Pricing) error {
	now := time.Now().UTC()

	var breakdownJSON sql.NullString
	if p.Breakdown != nil {
		b, err := json.Marshal(p.Breakdown)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal breakdown")
		}
		breakdownJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pricing (id, vehicle_id, provider, monthly_rental, term, mileage, upfront, score, breakdown, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (vehicle_id, provider, monthly_rental, term, mileage)
		 DO UPDATE SET upfront = excluded.upfront, score = excluded.score, breakdown = excluded.breakdown, updated_at = excluded.updated_at`,
		uuid.New().String(), p.VehicleID, p.Provider, p.MonthlyRental, p.Term, p.Mileage,
		p.Upfront, p.Score, breakdownJSON, now, now,
	)
	return eris.Wrap(err, "sqlite: upsert pricing")
}

// GetBestPricing returns the single best quote per vehicle matching the
// filter, ordered by score descending.
func (s *SQLiteStore) GetBestPricing(ctx context.Context, filter BestPricingFilter) ([]BestPricing, error) {
	query := `
SELECT manufacturer, model, fuel_type, p11d, vehicle_id, provider, monthly_rental, term, mileage, upfront, score
FROM (
	SELECT v.manufacturer, v.model, v.fuel_type, v.p11d,
	       p.vehicle_id, p.provider, p.monthly_rental, p.term, p.mileage, p.upfront, p.score,
	       ROW_NUMBER() OVER (PARTITION BY p.vehicle_id ORDER BY p.monthly_rental ASC, p.score DESC) AS rn
	FROM pricing p
	JOIN vehicles v ON v.id = p.vehicle_id
	WHERE 1=1`
	var args []any

	if filter.Manufacturer != "" {
		query += ` AND v.manufacturer = ? COLLATE NOCASE`
		args = append(args, filter.Manufacturer)
	}
	if filter.FuelType != "" {
		query += ` AND v.fuel_type = ? COLLATE NOCASE`
		args = append(args, filter.FuelType)
	}
	if filter.MaxMonthly > 0 {
		query += ` AND p.monthly_rental <= ?`
		args = append(args, filter.MaxMonthly)
	}
	if filter.MinScore > 0 {
		query += ` AND p.score >= ?`
		args = append(args, filter.MinScore)
	}

	query += `
) WHERE rn = 1 ORDER BY score DESC, monthly_rental ASC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get best pricing")
	}
	defer rows.Close()

	var out []BestPricing
	for rows.Next() {
		var bp BestPricing
		err := rows.Scan(
			&bp.Vehicle.Manufacturer, &bp.Vehicle.Model, &bp.Vehicle.FuelType, &bp.Vehicle.P11D,
			&bp.Pricing.VehicleID, &bp.Pricing.Provider, &bp.Pricing.MonthlyRental,
			&bp.Pricing.Term, &bp.Pricing.Mileage, &bp.Pricing.Upfront, &bp.Pricing.Score,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan best pricing")
		}
		bp.Vehicle.ID = bp.Pricing.VehicleID
		out = append(out, bp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: best pricing iterate")
}

// SaveProviderMapping persists a resolved column mapping for reuse on later
// uploads from the same provider.
func (s *SQLiteStore) SaveProviderMapping(ctx context.Context, provider string, mapping map[string]int) error {
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal mapping")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provider_mappings (provider, mapping, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (provider) DO UPDATE SET mapping = excluded.mapping, updated_at = excluded.updated_at`,
		normalizeProvider(provider), string(mappingJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save provider mapping")
}

// GetProviderMapping returns the saved column mapping for a provider, or nil
// when none is stored.
func (s *SQLiteStore) GetProviderMapping(ctx context.Context, provider string) (map[string]int, error) {
	var mappingJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT mapping FROM provider_mappings WHERE provider = ?`,
		normalizeProvider(provider),
	).Scan(&mappingJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get provider mapping")
	}

	var mapping map[string]int
	if err := json.Unmarshal([]byte(mappingJSON), &mapping); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal mapping")
	}
	return mapping, nil
}

// ListProviderMappings returns every saved mapping keyed by provider.
func (s *SQLiteStore) ListProviderMappings(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, mapping FROM provider_mappings`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provider mappings")
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var provider, mappingJSON string
		if err := rows.Scan(&provider, &mappingJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider mapping")
		}
		var mapping map[string]int
		if err := json.Unmarshal([]byte(mappingJSON), &mapping); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal mapping for %s", provider)
		}
		out[provider] = mapping
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list provider mappings iterate")
}

// SaveReport persists the full report payload keyed by run ID.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, file_name, payload, created_at) VALUES (?, ?, ?, ?)`,
		report.RunID, report.FileName, string(payload), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save report")
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
