package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fleetscore/ratesheet-cli/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock implements
// it for tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgxPool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"match_vehicle_cap":    `SELECT id FROM vehicles WHERE cap_id = $1`,
	"insert_vehicle":       `INSERT INTO vehicles (id, cap_id, manufacturer, model, fuel_type, p11d, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"update_vehicle":       `UPDATE vehicles SET cap_id = $1, manufacturer = $2, model = $3, fuel_type = $4, p11d = $5, updated_at = $6 WHERE id = $7`,
	"get_provider_mapping": `SELECT mapping FROM provider_mappings WHERE provider = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vehicles (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cap_id       TEXT,
	manufacturer TEXT NOT NULL,
	model        TEXT NOT NULL,
	fuel_type    TEXT,
	p11d         DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pricing (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	vehicle_id     TEXT NOT NULL REFERENCES vehicles(id),
	provider       TEXT NOT NULL,
	monthly_rental DOUBLE PRECISION NOT NULL,
	term           INTEGER NOT NULL,
	mileage        INTEGER NOT NULL,
	upfront        DOUBLE PRECISION NOT NULL DEFAULT 0,
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	breakdown      JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (vehicle_id, provider, monthly_rental, term, mileage)
);

CREATE TABLE IF NOT EXISTS provider_mappings (
	provider   TEXT PRIMARY KEY,
	mapping    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	file_name  TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicles_cap_id ON vehicles(cap_id) WHERE cap_id <> '';
CREATE INDEX IF NOT EXISTS idx_vehicles_manufacturer ON vehicles(manufacturer);
CREATE INDEX IF NOT EXISTS idx_pricing_vehicle_id ON pricing(vehicle_id);
CREATE INDEX IF NOT EXISTS idx_pricing_provider ON pricing(provider);
CREATE INDEX IF NOT EXISTS idx_pricing_score ON pricing(score);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertVehicle writes a vehicle row, matching an existing one by cap_id
// when present, otherwise by manufacturer plus P11D within tolerance plus
// model name similarity. Returns the vehicle ID.
func (s *PostgresStore) UpsertVehicle(ctx context.Context, v *Vehicle) (string, error) {
	now := time.Now().UTC()

	id, err := s.matchVehicle(ctx, v)
	if err != nil {
		return "", err
	}
	if id != "" {
		_, err = s.pool.Exec(ctx,
			`UPDATE vehicles SET cap_id = $1, manufacturer = $2, model = $3, fuel_type = $4, p11d = $5, updated_at = $6 WHERE id = $7`,
			v.CapID, v.Manufacturer, v.Model, v.FuelType, v.P11D, now, id,
		)
		if err != nil {
			return "", eris.Wrapf(err, "postgres: update vehicle %s", id)
		}
		return id, nil
	}

	id = uuid.New().String()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO vehicles (id, cap_id, manufacturer, model, fuel_type, p11d, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, v.CapID, v.Manufacturer, v.Model, v.FuelType, v.P11D, now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert vehicle")
	}
	return id, nil
}

func (s *PostgresStore) matchVehicle(ctx context.Context, v *Vehicle) (string, error) {
	if v.CapID != "" {
		var id string
		err := s.pool.QueryRow(ctx,
			`SELECT id FROM vehicles WHERE cap_id = $1`, v.CapID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != pgx.ErrNoRows {
			return "", eris.Wrap(err, "postgres: match vehicle by cap_id")
		}
	}

	if v.Manufacturer == "" || v.P11D <= 0 {
		return "", nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, model FROM vehicles WHERE lower(manufacturer) = lower($1) AND p11d BETWEEN $2 AND $3`,
		v.Manufacturer, v.P11D*(1-priceTolerance), v.P11D*(1+priceTolerance),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: match vehicle candidates")
	}
	defer rows.Close()

	for rows.Next() {
		var id, modelName string
		if err := rows.Scan(&id, &modelName); err != nil {
			return "", eris.Wrap(err, "postgres: scan vehicle candidate")
		}
		if nameSimilarity(v.Model, modelName) > similarityThreshold {
			return id, nil
		}
	}
	return "", eris.Wrap(rows.Err(), "postgres: match vehicle iterate")
}

// UpsertPricing writes a pricing row keyed on the quote's composite key.
func (s *PostgresStore) UpsertPricing(ctx context.Context, p *Pricing) error {
	now := time.Now().UTC()

	var breakdownJSON []byte
	if p.Breakdown != nil {
		b, err := json.Marshal(p.Breakdown)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal breakdown")
		}
		breakdownJSON = b
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pricing (id, vehicle_id, provider, monthly_rental, term, mileage, upfront, score, breakdown, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (vehicle_id, provider, monthly_rental, term, mileage)
		 DO UPDATE SET upfront = EXCLUDED.upfront, score = EXCLUDED.score, breakdown = EXCLUDED.breakdown, updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), p.VehicleID, p.Provider, p.MonthlyRental, p.Term, p.Mileage,
		p.Upfront, p.Score, breakdownJSON, now, now,
	)
	return eris.Wrap(err, "postgres: upsert pricing")
}

// GetBestPricing returns the single best quote per vehicle matching the
// filter, ordered by score descending.
func (s *PostgresStore) GetBestPricing(ctx context.Context, filter BestPricingFilter) ([]BestPricing, error) {
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

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Manufacturer != "" {
		query += ` AND lower(v.manufacturer) = lower(` + arg(filter.Manufacturer) + `)`
	}
	if filter.FuelType != "" {
		query += ` AND lower(v.fuel_type) = lower(` + arg(filter.FuelType) + `)`
	}
	if filter.MaxMonthly > 0 {
		query += ` AND p.monthly_rental <= ` + arg(filter.MaxMonthly)
	}
	if filter.MinScore > 0 {
		query += ` AND p.score >= ` + arg(filter.MinScore)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += `
) t WHERE rn = 1 ORDER BY score DESC, monthly_rental ASC LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get best pricing")
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
			return nil, eris.Wrap(err, "postgres: scan best pricing")
		}
		bp.Vehicle.ID = bp.Pricing.VehicleID
		out = append(out, bp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: best pricing iterate")
}

// SaveProviderMapping persists a resolved column mapping for reuse on later
// uploads from the same provider.
func (s *PostgresStore) SaveProviderMapping(ctx context.Context, provider string, mapping map[string]int) error {
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal mapping")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO provider_mappings (provider, mapping, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (provider) DO UPDATE SET mapping = EXCLUDED.mapping, updated_at = EXCLUDED.updated_at`,
		normalizeProvider(provider), mappingJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save provider mapping")
}

// GetProviderMapping returns the saved column mapping for a provider, or nil
// when none is stored.
func (s *PostgresStore) GetProviderMapping(ctx context.Context, provider string) (map[string]int, error) {
	var mappingJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT mapping FROM provider_mappings WHERE provider = $1`,
		normalizeProvider(provider),
	).Scan(&mappingJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get provider mapping")
	}

	var mapping map[string]int
	if err := json.Unmarshal(mappingJSON, &mapping); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal mapping")
	}
	return mapping, nil
}

// ListProviderMappings returns every saved mapping keyed by provider.
func (s *PostgresStore) ListProviderMappings(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT provider, mapping FROM provider_mappings`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provider mappings")
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var provider string
		var mappingJSON []byte
		if err := rows.Scan(&provider, &mappingJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider mapping")
		}
		var mapping map[string]int
		if err := json.Unmarshal(mappingJSON, &mapping); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal mapping for %s", provider)
		}
		out[provider] = mapping
	}
	return out, eris.Wrap(rows.Err(), "postgres: list provider mappings iterate")
}

// SaveReport persists the full report payload keyed by run ID.
func (s *PostgresStore) SaveReport(ctx context.Context, report *model.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, file_name, payload, created_at) VALUES ($1, $2, $3, $4)`,
		report.RunID, report.FileName, payload, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save report")
}
