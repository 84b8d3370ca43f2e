package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetscore/ratesheet-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetProviderMapping_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT mapping FROM provider_mappings WHERE provider = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	mapping, err := s.GetProviderMapping(context.Background(), "Unknown")
	require.NoError(t, err)
	assert.Nil(t, mapping)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProviderMapping_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT mapping FROM provider_mappings WHERE provider = \$1`).
		WithArgs("lex").
		WillReturnRows(pgxmock.NewRows([]string{"mapping"}).AddRow([]byte(`{"manufacturer":0,"model":1}`)))

	mapping, err := s.GetProviderMapping(context.Background(), "lex")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"manufacturer": 0, "model": 1}, mapping)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProviderMappings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT provider, mapping FROM provider_mappings`).
		WillReturnRows(pgxmock.NewRows([]string{"provider", "mapping"}).
			AddRow("lexfleet", []byte(`{"manufacturer":0,"monthly_payment":3}`)).
			AddRow("vanarama", []byte(`{"model":1}`)))

	all, err := s.ListProviderMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 3, all["lexfleet"]["monthly_payment"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertVehicle_InsertWhenNoMatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM vehicles WHERE cap_id = \$1`).
		WithArgs("CAP9").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id, model FROM vehicles WHERE lower\(manufacturer\) = lower\(\$1\)`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "model"}))
	mock.ExpectExec(`INSERT INTO vehicles`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.UpsertVehicle(context.Background(), &Vehicle{
		CapID: "CAP9", Manufacturer: "BMW", Model: "320d", P11D: 35000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertVehicle_UpdateOnCapMatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM vehicles WHERE cap_id = \$1`).
		WithArgs("CAP9").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("veh-1"))
	mock.ExpectExec(`UPDATE vehicles SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := s.UpsertVehicle(context.Background(), &Vehicle{
		CapID: "CAP9", Manufacturer: "BMW", Model: "320d", P11D: 35000,
	})
	require.NoError(t, err)
	assert.Equal(t, "veh-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertPricing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO pricing`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertPricing(context.Background(), &Pricing{
		VehicleID: "veh-1", Provider: "lex", MonthlyRental: 450, Term: 36, Mileage: 10000, Score: 70.6,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveReport(context.Background(), &model.Report{RunID: "run-1", FileName: "r.csv"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"A4 35 TFSI Sport", "A4 35 TFSI Sport", 1.0, 1.0},
		{"A4 35 TFSI Sport", "A4 35 TFSI Sport Auto", 0.7, 0.9},
		{"Focus Titanium", "Puma ST-Line", 0, 0},
		{"", "anything", 0, 0},
	}
	for _, tt := range tests {
		sim := nameSimilarity(tt.a, tt.b)
		assert.GreaterOrEqual(t, sim, tt.min, "%q vs %q", tt.a, tt.b)
		assert.LessOrEqual(t, sim, tt.max, "%q vs %q", tt.a, tt.b)
	}
}
