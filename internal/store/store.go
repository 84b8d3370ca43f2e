// Package store persists vehicles, pricing rows, provider column mappings,
// and analysis reports behind a driver-agnostic interface.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fleetscore/ratesheet-cli/internal/config"
	"github.com/fleetscore/ratesheet-cli/internal/model"
)

// Matching tolerances for the fuzzy vehicle natural key. A cap_id match is
// always authoritative; without one, a vehicle is the same vehicle when the
// manufacturer matches, P11D is within 2%, and the model names are similar
// enough.
const (
	priceTolerance      = 0.02
	similarityThreshold = 0.7
)

// Vehicle is the persisted vehicle identity row, deduplicated across
// providers and uploads.
type Vehicle struct {
	ID           string    `json:"id"`
	CapID        string    `json:"cap_id,omitempty"`
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	FuelType     string    `json:"fuel_type,omitempty"`
	P11D         float64   `json:"p11d"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Pricing is one lease quote for a vehicle from one provider. The composite
// key (vehicle, provider, rental, term, mileage) identifies a quote; a
// re-upload of the same quote refreshes its score rather than duplicating it.
type Pricing struct {
	ID            string                `json:"id"`
	VehicleID     string                `json:"vehicle_id"`
	Provider      string                `json:"provider"`
	MonthlyRental float64               `json:"monthly_rental"`
	Term          int                   `json:"term"`
	Mileage       int                   `json:"mileage"`
	Upfront       float64               `json:"upfront,omitempty"`
	Score         float64               `json:"score"`
	Breakdown     *model.ScoreBreakdown `json:"breakdown,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// BestPricingFilter narrows a best-pricing query. Zero values mean
// unfiltered.
type BestPricingFilter struct {
	Manufacturer string  `json:"manufacturer,omitempty"`
	FuelType     string  `json:"fuel_type,omitempty"`
	MaxMonthly   float64 `json:"max_monthly,omitempty"`
	MinScore     float64 `json:"min_score,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

// BestPricing is one row of a best-pricing query: the single best quote
// (lowest rental, then highest score) for one vehicle.
type BestPricing struct {
	Vehicle Vehicle `json:"vehicle"`
	Pricing Pricing `json:"pricing"`
}

// Store defines the persistence interface for analysis results.
type Store interface {
	// Vehicles and pricing
	UpsertVehicle(ctx context.Context, v *Vehicle) (string, error)
	UpsertPricing(ctx context.Context, p *Pricing) error
	GetBestPricing(ctx context.Context, filter BestPricingFilter) ([]BestPricing, error)

	// Provider column mappings
	SaveProviderMapping(ctx context.Context, provider string, mapping map[string]int) error
	GetProviderMapping(ctx context.Context, provider string) (map[string]int, error)
	ListProviderMappings(ctx context.Context) (map[string]map[string]int, error)

	// Reports
	SaveReport(ctx context.Context, report *model.Report) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
