package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"eggprice_scraper/internal/models"
)

// ErrDuplicatePrice signals that a price insert hit the (zone_id, date)
// unique index: another run inserted the observation between our existence
// check and the insert. Callers treat it as an idempotent skip.
var ErrDuplicatePrice = errors.New("price observation already exists")

// PriceRepository is the store contract for per-day price observations.
type PriceRepository interface {
	PriceExists(ctx context.Context, zoneID uint, date time.Time) (bool, error)
	InsertPrice(ctx context.Context, price *models.DailyPrice) error
}

// PostgresPriceRepository implements PriceRepository for PostgreSQL using GORM.
type PostgresPriceRepository struct {
	db *gorm.DB
}

// NewPostgresPriceRepository creates a new instance.
func NewPostgresPriceRepository(db *gorm.DB) *PostgresPriceRepository {
	return &PostgresPriceRepository{db: db}
}

// Init handles GORM's automatic table creation/migration.
func (r *PostgresPriceRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.DailyPrice{})
}

// PriceExists reports whether an observation is already stored for the
// given zone and calendar day.
func (r *PostgresPriceRepository) PriceExists(ctx context.Context, zoneID uint, date time.Time) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.DailyPrice{}).
		Where("zone_id = ? AND date = ?", zoneID, date.Format("2006-01-02")).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check price existence: %w", result.Error)
	}
	return count > 0, nil
}

// InsertPrice stores one observation. The caller has already checked
// existence; a duplicate-key violation here means a concurrent run won the
// race and is reported as ErrDuplicatePrice.
func (r *PostgresPriceRepository) InsertPrice(ctx context.Context, price *models.DailyPrice) error {
	result := r.db.WithContext(ctx).Create(price)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: zone %d on %s", ErrDuplicatePrice, price.ZoneID, price.Date.Format("2006-01-02"))
		}
		return fmt.Errorf("failed to insert price: %w", result.Error)
	}
	return nil
}
