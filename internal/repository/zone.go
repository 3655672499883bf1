package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"eggprice_scraper/internal/models"
)

// ErrDuplicateSlug signals that a zone insert collided with the unique
// index on slug — typically a concurrent run created the zone first. The
// caller recovers by re-querying the slug.
var ErrDuplicateSlug = errors.New("zone slug already exists")

// ErrZoneNotFound is returned when a slug lookup finds nothing.
var ErrZoneNotFound = errors.New("zone not found")

// ZoneRepository is the minimal registry contract the reconciliation logic
// consumes. This is the interface you would mock for testing.
type ZoneRepository interface {
	ListZones(ctx context.Context) ([]models.Zone, error)
	InsertZone(ctx context.Context, zone *models.Zone) error
	FindZoneBySlug(ctx context.Context, slug string) (*models.Zone, error)
}

// PostgresZoneRepository implements ZoneRepository for PostgreSQL using GORM.
// The *gorm.DB must be opened with TranslateError so unique-index violations
// surface as gorm.ErrDuplicatedKey.
type PostgresZoneRepository struct {
	db *gorm.DB
}

// NewPostgresZoneRepository creates a new instance.
func NewPostgresZoneRepository(db *gorm.DB) *PostgresZoneRepository {
	return &PostgresZoneRepository{db: db}
}

// Init handles GORM's automatic table creation/migration.
func (r *PostgresZoneRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.Zone{})
}

// ListZones returns the full zone registry.
func (r *PostgresZoneRepository) ListZones(ctx context.Context) ([]models.Zone, error) {
	var zones []models.Zone
	result := r.db.WithContext(ctx).Find(&zones)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list zones: %w", result.Error)
	}
	return zones, nil
}

// InsertZone creates a new registry row, filling in the generated id. A
// slug-uniqueness violation comes back as ErrDuplicateSlug so the caller
// can distinguish it from other failures.
func (r *PostgresZoneRepository) InsertZone(ctx context.Context, zone *models.Zone) error {
	result := r.db.WithContext(ctx).Create(zone)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateSlug, zone.Slug)
		}
		return fmt.Errorf("failed to insert zone %q: %w", zone.Name, result.Error)
	}
	return nil
}

// FindZoneBySlug looks a zone up by slug, case-insensitively.
func (r *PostgresZoneRepository) FindZoneBySlug(ctx context.Context, slug string) (*models.Zone, error) {
	var zone models.Zone
	result := r.db.WithContext(ctx).Where("lower(slug) = lower(?)", slug).First(&zone)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: slug %q", ErrZoneNotFound, slug)
		}
		return nil, fmt.Errorf("failed to find zone by slug %q: %w", slug, result.Error)
	}
	return &zone, nil
}
