package models

import (
	"fmt"
	"time"
)

// Zone classification values. The upstream report marks consumption centers
// with a literal "(CC)" suffix; everything else is a production center.
const (
	ZoneTypeProduction  = "production_center"
	ZoneTypeConsumption = "consumption_center"
)

// Price provenance values.
const (
	PriceSourceScraped  = "scraped"
	PriceSourceManual   = "manual"
	PriceSourceImported = "imported"
)

// Scraper run modes, recorded on each inserted price row.
const (
	ScraperModeCron   = "CRON"
	ScraperModeManual = "MANUAL"
)

// Zone is a named geographic price point from the monthly report.
//
// Name is the human-facing key used for reconciliation and need not be
// unique; Slug is derived from the name, stored lowercase, and unique
// across all zones.
type Zone struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name     string  `json:"name" gorm:"type:varchar(255);not null;index"`
	Slug     string  `json:"slug" gorm:"type:varchar(255);not null;uniqueIndex"`
	ZoneType string  `json:"zoneType" gorm:"type:varchar(50);not null;default:production_center"`
	State    *string `json:"state,omitempty" gorm:"type:varchar(100)"`
	District *string `json:"district,omitempty" gorm:"type:varchar(100)"`
	City     *string `json:"city,omitempty" gorm:"type:varchar(100)"`

	IsActive  bool `json:"isActive" gorm:"not null;default:true"`
	SortOrder int  `json:"sortOrder" gorm:"not null;default:0"`
}

// DailyPrice is one zone's price observation for one calendar day.
//
// The composite unique index on (zone_id, date) is the idempotency key:
// a second scrape of the same month must never create a duplicate, and a
// concurrent run racing past the existence check is stopped by the index.
type DailyPrice struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ZoneID uint      `json:"zoneId" gorm:"not null;uniqueIndex:idx_daily_prices_zone_date"`
	Zone   Zone      `json:"-" gorm:"foreignKey:ZoneID"`
	Date   time.Time `json:"date" gorm:"type:date;not null;uniqueIndex:idx_daily_prices_zone_date"`

	// Denormalized date parts for query convenience.
	Year  int `json:"year" gorm:"not null"`
	Month int `json:"month" gorm:"not null"`
	Day   int `json:"day" gorm:"not null"`

	SuggestedPrice  *int `json:"suggestedPrice" gorm:"type:integer"`
	PrevailingPrice *int `json:"prevailingPrice" gorm:"type:integer"`

	Source      string  `json:"source" gorm:"type:varchar(20);not null;default:scraped"`
	ScraperMode *string `json:"scraperMode,omitempty" gorm:"type:varchar(10)"`
}

// ZoneDescriptor is a zone extracted from one parser pass, not yet
// resolved against the registry.
type ZoneDescriptor struct {
	Name     string
	Slug     string
	ZoneType string
}

// PriceDescriptor is a single parsed (zone name, date, price) triple.
type PriceDescriptor struct {
	ZoneName       string
	Date           time.Time
	SuggestedPrice int
}

// Key returns the dedup key used during parsing. Two cells mapping to the
// same zone and day within one HTML pass collapse to one descriptor.
func (p PriceDescriptor) Key() string {
	return fmt.Sprintf("%s|%s", p.ZoneName, p.Date.Format("2006-01-02"))
}

// RunStats carries the counters accumulated across one scrape run.
type RunStats struct {
	ZonesFound     int `json:"zonesFound"`
	ZonesValidated int `json:"zonesValidated"`
	ZonesMissing   int `json:"zonesMissing"`
	PricesInserted int `json:"pricesInserted"`
	PricesSkipped  int `json:"pricesSkipped"`
}

// RunSummary is the single value returned to the caller of a scrape run.
// Non-fatal problems land in Errors while Success stays true; only a
// failed fetch or parse (or a panic) produces Success=false.
type RunSummary struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Stats   RunStats `json:"stats"`
	Errors  []string `json:"errors,omitempty"`
}
