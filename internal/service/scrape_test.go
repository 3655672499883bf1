package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eggprice_scraper/internal/models"
	"eggprice_scraper/internal/parser"
	"eggprice_scraper/internal/repository"
)

// --- fakes ---

type stubFetcher struct {
	html  string
	err   error
	calls int
}

func (s *stubFetcher) FetchReportHTML(ctx context.Context, month, year int) (string, error) {
	s.calls++
	return s.html, s.err
}

type memZoneRepo struct {
	zones     []models.Zone
	hidden    []models.Zone // present in store but missing from ListZones (race simulation)
	nextID    uint
	insertErr error
}

func (r *memZoneRepo) ListZones(ctx context.Context) ([]models.Zone, error) {
	out := make([]models.Zone, len(r.zones))
	copy(out, r.zones)
	return out, nil
}

func (r *memZoneRepo) InsertZone(ctx context.Context, zone *models.Zone) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, z := range append(r.zones, r.hidden...) {
		if strings.EqualFold(z.Slug, zone.Slug) {
			return fmt.Errorf("%w: %s", repository.ErrDuplicateSlug, zone.Slug)
		}
	}
	r.nextID++
	zone.ID = r.nextID
	r.zones = append(r.zones, *zone)
	return nil
}

func (r *memZoneRepo) FindZoneBySlug(ctx context.Context, slug string) (*models.Zone, error) {
	for _, z := range append(r.zones, r.hidden...) {
		if strings.EqualFold(z.Slug, slug) {
			found := z
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: slug %q", repository.ErrZoneNotFound, slug)
}

type memPriceRepo struct {
	rows      map[string]models.DailyPrice
	insertErr error
}

func newMemPriceRepo() *memPriceRepo {
	return &memPriceRepo{rows: make(map[string]models.DailyPrice)}
}

func priceKey(zoneID uint, date time.Time) string {
	return fmt.Sprintf("%d|%s", zoneID, date.Format("2006-01-02"))
}

func (r *memPriceRepo) PriceExists(ctx context.Context, zoneID uint, date time.Time) (bool, error) {
	_, ok := r.rows[priceKey(zoneID, date)]
	return ok, nil
}

func (r *memPriceRepo) InsertPrice(ctx context.Context, price *models.DailyPrice) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	key := priceKey(price.ZoneID, price.Date)
	if _, ok := r.rows[key]; ok {
		return fmt.Errorf("%w", repository.ErrDuplicatePrice)
	}
	r.rows[key] = *price
	return nil
}

// --- helpers ---

const renderedReport = `
<table>
  <tr><td>Day</td><td>1</td><td>2</td><td>3</td><td>4</td></tr>
  <tr><td>Namakkal</td><td>450</td><td>460</td><td>-</td><td>470</td></tr>
  <tr><td>Delhi (CC)</td><td>480</td><td>485</td><td>490</td><td>495</td></tr>
</table>`

const placeholderReport = `
<table>
  <tr><td>Day</td><td>1</td><td>2</td><td>3</td><td>4</td></tr>
  <tr><td>Namakkal</td><td>-</td><td>-</td><td>-</td><td>-</td></tr>
</table>`

func newService(primary, fallback ReportFetcher, zones repository.ZoneRepository, prices repository.PriceRepository) *ScrapeService {
	return NewScrapeService(
		primary, fallback, parser.NewReportParser(), zones, prices,
		[]string{"Namakkal"}, models.ScraperModeManual, zap.NewNop(),
	)
}

// --- tests ---

func TestScrapeMonthInsertsAndIsIdempotent(t *testing.T) {
	zones := &memZoneRepo{}
	prices := newMemPriceRepo()
	fallback := &stubFetcher{}
	svc := newService(&stubFetcher{html: renderedReport}, fallback, zones, prices)

	first := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, first.Success, "errors: %v", first.Errors)
	assert.Empty(t, first.Errors)
	assert.Equal(t, 2, first.Stats.ZonesFound)
	assert.Equal(t, 2, first.Stats.ZonesValidated)
	assert.Equal(t, 2, first.Stats.ZonesMissing)
	assert.Equal(t, 7, first.Stats.PricesInserted) // Namakkal: days 1,2,4; Delhi: days 1-4
	assert.Equal(t, 0, first.Stats.PricesSkipped)
	assert.Equal(t, 0, fallback.calls)
	assert.Contains(t, first.Message, "7 prices inserted")

	// A second pass over the same month must be a pure no-op.
	second := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, second.Success)
	assert.Equal(t, 0, second.Stats.PricesInserted)
	assert.Equal(t, first.Stats.PricesInserted, second.Stats.PricesSkipped)
	assert.Equal(t, 0, second.Stats.ZonesMissing)
	assert.Len(t, zones.zones, 2)
	assert.Len(t, prices.rows, 7)
}

func TestScrapeMonthInsertedRowFields(t *testing.T) {
	zones := &memZoneRepo{}
	prices := newMemPriceRepo()
	svc := newService(&stubFetcher{html: renderedReport}, &stubFetcher{}, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)
	require.True(t, summary.Success)

	namakkal, err := zones.FindZoneBySlug(context.Background(), "namakkal")
	require.NoError(t, err)
	row, ok := prices.rows[priceKey(namakkal.ID, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))]
	require.True(t, ok)
	assert.Equal(t, 2024, row.Year)
	assert.Equal(t, 3, row.Month)
	assert.Equal(t, 4, row.Day)
	require.NotNil(t, row.SuggestedPrice)
	assert.Equal(t, 470, *row.SuggestedPrice)
	assert.Nil(t, row.PrevailingPrice)
	assert.Equal(t, models.PriceSourceScraped, row.Source)
	require.NotNil(t, row.ScraperMode)
	assert.Equal(t, models.ScraperModeManual, *row.ScraperMode)

	// Day 3 was a dash and must not exist.
	_, ok = prices.rows[priceKey(namakkal.ID, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))]
	assert.False(t, ok)
}

func TestPlaceholderMarkupTriggersBrowserFallback(t *testing.T) {
	zones := &memZoneRepo{}
	prices := newMemPriceRepo()
	fallback := &stubFetcher{html: renderedReport}
	svc := newService(&stubFetcher{html: placeholderReport}, fallback, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, summary.Success)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 7, summary.Stats.PricesInserted)
}

func TestBrowserFallbackFailureIsNonFatal(t *testing.T) {
	zones := &memZoneRepo{}
	prices := newMemPriceRepo()
	fallback := &stubFetcher{err: errors.New("chrome crashed")}
	svc := newService(&stubFetcher{html: placeholderReport}, fallback, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	// The run degrades to the original markup instead of aborting.
	require.True(t, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "browser fallback failed")
	assert.Equal(t, 1, summary.Stats.ZonesFound)
	assert.Equal(t, 0, summary.Stats.PricesInserted)
}

func TestFetchFailureFailsRun(t *testing.T) {
	svc := newService(&stubFetcher{err: errors.New("connection refused")}, &stubFetcher{}, &memZoneRepo{}, newMemPriceRepo())

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	assert.False(t, summary.Success)
	assert.Contains(t, summary.Message, "03/2024")
	require.Len(t, summary.Errors, 1)
}

func TestInvalidPeriodFailsRun(t *testing.T) {
	svc := newService(&stubFetcher{html: renderedReport}, &stubFetcher{}, &memZoneRepo{}, newMemPriceRepo())

	summary := svc.ScrapeMonth(context.Background(), 13, 2024)

	assert.False(t, summary.Success)
	assert.Contains(t, summary.Message, "invalid")
}

func TestCaseVariantResolvesViaSlugWithoutNewZone(t *testing.T) {
	zones := &memZoneRepo{
		zones:  []models.Zone{{ID: 7, Name: "Namakkal", Slug: "namakkal"}},
		nextID: 7,
	}
	prices := newMemPriceRepo()
	html := `
	<table>
	  <tr><td>Day</td><td>1</td></tr>
	  <tr><td>NAMAKKAL</td><td>450</td></tr>
	</table>`
	svc := newService(&stubFetcher{html: html}, &stubFetcher{}, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.Stats.ZonesValidated)
	assert.Equal(t, 0, summary.Stats.ZonesMissing)
	assert.Len(t, zones.zones, 1, "case variant must reuse the existing zone")
	_, ok := prices.rows[priceKey(7, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))]
	assert.True(t, ok)
}

func TestFuzzyResolveMapsScrapedNameToRegistryZone(t *testing.T) {
	zones := &memZoneRepo{}
	prices := newMemPriceRepo()
	svc := newService(&stubFetcher{}, &stubFetcher{}, zones, prices)

	idx := buildRegistryIndex([]models.Zone{{ID: 42, Name: "Namakkal (PC)", Slug: "namakkal-pc"}})
	resolved := map[string]uint{}
	summary := &models.RunSummary{}

	descriptors := []models.PriceDescriptor{
		{ZoneName: "Namakkal", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), SuggestedPrice: 450},
		{ZoneName: "Namakkal", Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), SuggestedPrice: 455},
		{ZoneName: "Atlantis", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), SuggestedPrice: 999},
	}
	svc.reconcilePrices(context.Background(), descriptors, idx, resolved, summary)

	assert.Equal(t, 2, summary.Stats.PricesInserted)
	assert.Equal(t, uint(42), resolved["Namakkal"], "fuzzy hit must be cached")
	_, atlantisResolved := resolved["Atlantis"]
	assert.False(t, atlantisResolved, "unresolvable names are skipped silently")
	assert.Empty(t, summary.Errors)
	for _, row := range prices.rows {
		assert.Equal(t, uint(42), row.ZoneID)
	}
}

func TestSlugConflictRecoversViaRequery(t *testing.T) {
	// Another run created the zone after our registry read: the insert
	// collides on the slug and the winner's id is reused.
	zones := &memZoneRepo{
		hidden: []models.Zone{{ID: 99, Name: "Namakkal", Slug: "namakkal"}},
	}
	prices := newMemPriceRepo()
	svc := newService(&stubFetcher{html: renderedReport}, &stubFetcher{}, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, summary.Success)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 2, summary.Stats.ZonesValidated)
	_, ok := prices.rows[priceKey(99, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))]
	assert.True(t, ok, "prices must attach to the concurrently created zone")
}

func TestZoneCreationErrorIsRecordedAndPricesSkipped(t *testing.T) {
	zones := &memZoneRepo{insertErr: errors.New("disk full")}
	prices := newMemPriceRepo()
	svc := newService(&stubFetcher{html: renderedReport}, &stubFetcher{}, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, summary.Success, "zone creation failure must not abort the run")
	assert.Len(t, summary.Errors, 2)
	assert.Equal(t, 0, summary.Stats.ZonesValidated)
	assert.Equal(t, 0, summary.Stats.PricesInserted)
	assert.Empty(t, prices.rows)
}

func TestPriceInsertErrorKeepsLoopGoing(t *testing.T) {
	zones := &memZoneRepo{
		zones:  []models.Zone{{ID: 1, Name: "Namakkal", Slug: "namakkal"}},
		nextID: 1,
	}
	prices := newMemPriceRepo()
	prices.insertErr = errors.New("deadlock detected")
	html := `
	<table>
	  <tr><td>Day</td><td>1</td><td>2</td></tr>
	  <tr><td>Namakkal</td><td>450</td><td>460</td></tr>
	</table>`
	svc := newService(&stubFetcher{html: html}, &stubFetcher{}, zones, prices)

	summary := svc.ScrapeMonth(context.Background(), 3, 2024)

	require.True(t, summary.Success)
	assert.Len(t, summary.Errors, 2, "each failed row is reported with context")
	assert.Contains(t, summary.Errors[0], "Namakkal")
	assert.Contains(t, summary.Errors[0], "2024-03-01")
}

func TestDuplicatePriceInsertCountsAsSkipped(t *testing.T) {
	zones := &memZoneRepo{}
	prices := newMemPriceRepo()
	svc := newService(&stubFetcher{}, &stubFetcher{}, zones, prices)

	idx := buildRegistryIndex(nil)
	resolved := map[string]uint{"Namakkal": 1}
	summary := &models.RunSummary{}
	prices.insertErr = fmt.Errorf("%w", repository.ErrDuplicatePrice)

	svc.reconcilePrices(context.Background(), []models.PriceDescriptor{
		{ZoneName: "Namakkal", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), SuggestedPrice: 450},
	}, idx, resolved, summary)

	assert.Equal(t, 0, summary.Stats.PricesInserted)
	assert.Equal(t, 1, summary.Stats.PricesSkipped)
	assert.Empty(t, summary.Errors)
}
