package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"eggprice_scraper/internal/fetcher"
	"eggprice_scraper/internal/models"
	"eggprice_scraper/internal/parser"
	"eggprice_scraper/internal/repository"
)

// ReportFetcher is the contract both the plain-HTTP session fetcher and the
// headless-browser fallback satisfy.
type ReportFetcher interface {
	FetchReportHTML(ctx context.Context, month, year int) (string, error)
}

// ScrapeService sequences one monthly scrape: fetch, render-quality check,
// optional browser fallback, parse, zone reconciliation, price
// reconciliation. ScrapeMonth is the only entry point the scheduler/API
// layer needs.
type ScrapeService struct {
	fetcher        ReportFetcher
	fallback       ReportFetcher
	parser         parser.ReportParser
	zones          repository.ZoneRepository
	prices         repository.PriceRepository
	referenceZones []string
	mode           string
	logger         *zap.Logger
}

// NewScrapeService wires the pipeline. mode tags inserted rows with the
// run's provenance (models.ScraperModeManual or models.ScraperModeCron).
func NewScrapeService(
	primary ReportFetcher,
	fallback ReportFetcher,
	reportParser parser.ReportParser,
	zones repository.ZoneRepository,
	prices repository.PriceRepository,
	referenceZones []string,
	mode string,
	logger *zap.Logger,
) *ScrapeService {
	return &ScrapeService{
		fetcher:        primary,
		fallback:       fallback,
		parser:         reportParser,
		zones:          zones,
		prices:         prices,
		referenceZones: referenceZones,
		mode:           mode,
		logger:         logger,
	}
}

// ScrapeMonth runs the full pipeline for one month and always returns a
// summary, never an error: fetch and parse failures produce Success=false,
// everything recoverable lands in Errors with Success still true. A panic
// anywhere below is converted into a failed summary at this boundary.
func (s *ScrapeService) ScrapeMonth(ctx context.Context, month, year int) (summary *models.RunSummary) {
	summary = &models.RunSummary{}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scrape run panicked", zap.Any("panic", r))
			summary.Success = false
			summary.Errors = append(summary.Errors, fmt.Sprintf("panic: %v", r))
			summary.Message = failMessage(month, year)
		}
	}()

	if month < 1 || month > 12 || year < 1000 || year > 9999 {
		summary.Message = fmt.Sprintf("invalid report period %d/%d", month, year)
		return summary
	}

	log := s.logger.With(zap.Int("month", month), zap.Int("year", year))
	log.Info("starting scrape run", zap.String("mode", s.mode))

	html, err := s.fetcher.FetchReportHTML(ctx, month, year)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		summary.Message = failMessage(month, year)
		log.Error("report fetch failed", zap.Error(err))
		return summary
	}

	if !fetcher.LooksRendered(html, s.referenceZones) {
		log.Warn("markup looks unrendered, trying headless browser fallback")
		rendered, fbErr := s.fallback.FetchReportHTML(ctx, month, year)
		if fbErr != nil {
			// Graceful degradation: keep the original markup and record
			// the automation failure.
			summary.Errors = append(summary.Errors, fmt.Sprintf("browser fallback failed: %v", fbErr))
			log.Warn("browser fallback failed, continuing with original markup", zap.Error(fbErr))
		} else {
			html = rendered
		}
	}

	report, err := s.parser.ParseReport(strings.NewReader(html), month, year)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		summary.Message = failMessage(month, year)
		log.Error("report parse failed", zap.Error(err))
		return summary
	}

	zones, err := s.zones.ListZones(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		summary.Message = failMessage(month, year)
		log.Error("zone registry read failed", zap.Error(err))
		return summary
	}
	idx := buildRegistryIndex(zones)

	resolved := s.reconcileZones(ctx, report.Zones, idx, summary)
	s.reconcilePrices(ctx, report.Prices, idx, resolved, summary)

	summary.Success = true
	summary.Message = successMessage(month, year, summary.Stats)
	log.Info("scrape run finished",
		zap.Int("zonesFound", summary.Stats.ZonesFound),
		zap.Int("zonesValidated", summary.Stats.ZonesValidated),
		zap.Int("zonesMissing", summary.Stats.ZonesMissing),
		zap.Int("pricesInserted", summary.Stats.PricesInserted),
		zap.Int("pricesSkipped", summary.Stats.PricesSkipped),
		zap.Int("errors", len(summary.Errors)))
	return summary
}

// successMessage assembles a human-readable line out of the non-zero
// counters.
func successMessage(month, year int, stats models.RunStats) string {
	var parts []string
	add := func(n int, noun string) {
		if n != 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, noun))
		}
	}
	add(stats.ZonesFound, "zones found")
	add(stats.ZonesValidated, "zones validated")
	add(stats.ZonesMissing, "zones created")
	add(stats.PricesInserted, "prices inserted")
	add(stats.PricesSkipped, "prices skipped")
	if len(parts) == 0 {
		return fmt.Sprintf("scrape for %02d/%d finished with no data rows", month, year)
	}
	return fmt.Sprintf("scrape for %02d/%d finished: %s", month, year, strings.Join(parts, ", "))
}

func failMessage(month, year int) string {
	return fmt.Sprintf("scrape for %02d/%d failed", month, year)
}
