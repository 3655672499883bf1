package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"eggprice_scraper/internal/config"
	"eggprice_scraper/internal/fetcher"
	"eggprice_scraper/internal/models"
	"eggprice_scraper/internal/parser"
	"eggprice_scraper/internal/repository"
	"eggprice_scraper/internal/service"
)

type monthYear struct {
	month int
	year  int
}

func main() {
	now := time.Now()
	var (
		monthFlag = flag.Int("month", int(now.Month()), "report month (1-12)")
		yearFlag  = flag.Int("year", now.Year(), "report year (4-digit)")
		fromFlag  = flag.String("from", "", "backfill start as MM/YYYY (use with -to)")
		toFlag    = flag.String("to", "", "backfill end as MM/YYYY (use with -from)")
	)
	flag.Parse()

	// 1. Load configuration
	appConfig := config.Init()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	// 2. Database Connection (using GORM). TranslateError is required so the
	// repositories can tell unique-index violations apart from other failures.
	db, err := gorm.Open(postgres.Open(appConfig.DBConn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("Error connecting to database with GORM: %v", err)
	}
	logger.Info("connected to PostgreSQL")

	// 3. Dependency Injection: Initialize components
	zoneRepo := repository.NewPostgresZoneRepository(db)
	priceRepo := repository.NewPostgresPriceRepository(db)

	// 4. Database Migration
	ctx := context.Background()
	if err := zoneRepo.Init(ctx); err != nil {
		log.Fatalf("Failed to migrate zones table: %v", err)
	}
	if err := priceRepo.Init(ctx); err != nil {
		log.Fatalf("Failed to migrate daily prices table: %v", err)
	}

	sessionFetcher, err := fetcher.NewSessionFetcher(appConfig.ReportURL, appConfig.HTTPTimeout, appConfig.FetchRetries, logger)
	if err != nil {
		log.Fatalf("Failed to build session fetcher: %v", err)
	}
	browserFetcher := fetcher.NewBrowserFetcher(appConfig.ReportURL, logger)

	scrapeService := service.NewScrapeService(
		sessionFetcher,
		browserFetcher,
		parser.NewReportParser(),
		zoneRepo,
		priceRepo,
		appConfig.ReferenceZones,
		models.ScraperModeManual,
		logger,
	)

	runs, err := resolveRuns(*monthFlag, *yearFlag, *fromFlag, *toFlag)
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	// 5. Execution: distinct months never contend on the (zone, date)
	// idempotency key, so a backfill range can run in parallel.
	g, gCtx := errgroup.WithContext(ctx)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			summary := scrapeService.ScrapeMonth(gCtx, run.month, run.year)
			for _, e := range summary.Errors {
				logger.Warn("run error", zap.Int("month", run.month), zap.Int("year", run.year), zap.String("error", e))
			}
			if !summary.Success {
				return fmt.Errorf("scrape %02d/%d: %s", run.month, run.year, summary.Message)
			}
			logger.Info("run summary", zap.Int("month", run.month), zap.Int("year", run.year), zap.String("message", summary.Message))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("One or more scrape runs failed: %v", err)
	}
}

// resolveRuns expands the flags into the list of months to scrape: a single
// month by default, or an inclusive MM/YYYY range when -from/-to are given.
func resolveRuns(month, year int, from, to string) ([]monthYear, error) {
	if from == "" && to == "" {
		return []monthYear{{month: month, year: year}}, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("-from and -to must be used together")
	}

	start, err := parseMonthYear(from)
	if err != nil {
		return nil, fmt.Errorf("bad -from value %q: %w", from, err)
	}
	end, err := parseMonthYear(to)
	if err != nil {
		return nil, fmt.Errorf("bad -to value %q: %w", to, err)
	}
	if start.year > end.year || (start.year == end.year && start.month > end.month) {
		return nil, fmt.Errorf("-from %s is after -to %s", from, to)
	}

	var runs []monthYear
	for cur := start; ; {
		runs = append(runs, cur)
		if cur == end {
			break
		}
		cur.month++
		if cur.month > 12 {
			cur.month = 1
			cur.year++
		}
	}
	return runs, nil
}

func parseMonthYear(s string) (monthYear, error) {
	var my monthYear
	if _, err := fmt.Sscanf(s, "%d/%d", &my.month, &my.year); err != nil {
		return my, fmt.Errorf("expected MM/YYYY: %w", err)
	}
	if my.month < 1 || my.month > 12 || my.year < 1000 || my.year > 9999 {
		return my, fmt.Errorf("month or year out of range")
	}
	return my, nil
}
