package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"eggprice_scraper/pkg/headless"
)

// Selectors on the upstream report form.
const (
	monthSelectSelector = `select[name="month"]`
	yearSelectSelector  = `select[name="year"]`
	reportTypeSelector  = `input[type="radio"][value="suggested"]`
	submitSelector      = `input[type="submit"]`

	// How long to wait for the first data cell after submitting the form.
	// Expiry is non-fatal: whatever markup is present gets extracted.
	cellWaitTimeout = 15 * time.Second
)

// BrowserFetcher drives a headless browser through the report form. It is
// the fallback path for when the plain HTTP response carries only
// placeholder values that the real site fills in with client-side script.
type BrowserFetcher struct {
	reportURL string
	logger    *zap.Logger
}

func NewBrowserFetcher(reportURL string, logger *zap.Logger) *BrowserFetcher {
	return &BrowserFetcher{reportURL: reportURL, logger: logger}
}

// FetchReportHTML renders the report for the given month and year and
// returns the full page markup.
func (f *BrowserFetcher) FetchReportHTML(ctx context.Context, month, year int) (string, error) {
	f.logger.Info("fetching report via headless browser",
		zap.Int("month", month), zap.Int("year", year))
	return headless.FetchRenderedContent(ctx, f.reportURL, f.reportWaitStrategy(month, year), "html")
}

// reportWaitStrategy selects the month/year, picks the suggested-price
// report type, submits the form, and waits for the table to render.
func (f *BrowserFetcher) reportWaitStrategy(month, year int) headless.WaitStrategy {
	return func(ctx context.Context, url string) error {
		err := chromedp.Run(ctx,
			chromedp.Navigate(url),
			chromedp.WaitReady(monthSelectSelector, chromedp.ByQuery),
			chromedp.WaitReady(yearSelectSelector, chromedp.ByQuery),
			chromedp.SetValue(monthSelectSelector, strconv.Itoa(month), chromedp.ByQuery),
			chromedp.SetValue(yearSelectSelector, strconv.Itoa(year), chromedp.ByQuery),
			chromedp.Click(reportTypeSelector, chromedp.ByQuery),
			chromedp.Click(submitSelector, chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("report form interaction failed: %w", err)
		}

		// The submit navigates and the table body streams in afterwards.
		// Poll instead of WaitReady so a slow render doesn't kill the tab.
		var ready bool
		err = chromedp.Run(ctx,
			chromedp.Poll(`document.querySelector("table td") !== null`, &ready,
				chromedp.WithPollingTimeout(cellWaitTimeout)),
		)
		if err != nil {
			if errors.Is(err, chromedp.ErrPollingTimeout) {
				f.logger.Warn("table cells never appeared, extracting current markup")
				return nil
			}
			return fmt.Errorf("waiting for table cells: %w", err)
		}
		return nil
	}
}
