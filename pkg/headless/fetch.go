package headless

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/DataHenHQ/useragent"

	"github.com/chromedp/chromedp"
)

// Default settings for headless browser operation.
const (
	DefaultTimeout    = 90 * time.Second
	DefaultWaitBuffer = 3 * time.Second
)

// WaitStrategy is a function that performs the navigation and any form
// interaction needed to get a dynamic page into its fully rendered state.
type WaitStrategy func(ctx context.Context, url string) error

// FetchRenderedContent launches an isolated headless browser, runs the
// provided WaitStrategy against the URL, and extracts the outer HTML of the
// node identified by extractionSelector once rendering has settled.
//
// The browser process is always released: every chromedp context created
// here is cancelled via defer on both the success and failure paths.
func FetchRenderedContent(parentCtx context.Context, url string, strategy WaitStrategy, extractionSelector string) (string, error) {
	ua, err := useragent.Desktop()
	if err != nil {
		return "", fmt.Errorf("could not generate random UA: %w", err)
	}
	// 1. Setup Context with Timeout: Derive a new timed context from the parentCtx.
	ctx, cancel := context.WithTimeout(parentCtx, DefaultTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(ua), // Random User Agent (essential)
		chromedp.Headless,      // Still run headless
		chromedp.WindowSize(1920, 1080),

		// Core Evasion Flags
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		// Additional "Stealth" Flags:
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("no-first-run", true),

		// CRITICAL for local/Docker environments:
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("single-process", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	// 2. Create a Chrome instance context derived from the new timed context.
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))
	defer chromeCancel()

	var fullHTML string

	// 3. Run the custom waiting strategy (which includes navigation)
	if err := strategy(chromeCtx, url); err != nil {
		return "", fmt.Errorf("wait strategy failed for %s: %w", url, err)
	}

	// 4. Extract the final HTML from the specified extractionSelector
	tasks := chromedp.Tasks{
		// Settle buffer: the report backfills cells asynchronously even
		// after the first data cell exists.
		chromedp.Sleep(DefaultWaitBuffer),

		chromedp.OuterHTML(extractionSelector, &fullHTML, chromedp.ByQuery),
	}

	if err := chromedp.Run(chromeCtx, tasks); err != nil {
		log.Printf("Extraction failed (Length: %d). Error: %v", len(fullHTML), err)
		return "", fmt.Errorf("failed to extract HTML from selector '%s': %w", extractionSelector, err)
	}

	return fullHTML, nil
}
