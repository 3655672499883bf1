package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DataHenHQ/useragent"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Form fields the upstream report endpoint expects. The report type is fixed:
// this scraper only ever requests the suggested-price table.
const (
	formFieldMonth  = "month"
	formFieldYear   = "year"
	formFieldType   = "type"
	formFieldSubmit = "submit"

	reportTypeSuggested = "suggested"
	submitValue         = "Go"
)

// FetchError is returned when the upstream report endpoint answers with a
// non-success HTTP status. It aborts the run.
type FetchError struct {
	Status string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("report endpoint returned %s", e.Status)
}

// SessionFetcher obtains the report markup over plain HTTP: a GET to pick up
// session cookies, then a form POST echoing them. The upstream discriminates
// by header shape, so the requests carry a realistic desktop browser profile.
type SessionFetcher struct {
	client    *http.Client
	reportURL string
	origin    string
	retries   uint64
	logger    *zap.Logger
}

// NewSessionFetcher builds a fetcher for the given report URL. The client
// carries a cookie jar so the GET's session cookie is echoed on the POST
// without any assumption about the cookie's format.
func NewSessionFetcher(reportURL string, timeout time.Duration, retries uint64, logger *zap.Logger) (*SessionFetcher, error) {
	u, err := url.Parse(reportURL)
	if err != nil {
		return nil, fmt.Errorf("invalid report URL %q: %w", reportURL, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &SessionFetcher{
		client:    &http.Client{Timeout: timeout, Jar: jar},
		reportURL: reportURL,
		origin:    u.Scheme + "://" + u.Host,
		retries:   retries,
		logger:    logger,
	}, nil
}

// FetchReportHTML returns the raw report markup for the given month and year.
// The GET/POST pair is retried with bounded exponential backoff because the
// upstream is flaky under load.
func (f *SessionFetcher) FetchReportHTML(ctx context.Context, month, year int) (string, error) {
	ua, err := useragent.Desktop()
	if err != nil {
		return "", fmt.Errorf("could not generate random UA: %w", err)
	}

	var html string
	err = backoff.Retry(
		func() error {
			var fetchErr error
			html, fetchErr = f.fetchOnce(ctx, month, year, ua)
			if fetchErr != nil {
				f.logger.Warn("report fetch attempt failed",
					zap.Int("month", month), zap.Int("year", year), zap.Error(fetchErr))
			}
			return fetchErr
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.retries),
			ctx,
		),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

func (f *SessionFetcher) fetchOnce(ctx context.Context, month, year int, ua string) (string, error) {
	// 1. GET establishes the session; the jar captures whatever cookie the
	// server hands out.
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.reportURL, nil)
	if err != nil {
		return "", fmt.Errorf("build GET request: %w", err)
	}
	getReq.Header.Set("User-Agent", ua)
	getReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	getResp, err := f.client.Do(getReq)
	if err != nil {
		return "", fmt.Errorf("report GET: %w", err)
	}
	_, _ = io.Copy(io.Discard, getResp.Body)
	getResp.Body.Close()
	if getResp.StatusCode < 200 || getResp.StatusCode > 299 {
		return "", &FetchError{Status: getResp.Status}
	}

	// 2. POST the report form, cookies riding along from the jar.
	form := url.Values{}
	form.Set(formFieldMonth, strconv.Itoa(month))
	form.Set(formFieldYear, strconv.Itoa(year))
	form.Set(formFieldType, reportTypeSuggested)
	form.Set(formFieldSubmit, submitValue)

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.reportURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build POST request: %w", err)
	}
	postReq.Header.Set("User-Agent", ua)
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	postReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	postReq.Header.Set("Referer", f.reportURL)
	postReq.Header.Set("Origin", f.origin)

	postResp, err := f.client.Do(postReq)
	if err != nil {
		return "", fmt.Errorf("report POST: %w", err)
	}
	defer postResp.Body.Close()
	if postResp.StatusCode < 200 || postResp.StatusCode > 299 {
		return "", &FetchError{Status: postResp.Status}
	}

	body, err := io.ReadAll(postResp.Body)
	if err != nil {
		return "", fmt.Errorf("read report body: %w", err)
	}
	return string(body), nil
}
