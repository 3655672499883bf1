package parser

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"eggprice_scraper/internal/models"
)

// ParsedReport carries everything one parser pass extracted from the
// monthly report markup.
type ParsedReport struct {
	Zones  []models.ZoneDescriptor
	Prices []models.PriceDescriptor
}

// ReportParser defines the contract for turning raw report markup into
// zone descriptors and day-indexed price observations.
type ReportParser interface {
	ParseReport(r io.Reader, month, year int) (*ParsedReport, error)
}

// neccTableParser is the concrete implementation targeting the NECC
// suggested-price table layout.
type neccTableParser struct{}

// NewReportParser creates a new parser instance.
func NewReportParser() ReportParser {
	return &neccTableParser{}
}

// consumptionMarker tags consumption-center zones in the report.
const consumptionMarker = "(CC)"

var (
	spaceRunRegex  = regexp.MustCompile(`\s+`)
	nonDigitRegex  = regexp.MustCompile(`\D`)
	digitsOnlyReg  = regexp.MustCompile(`^[\d\s]+$`)
	numberListReg  = regexp.MustCompile(`^\d+(\s+\d+)+$`)
	nonAlnumRegexp = regexp.MustCompile(`[^a-z0-9]+`)
)

// First-cell phrases that mark a row as a section banner or column header
// rather than zone data.
var skipPhrases = []string{
	"name of",
	"zone",
	"daily rate",
	"monthly avg",
	"suggested egg price",
	"prevailing price",
}

// ParseReport walks every table row in the document. The first row that
// looks like a day header (all-digit first cell, or one containing "day")
// establishes a column-index to day-of-month mapping used for all later
// data rows; when no header is ever recognized the column position itself
// is taken as the day number. Malformed rows are skipped, not errors.
func (p *neccTableParser) ParseReport(r io.Reader, month, year int) (*ParsedReport, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	daysInMonth := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()

	var (
		zones     []models.ZoneDescriptor
		prices    []models.PriceDescriptor
		seenZones = map[string]bool{}
		seenKeys  = map[string]bool{}
		dayByCol  map[int]int
	)

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() == 0 {
			return
		}
		first := normalizeCell(cells.Eq(0).Text())
		lowerFirst := strings.ToLower(first)

		// Day-header detection happens once, before the numeric/length
		// skip rules would throw an all-digit header away. Banner and
		// column-header phrases still win ("Daily Rate" is not the day
		// header even though it contains "day").
		if dayByCol == nil && first != "" && !matchesSkipPhrase(lowerFirst) &&
			(digitsOnlyReg.MatchString(first) || strings.Contains(lowerFirst, "day")) {
			dayByCol = captureDayColumns(cells)
			return
		}

		if skipRow(first, lowerFirst) {
			return
		}

		// Anything surviving the skip rules is a zone data row.
		zoneType := models.ZoneTypeProduction
		if strings.Contains(first, consumptionMarker) {
			zoneType = models.ZoneTypeConsumption
		}
		if !seenZones[first] {
			seenZones[first] = true
			zones = append(zones, models.ZoneDescriptor{
				Name:     first,
				Slug:     Slugify(first),
				ZoneType: zoneType,
			})
		}

		for _, obs := range extractRowPrices(cells, dayByCol, month, year, daysInMonth, first) {
			if seenKeys[obs.Key()] {
				continue
			}
			seenKeys[obs.Key()] = true
			prices = append(prices, obs)
		}
	})

	return &ParsedReport{Zones: zones, Prices: prices}, nil
}

// skipRow filters banners, column headers and other non-data noise by the
// row's normalized first-cell text.
func skipRow(first, lowerFirst string) bool {
	if len([]rune(first)) < 3 {
		return true
	}
	if strings.Contains(lowerFirst, "average") {
		return true
	}
	if digitsOnlyReg.MatchString(first) || numberListReg.MatchString(first) {
		return true
	}
	return matchesSkipPhrase(lowerFirst)
}

func matchesSkipPhrase(lowerFirst string) bool {
	for _, phrase := range skipPhrases {
		if strings.Contains(lowerFirst, phrase) {
			return true
		}
	}
	return false
}

// captureDayColumns maps column index to day-of-month from a header row.
// Cells that don't parse to 1..31 (labels, blanks) simply get no mapping,
// and everything from the first "average" column onwards is ignored.
func captureDayColumns(cells *goquery.Selection) map[int]int {
	mapping := make(map[int]int)
	for i := 1; i < cells.Length(); i++ {
		text := normalizeCell(cells.Eq(i).Text())
		if strings.Contains(strings.ToLower(text), "average") {
			break
		}
		day, err := strconv.Atoi(strings.ReplaceAll(text, " ", ""))
		if err != nil || day < 1 || day > 31 {
			continue
		}
		mapping[i] = day
	}
	return mapping
}

func extractRowPrices(cells *goquery.Selection, dayByCol map[int]int, month, year, daysInMonth int, zoneName string) []models.PriceDescriptor {
	var out []models.PriceDescriptor

	appendPrice := func(text string, day int) {
		if day < 1 || day > daysInMonth {
			return
		}
		price, ok := parsePriceCell(text)
		if !ok {
			return
		}
		out = append(out, models.PriceDescriptor{
			ZoneName:       zoneName,
			Date:           time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
			SuggestedPrice: price,
		})
	}

	if len(dayByCol) > 0 {
		for i := 1; i < cells.Length(); i++ {
			day, ok := dayByCol[i]
			if !ok {
				continue
			}
			appendPrice(normalizeCell(cells.Eq(i).Text()), day)
		}
		return out
	}

	// No header row was ever recognized; fall back to column position as
	// the day number, bounded by the real length of the target month.
	day := 1
	for i := 1; i < cells.Length(); i++ {
		text := normalizeCell(cells.Eq(i).Text())
		if strings.Contains(strings.ToLower(text), "average") || day > daysInMonth {
			break
		}
		appendPrice(text, day)
		day++
	}
	return out
}

// parsePriceCell turns a cell's text into an integer price. Blank cells,
// lone dashes, zero and anything without digits are rejected.
func parsePriceCell(text string) (int, bool) {
	if text == "" || text == "-" {
		return 0, false
	}
	digits := nonDigitRegex.ReplaceAllString(text, "")
	if digits == "" {
		return 0, false
	}
	price, err := strconv.Atoi(digits)
	if err != nil || price == 0 {
		return 0, false
	}
	return price, true
}

// Slugify derives the url-safe uniqueness key from a zone's display name:
// lowercase, with every non-alphanumeric run collapsed to a hyphen.
func Slugify(name string) string {
	slug := nonAlnumRegexp.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

func normalizeCell(text string) string {
	return strings.TrimSpace(spaceRunRegex.ReplaceAllString(text, " "))
}
