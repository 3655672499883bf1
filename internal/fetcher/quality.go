package fetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// How far past a reference zone's name we scan for rendered digits. The
// upstream template keeps a zone's whole row within a few hundred characters
// of its name cell.
const renderProbeWindow = 500

var digitRunRegex = regexp.MustCompile(`\d{3,}`)

// LooksRendered reports whether the markup contains real rendered price
// numbers, as opposed to the placeholder dashes the server emits when the
// values are filled in client-side.
//
// Reference zones are checked in order; the first one present in the markup
// decides. If none of them appear at all, any data cell carrying a run of
// three or more digits counts as rendered.
func LooksRendered(html string, referenceZones []string) bool {
	lower := strings.ToLower(html)
	for _, zone := range referenceZones {
		needle := strings.ToLower(strings.TrimSpace(zone))
		if needle == "" {
			continue
		}
		idx := strings.Index(lower, needle)
		if idx < 0 {
			continue
		}
		start := idx + len(needle)
		end := start + renderProbeWindow
		if end > len(html) {
			end = len(html)
		}
		return digitRunRegex.MatchString(html[start:end])
	}
	return anyCellRendered(html)
}

func anyCellRendered(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	rendered := false
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if digitRunRegex.MatchString(td.Text()) {
			rendered = true
			return false
		}
		return true
	})
	return rendered
}
