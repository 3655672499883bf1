package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksRenderedWithRealNumbers(t *testing.T) {
	html := `<table><tr><td>Namakkal</td><td>450</td><td>460</td></tr></table>`
	assert.True(t, LooksRendered(html, []string{"Namakkal"}))
}

func TestLooksRenderedRejectsPlaceholders(t *testing.T) {
	html := `<table><tr><td>Namakkal</td><td>-</td><td>-</td><td>-</td></tr></table>`
	assert.False(t, LooksRendered(html, []string{"Namakkal"}))
}

func TestLooksRenderedChecksReferencesInOrder(t *testing.T) {
	html := `<table><tr><td>Chennai</td><td>512</td></tr></table>`
	assert.True(t, LooksRendered(html, []string{"Namakkal", "Chennai"}))
}

func TestLooksRenderedIgnoresDigitsBeyondProbeWindow(t *testing.T) {
	html := `<td>Namakkal</td>` + strings.Repeat(" ", renderProbeWindow+10) + `450`
	assert.False(t, LooksRendered(html, []string{"Namakkal"}))
}

func TestLooksRenderedFallsBackToAnyCell(t *testing.T) {
	// None of the reference zones appear; a digit-bearing cell decides.
	html := `<table><tr><td>Hyderabad</td><td>4150</td></tr></table>`
	assert.True(t, LooksRendered(html, []string{"Namakkal"}))

	empty := `<table><tr><td>Hyderabad</td><td>-</td></tr></table>`
	assert.False(t, LooksRendered(empty, []string{"Namakkal"}))
}
