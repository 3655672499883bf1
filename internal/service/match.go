package service

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Similarity floor for the Jaro-Winkler last-resort match. High on purpose:
// it only has to absorb typo-level drift the structural rules miss.
const jaroWinklerThreshold = 0.93

var (
	matchSpaceRegex = regexp.MustCompile(`\s+`)
	parenthetical   = regexp.MustCompile(`\([^)]*\)`)
)

// namesMatch decides whether a scraped zone name and a registry zone name
// refer to the same zone. Rules are tried cheapest-first:
//
//  1. equality after whitespace/case normalization
//  2. containment either direction ("Namakkal" vs "Namakkal Production Center")
//  3. significant-word subset after stripping parenthetical codes
//  4. Jaro-Winkler similarity above the threshold
func namesMatch(scraped, registry string) bool {
	a := normalizeName(scraped)
	b := normalizeName(registry)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if keywordsOverlap(a, b) {
		return true
	}
	return matchr.JaroWinkler(a, b, false) >= jaroWinklerThreshold
}

// keywordsOverlap accepts when the smaller significant-word set is wholly
// contained in the larger one. Words of up to 2 runes ("of", "in", stray
// codes) carry no signal and are dropped.
func keywordsOverlap(a, b string) bool {
	wordsA := significantWords(a)
	wordsB := significantWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}
	small, large := wordsA, wordsB
	if len(large) < len(small) {
		small, large = large, small
	}
	for w := range small {
		if !large[w] {
			return false
		}
	}
	return true
}

func significantWords(name string) map[string]bool {
	stripped := parenthetical.ReplaceAllString(name, " ")
	words := make(map[string]bool)
	for _, w := range strings.Fields(stripped) {
		if len([]rune(w)) > 2 {
			words[w] = true
		}
	}
	return words
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(matchSpaceRegex.ReplaceAllString(name, " ")))
}
