package catalog

import (
	"strings"
	"unicode"

	"bourbonwatch/internal/model"
)

// genericWords are spirit-trade filler that carries no identity on its own.
// A match that rests entirely on these words is no match.
var genericWords = map[string]bool{
	"straight": true, "bourbon": true, "whiskey": true, "whisky": true,
	"rye": true, "scotch": true, "single": true, "barrel": true,
	"malt": true, "proof": true, "full": true, "from": true, "the": true,
	"year": true, "old": true, "reserve": true, "special": true,
	"limited": true, "edition": true, "small": true, "batch": true,
	"bottled": true, "bond": true, "select": true, "cask": true,
	"strength": true, "aged": true, "distillery": true, "pot": true,
	"still": true,
}

// Match resolves a scraped listing name against the catalog. It is a pure
// function of the normalized inputs: the best score seen across every entry
// and scoring pass wins, ties broken by catalog order. Returns nil when no
// pass scores.
func Match(listingName string, entries []model.CatalogEntry) *model.CatalogEntry {
	entry, _ := MatchScore(listingName, entries)
	return entry
}

// MatchScore is Match exposing the winning score.
func MatchScore(listingName string, entries []model.CatalogEntry) (*model.CatalogEntry, int) {
	normName := Normalize(listingName)
	if normName == "" {
		return nil, 0
	}
	listingWords := wordSet(normName)
	listingNums := numericTokens(normName)

	var best *model.CatalogEntry
	bestScore := 0
	for i := range entries {
		score := scoreEntry(&entries[i], normName, listingWords, listingNums)
		if score > bestScore {
			bestScore = score
			best = &entries[i]
		}
	}
	return best, bestScore
}

func scoreEntry(entry *model.CatalogEntry, normName string, listingWords map[string]bool, listingNums map[string]bool) int {
	best := 0
	for _, term := range entry.SearchTerms {
		if s := substringScore(term, normName); s > best {
			best = s
		}
		if s := wordSetScore(term, listingWords, listingNums); s > best {
			best = s
		}
	}
	if s := nameRatioScore(entry.Name, listingWords, listingNums); s > best {
		best = s
	}
	return best
}

// substringScore: a normalized term of length >= 5 contained verbatim in the
// listing name scores its own length.
func substringScore(term, normName string) int {
	t := Normalize(term)
	if len(t) < 5 {
		return 0
	}
	if strings.Contains(normName, t) {
		return len(t)
	}
	return 0
}

// wordSetScore matches a term's words order-independently against the
// listing's word set. Requires at least two term words and one distinctive
// word. Numeric tokens in the term must all appear among the listing's
// numeric tokens; a cross-age mismatch scores zero outright.
func wordSetScore(term string, listingWords, listingNums map[string]bool) int {
	words := splitWords(Normalize(term), 2)
	if len(words) < 2 {
		return 0
	}

	distinctive := false
	score := 0
	for _, w := range words {
		if !listingWords[w] {
			return 0
		}
		if !genericWords[w] {
			distinctive = true
		}
		score += len(w)
	}
	if !distinctive {
		return 0
	}

	for _, w := range words {
		if isNumeric(w) && !listingNums[w] {
			return 0
		}
	}
	return score + 10
}

// nameRatioScore is the fallback pass against the entry's own display name.
// It tolerates extra listing words but demands that most of the name's
// significant words, and its distinctive words in particular, are present.
func nameRatioScore(entryName string, listingWords, listingNums map[string]bool) int {
	words := splitWords(Normalize(entryName), 4)
	if len(words) == 0 {
		return 0
	}

	matched := 0
	distinctiveTotal := 0
	distinctiveMatched := 0
	numsTotal := 0
	numsMatched := 0
	for _, w := range words {
		hit := listingWords[w]
		if hit {
			matched++
		}
		if !genericWords[w] {
			distinctiveTotal++
			if hit {
				distinctiveMatched++
			}
		}
		if isNumeric(w) {
			numsTotal++
			if listingNums[w] {
				numsMatched++
			}
		}
	}

	if float64(matched)/float64(len(words)) < 0.75 {
		return 0
	}
	if distinctiveMatched < 1 {
		return 0
	}
	if distinctiveTotal > 0 && float64(distinctiveMatched)/float64(distinctiveTotal) < 0.6 {
		return 0
	}

	score := 20*distinctiveMatched + 5*matched
	if numsTotal > 0 {
		switch {
		case numsMatched == numsTotal:
			score += 50
		case numsMatched == 0:
			return 0
		}
	}
	return score
}

// Normalize lowercases, strips apostrophes, maps remaining non-alphanumerics
// to spaces and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’':
			// dropped, so "blanton's" and "blantons" coincide
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// splitWords returns the words of a normalized string that are numeric or
// longer than minLen-1 runes.
func splitWords(norm string, minLen int) []string {
	var out []string
	for _, w := range strings.Fields(norm) {
		if len(w) >= minLen || isNumeric(w) {
			out = append(out, w)
		}
	}
	return out
}

func wordSet(norm string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		set[w] = true
	}
	return set
}

func numericTokens(norm string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		if isNumeric(w) {
			set[w] = true
		}
	}
	return set
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
