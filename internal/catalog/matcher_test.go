package catalog

import (
	"testing"

	"bourbonwatch/internal/model"
)

func testEntries() []model.CatalogEntry {
	return []model.CatalogEntry{
		{
			ID: "pappy-van-winkle-23", Name: "Pappy Van Winkle 23 Year", RarityTier: 1,
			SearchTerms: []string{"pappy van winkle 23", "pappy 23"},
		},
		{
			ID: "pappy-van-winkle-15", Name: "Pappy Van Winkle 15 Year", RarityTier: 1,
			SearchTerms: []string{"pappy van winkle 15", "pappy 15"},
		},
		{
			ID: "weller-12", Name: "W.L. Weller 12 Year", RarityTier: 2,
			SearchTerms: []string{"weller 12"},
		},
		{
			ID: "eh-taylor-barrel-proof", Name: "E.H. Taylor Barrel Proof", RarityTier: 2,
			SearchTerms: []string{"e h taylor barrel proof", "taylor barrel proof"},
		},
		{
			ID: "buffalo-trace", Name: "Buffalo Trace", RarityTier: 4,
			SearchTerms: []string{"buffalo trace"},
		},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Blanton's Single Barrel!", "blantons single barrel"},
		{"E.H. Taylor, Jr.", "e h taylor jr"},
		{"Maker’s Mark", "makers mark"},
		{"  W.L.   WELLER  12 ", "w l weller 12"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstringScore(t *testing.T) {
	tests := []struct {
		term, listing string
		want          int
	}{
		{"pappy van winkle", "pappy van winkle 15 year family reserve", 16},
		{"weller 12", "weller 12 year bourbon", 9},
		{"weller 12", "weller special reserve", 0},
		{"oak", "oak aged bourbon", 0}, // below minimum length
		{"Pappy Van Winkle", "pappy van winkle 23 year", 16},
	}
	for _, tt := range tests {
		if got := substringScore(tt.term, tt.listing); got != tt.want {
			t.Errorf("substringScore(%q, %q) = %d, want %d", tt.term, tt.listing, got, tt.want)
		}
	}
}

func TestWordSetScore(t *testing.T) {
	tests := []struct {
		term, listing string
		want          int
	}{
		// len("weller")+len("12")+10
		{"weller 12", "Weller 12 Year Bourbon", 18},
		// numeric token absent from the listing
		{"weller 12", "Weller 15 Year", 0},
		// order-independent
		{"taylor barrel proof", "Colonel E H Taylor Jr Straight Bourbon Barrel Proof", 27},
		// all words generic
		{"small batch", "Elijah Craig Small Batch", 0},
		// single word never qualifies
		{"pappy", "Pappy Van Winkle 15 Year", 0},
		{"buffalo trace", "Buffalo Trace Bourbon", 22},
	}
	for _, tt := range tests {
		norm := Normalize(tt.listing)
		got := wordSetScore(tt.term, wordSet(norm), numericTokens(norm))
		if got != tt.want {
			t.Errorf("wordSetScore(%q, %q) = %d, want %d", tt.term, tt.listing, got, tt.want)
		}
	}
}

func TestNameRatioScore(t *testing.T) {
	tests := []struct {
		name, listing string
		want          int
	}{
		// 3 distinctive + 4 matched + numeric bonus
		{"Pappy Van Winkle 15 Year", "Pappy Van Winkle 15 Year Family Reserve", 130},
		// age mismatch zeroes the pass
		{"Pappy Van Winkle 23 Year", "Pappy Van Winkle 15 Year Family Reserve", 0},
		// extra listing words tolerated
		{"E.H. Taylor Barrel Proof", "Colonel E H Taylor Jr Straight Bourbon Barrel Proof", 35},
		{"Buffalo Trace", "Makers Mark", 0},
	}
	for _, tt := range tests {
		norm := Normalize(tt.listing)
		got := nameRatioScore(tt.name, wordSet(norm), numericTokens(norm))
		if got != tt.want {
			t.Errorf("nameRatioScore(%q, %q) = %d, want %d", tt.name, tt.listing, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	entries := testEntries()

	tests := []struct {
		listing string
		wantID  string
	}{
		{"Pappy Van Winkle 15 Year Family Reserve", "pappy-van-winkle-15"},
		{"Pappy Van Winkle's Family Reserve 23 Year", "pappy-van-winkle-23"},
		{"W.L. Weller 12 Year Bourbon", "weller-12"},
		{"Colonel E H Taylor Jr Straight Bourbon Barrel Proof", "eh-taylor-barrel-proof"},
		{"Buffalo Trace Kentucky Straight Bourbon", "buffalo-trace"},
		{"Tito's Handmade Vodka", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.listing, func(t *testing.T) {
			got := Match(tt.listing, entries)
			switch {
			case tt.wantID == "" && got != nil:
				t.Errorf("Match(%q) = %s, want no match", tt.listing, got.ID)
			case tt.wantID != "" && got == nil:
				t.Errorf("Match(%q) = nil, want %s", tt.listing, tt.wantID)
			case tt.wantID != "" && got.ID != tt.wantID:
				t.Errorf("Match(%q) = %s, want %s", tt.listing, got.ID, tt.wantID)
			}
		})
	}
}

func TestMatchAgeMismatchRejected(t *testing.T) {
	entries := []model.CatalogEntry{
		{ID: "weller-12", Name: "W.L. Weller 12 Year", SearchTerms: []string{"weller 12"}},
	}
	if got := Match("Weller 15 Year Reserve", entries); got != nil {
		t.Errorf("cross-age listing matched %s, want nil", got.ID)
	}
}

func TestMatchGenericOnlyRejected(t *testing.T) {
	entries := []model.CatalogEntry{
		{ID: "barrel-proof", Name: "Barrel Proof", SearchTerms: []string{"barrel proof"}},
	}
	if got := Match("Proof of the Barrel", entries); got != nil {
		t.Errorf("generic-only overlap matched %s, want nil", got.ID)
	}
}

func TestMatchTieBreakByOrder(t *testing.T) {
	entries := []model.CatalogEntry{
		{ID: "first", Name: "Buffalo Trace", SearchTerms: []string{"buffalo trace"}},
		{ID: "second", Name: "Buffalo Trace", SearchTerms: []string{"buffalo trace"}},
	}
	got := Match("Buffalo Trace Bourbon", entries)
	if got == nil || got.ID != "first" {
		t.Fatalf("tie broke to %+v, want first entry", got)
	}
}

func TestMatchScoreDeterministic(t *testing.T) {
	entries := testEntries()
	e1, s1 := MatchScore("Pappy Van Winkle 15 Year Family Reserve", entries)
	e2, s2 := MatchScore("Pappy Van Winkle 15 Year Family Reserve", entries)
	if e1 == nil || e2 == nil || e1.ID != e2.ID || s1 != s2 {
		t.Fatalf("repeated match differs: (%v, %d) vs (%v, %d)", e1, s1, e2, s2)
	}
	if s1 <= 0 {
		t.Errorf("score = %d, want positive", s1)
	}
}
