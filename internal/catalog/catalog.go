// Package catalog holds the curated knowledge base of tracked bourbons and
// the matcher that resolves scraped listing names against it.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"

	"bourbonwatch/internal/model"
)

//go:embed data/allocated.json
var dataFS embed.FS

// Catalog is the loaded curated dataset. Entries keep file order, which also
// fixes matcher tie-breaking.
type Catalog struct {
	Entries     []model.CatalogEntry
	Version     string
	LastUpdated string
}

// SearchTerm pairs one search term with the entry it belongs to.
type SearchTerm struct {
	CatalogID string
	Term      string
	Tier      int
	Name      string
}

type rawEntry struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Distillery    string   `json:"distillery"`
	Type          string   `json:"type"`
	Proof         float64  `json:"proof"`
	Age           string   `json:"age"`
	MSRP          float64  `json:"msrp"`
	RarityTier    int      `json:"rarity_tier"`
	AverageRating float64  `json:"average_rating"`
	SearchTerms   []string `json:"search_terms"`
	Notes         string   `json:"notes"`
	AnnualRelease bool     `json:"annual_release"`
	ReleaseWindow string   `json:"release_window"`
}

type rawDataset struct {
	Metadata struct {
		Version     string `json:"version"`
		LastUpdated string `json:"last_updated"`
	} `json:"metadata"`
	Bourbons []rawEntry `json:"bourbons"`
}

// Load parses the embedded curated dataset.
func Load() (*Catalog, error) {
	raw, err := dataFS.ReadFile("data/allocated.json")
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var dataset rawDataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	c := &Catalog{
		Version:     dataset.Metadata.Version,
		LastUpdated: dataset.Metadata.LastUpdated,
	}
	for _, e := range dataset.Bourbons {
		entryType := e.Type
		if entryType == "" {
			entryType = "bourbon"
		}
		tier := e.RarityTier
		if tier == 0 {
			tier = model.TierWorthTracking
		}
		c.Entries = append(c.Entries, model.CatalogEntry{
			ID:            e.ID,
			Name:          e.Name,
			Distillery:    e.Distillery,
			Type:          entryType,
			Proof:         e.Proof,
			Age:           e.Age,
			MSRP:          e.MSRP,
			RarityTier:    tier,
			AverageRating: e.AverageRating,
			SearchTerms:   e.SearchTerms,
			Notes:         e.Notes,
			AnnualRelease: e.AnnualRelease,
			ReleaseWindow: e.ReleaseWindow,
		})
	}
	return c, nil
}

// EntrySyncer is the storage capability SyncTo needs.
type EntrySyncer interface {
	UpsertCatalogEntry(ctx context.Context, entry *model.CatalogEntry) error
}

// SyncTo upserts every catalog entry into storage and returns the count.
func (c *Catalog) SyncTo(ctx context.Context, store EntrySyncer) (int, error) {
	for i := range c.Entries {
		if err := store.UpsertCatalogEntry(ctx, &c.Entries[i]); err != nil {
			return i, fmt.Errorf("sync %s: %w", c.Entries[i].ID, err)
		}
	}
	return len(c.Entries), nil
}

// TermsByTier returns every search term of entries at or below maxTier
// (numerically: tier <= maxTier means rarer or equal), sorted rarest first.
// Sort is stable so file order is preserved within a tier.
func (c *Catalog) TermsByTier(maxTier int) []SearchTerm {
	var terms []SearchTerm
	for _, e := range c.Entries {
		if e.RarityTier > maxTier {
			continue
		}
		for _, t := range e.SearchTerms {
			terms = append(terms, SearchTerm{
				CatalogID: e.ID,
				Term:      t,
				Tier:      e.RarityTier,
				Name:      e.Name,
			})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Tier < terms[j].Tier })
	return terms
}

// ByTier returns all entries of exactly the given tier.
func (c *Catalog) ByTier(tier int) []model.CatalogEntry {
	var out []model.CatalogEntry
	for _, e := range c.Entries {
		if e.RarityTier == tier {
			out = append(out, e)
		}
	}
	return out
}

// ByID returns the entry with the given ID, or nil.
func (c *Catalog) ByID(id string) *model.CatalogEntry {
	for i := range c.Entries {
		if c.Entries[i].ID == id {
			return &c.Entries[i]
		}
	}
	return nil
}

// Stats summarizes the dataset for the dashboard.
type Stats struct {
	Total       int
	Tiers       map[int]int
	Version     string
	LastUpdated string
}

// KnowledgeStats returns per-tier entry counts and dataset metadata.
func (c *Catalog) KnowledgeStats() Stats {
	stats := Stats{
		Total:       len(c.Entries),
		Tiers:       make(map[int]int),
		Version:     c.Version,
		LastUpdated: c.LastUpdated,
	}
	for _, e := range c.Entries {
		stats.Tiers[e.RarityTier]++
	}
	return stats
}
