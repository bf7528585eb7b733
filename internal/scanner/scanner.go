// Package scanner drives the scan pipeline: term search, listing
// extraction, catalog matching, stock resolution, novelty detection and
// alert dispatch. At most one scan runs per process at a time.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bourbonwatch/internal/catalog"
	"bourbonwatch/internal/extract"
	"bourbonwatch/internal/model"
	"bourbonwatch/internal/storage"
)

// ErrScanRunning is returned when a scan start is rejected because one is
// already in progress. The active scan is left untouched.
var ErrScanRunning = errors.New("scan already in progress")

// noveltyWindow is the rolling window for new-find detection: a positive
// sighting is novel only if the (listing, store) pair has no positive
// snapshot inside it.
const noveltyWindow = 24 * time.Hour

// allowedCategories is the whiskey category set kept during a scan.
// Listings with a category outside it are dropped; an absent category keeps
// the listing.
var allowedCategories = map[string]bool{
	"bourbon":           true,
	"whiskey":           true,
	"whisky":            true,
	"american whiskey":  true,
	"rye":               true,
	"rye whiskey":       true,
	"tennessee whiskey": true,
	"single malt":       true,
}

// SiteSearcher performs the two search calls against the retailer site.
type SiteSearcher interface {
	Search(ctx context.Context, term string) ([]byte, error)
	LegacySearch(ctx context.Context, term string) ([]byte, error)
}

// StockChecker resolves per-store stock for one product code.
type StockChecker interface {
	CheckStock(ctx context.Context, sourceCode string, candidates []string) []model.StoreStock
}

// Notifier routes one new find to its alert channels.
type Notifier interface {
	Route(ctx context.Context, find model.NewFind) []string
}

// Observer receives progress events during a scan. It must return promptly;
// a panicking observer is contained and never aborts the scan.
type Observer func(model.Progress)

// Orchestrator owns the scan state machine and the single-slot last-result
// cell polled by the status query.
type Orchestrator struct {
	store     storage.Storage
	site      SiteSearcher
	extractor *extract.Extractor
	cat       *catalog.Catalog
	stock     StockChecker
	notifier  Notifier
	observer  Observer
	log       *slog.Logger

	termDelay time.Duration
	itemDelay time.Duration

	mu         sync.Mutex
	running    bool
	lastResult *model.ScanResult
}

// New creates an Orchestrator. notifier and observer may be nil.
func New(store storage.Storage, site SiteSearcher, extractor *extract.Extractor,
	cat *catalog.Catalog, stock StockChecker, notifier Notifier, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		site:      site,
		extractor: extractor,
		cat:       cat,
		stock:     stock,
		notifier:  notifier,
		log:       log,
		termDelay: 2500 * time.Millisecond,
		itemDelay: 1250 * time.Millisecond,
	}
}

// SetDelays overrides the politeness delays between terms and stock items.
func (o *Orchestrator) SetDelays(term, item time.Duration) {
	o.termDelay = term
	o.itemDelay = item
}

// SetObserver installs the progress observer.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// StartFullScan launches a full scan (all tiers) in the background. Returns
// ErrScanRunning without side effects when a scan is already active.
func (o *Orchestrator) StartFullScan() error {
	return o.startAsync("full_scan", model.TierWorthTracking)
}

// StartQuickScan launches a scan restricted to tiers <= maxTier in the
// background. maxTier 0 defaults to the highly-allocated bound.
func (o *Orchestrator) StartQuickScan(maxTier int) error {
	if maxTier <= 0 {
		maxTier = model.TierHighlyAllocated
	}
	return o.startAsync(fmt.Sprintf("quick_scan_tier_%d", maxTier), maxTier)
}

// Status reports whether a scan is running and the last finished result.
func (o *Orchestrator) Status() (bool, *model.ScanResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running, o.lastResult
}

func (o *Orchestrator) startAsync(scanType string, maxTier int) error {
	if err := o.acquire(); err != nil {
		return err
	}

	go func() {
		defer o.release()
		result, err := o.run(context.Background(), scanType, maxTier)
		if err != nil {
			o.log.Error("scan failed", "type", scanType, "error", err)
			result = &model.ScanResult{Error: err.Error()}
		}
		o.mu.Lock()
		o.lastResult = result
		o.mu.Unlock()

		o.dispatch(context.Background(), result)
	}()
	return nil
}

// RunScan runs a scan synchronously under the same exclusivity flag. Used
// by callers that want the result inline; the flag is released on every
// exit path.
func (o *Orchestrator) RunScan(ctx context.Context, scanType string, maxTier int) (*model.ScanResult, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	result, err := o.run(ctx, scanType, maxTier)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.lastResult = result
	o.mu.Unlock()
	return result, nil
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrScanRunning
	}
	o.running = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

type stockItem struct {
	listing model.Listing
	entry   model.CatalogEntry
}

// run executes one scan end to end. Storage failures are scan-fatal: the
// scan log is marked errored and the error propagates. Per-term network and
// parse failures are absorbed as empty results.
func (o *Orchestrator) run(ctx context.Context, scanType string, maxTier int) (*model.ScanResult, error) {
	scanID, err := o.store.StartScan(ctx, scanType)
	if err != nil {
		return nil, fmt.Errorf("start scan log: %w", err)
	}

	result, err := o.runPhases(ctx, scanID, maxTier)
	if err != nil {
		if ferr := o.store.FailScan(ctx, scanID, err.Error()); ferr != nil {
			o.log.Error("mark scan errored", "scan_id", scanID, "error", ferr)
		}
		return nil, err
	}

	if err := o.store.CompleteScan(ctx, scanID, result.Listings, result.NewFinds); err != nil {
		return nil, fmt.Errorf("complete scan log: %w", err)
	}
	o.log.Info("scan complete", "scan_id", scanID,
		"listings", result.Listings, "new_finds", result.NewFinds)
	return result, nil
}

func (o *Orchestrator) runPhases(ctx context.Context, scanID int64, maxTier int) (*model.ScanResult, error) {
	result := &model.ScanResult{ScanID: scanID}
	terms := dedupeTerms(o.cat.TermsByTier(maxTier))

	// Searching phase. Sequential on purpose: the source site gets one
	// request at a time with a delay in between.
	seenCodes := make(map[string]bool)
	var queue []stockItem
	for i, term := range terms {
		listings := o.searchTerm(ctx, term.Term)
		o.log.Info("searched term", "term", term.Term, "listings", len(listings))

		for _, listing := range listings {
			if listing.SourceCode == "" || seenCodes[strings.ToLower(listing.SourceCode)] {
				continue
			}
			seenCodes[strings.ToLower(listing.SourceCode)] = true

			if listing.Category != "" && !allowedCategories[strings.ToLower(listing.Category)] {
				continue
			}

			entry := catalog.Match(listing.Name, o.cat.Entries)
			if entry != nil {
				listing.CatalogID = entry.ID
			}

			if _, err := o.store.UpsertListing(ctx, &listing); err != nil {
				return nil, fmt.Errorf("persist listing %s: %w", listing.SourceCode, err)
			}
			result.Listings++

			if entry != nil && listing.InStock {
				queue = append(queue, stockItem{listing: listing, entry: *entry})
			}
		}

		o.emit(model.Progress{Phase: model.PhaseSearching, Current: i + 1, Total: len(terms), Label: term.Term})
		o.pause(ctx, o.termDelay)
	}

	// CheckingStock phase.
	for j, item := range queue {
		stocks := o.stock.CheckStock(ctx, item.listing.SourceCode, nil)
		if len(stocks) == 0 {
			// Flagged in stock but carried by no store: online-exclusive
			// allocation.
			stocks = []model.StoreStock{{
				StoreNumber: "online",
				StoreName:   "Online Exclusive",
				Quantity:    1,
			}}
		}

		for _, st := range stocks {
			hasRecent, err := o.store.HasRecentSnapshot(ctx, item.listing.SourceCode, st.StoreNumber, noveltyWindow)
			if err != nil {
				return nil, fmt.Errorf("novelty check %s: %w", item.listing.SourceCode, err)
			}

			snap := model.InventorySnapshot{
				ListingID:   item.listing.ID,
				StoreNumber: st.StoreNumber,
				StoreName:   st.StoreName,
				Address:     st.Address,
				Quantity:    st.Quantity,
			}
			if err := o.store.InsertSnapshot(ctx, &snap); err != nil {
				return nil, fmt.Errorf("persist snapshot %s@%s: %w", item.listing.SourceCode, st.StoreNumber, err)
			}

			if !hasRecent && st.Quantity > 0 {
				result.NewFinds++
				result.Finds = append(result.Finds, model.NewFind{
					Entry:   item.entry,
					Listing: item.listing,
					Store:   st,
				})
			}
		}

		o.emit(model.Progress{Phase: model.PhaseCheckingStock, Current: j + 1, Total: len(queue), Label: item.listing.Name})
		o.pause(ctx, o.itemDelay)
	}

	return result, nil
}

// searchTerm fetches and extracts listings for one term: modern site first,
// legacy search when that yields nothing. Network failures degrade to an
// empty result.
func (o *Orchestrator) searchTerm(ctx context.Context, term string) []model.Listing {
	var listings []model.Listing

	payload, err := o.site.Search(ctx, term)
	if err != nil {
		o.log.Warn("search failed", "term", term, "error", err)
	} else {
		listings = o.extractor.Listings(payload)
	}

	if len(listings) == 0 {
		payload, err := o.site.LegacySearch(ctx, term)
		if err != nil {
			o.log.Warn("legacy search failed", "term", term, "error", err)
			return listings
		}
		listings = o.extractor.Listings(payload)
	}
	return listings
}

// SearchOnce runs a single manual search: listings are matched and
// persisted through the normal upsert path, with no stock checks and no
// alerting side effects.
func (o *Orchestrator) SearchOnce(ctx context.Context, term string) ([]model.Listing, error) {
	listings := o.searchTerm(ctx, term)
	for i := range listings {
		if entry := catalog.Match(listings[i].Name, o.cat.Entries); entry != nil {
			listings[i].CatalogID = entry.ID
		}
		if listings[i].SourceCode == "" {
			continue
		}
		if _, err := o.store.UpsertListing(ctx, &listings[i]); err != nil {
			return nil, fmt.Errorf("persist listing %s: %w", listings[i].SourceCode, err)
		}
	}
	return listings, nil
}

// dispatch routes every new find of a finished scan to the alert channels.
func (o *Orchestrator) dispatch(ctx context.Context, result *model.ScanResult) {
	if o.notifier == nil || result == nil {
		return
	}
	for _, find := range result.Finds {
		sent := o.notifier.Route(ctx, find)
		if len(sent) > 0 {
			o.log.Info("alerts sent", "entry", find.Entry.ID, "channels", strings.Join(sent, ","))
		}
	}
}

// emit delivers a progress event without ever aborting the scan.
func (o *Orchestrator) emit(p model.Progress) {
	if o.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("progress observer panicked", "recovered", r)
		}
	}()
	o.observer(p)
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// dedupeTerms removes case-insensitive duplicates, keeping first-seen order.
func dedupeTerms(terms []catalog.SearchTerm) []catalog.SearchTerm {
	seen := make(map[string]bool, len(terms))
	var out []catalog.SearchTerm
	for _, t := range terms {
		key := strings.ToLower(t.Term)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
