package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"bourbonwatch/internal/catalog"
	"bourbonwatch/internal/extract"
	"bourbonwatch/internal/model"
	"bourbonwatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// searchPayload builds a modern search page carrying the given records in
// its encoded page state.
func searchPayload(t *testing.T, records ...map[string]any) []byte {
	t.Helper()
	wrapped := make([]map[string]any, len(records))
	for i, attrs := range records {
		wrapped[i] = map[string]any{"attributes": attrs}
	}
	state, err := json.Marshal(map[string]any{
		"results": map[string]any{"records": wrapped},
	})
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	return []byte(`<html><script>window.state="` + url.PathEscape(string(state)) + `";</script></html>`)
}

func record(name, code, category string, inStock bool) map[string]any {
	status := "OUTOFSTOCK"
	if inStock {
		status = "INSTOCK"
	}
	attrs := map[string]any{
		"product.displayName":        []any{name},
		"sku.repositoryId":           []any{code},
		"sku.activePrice":            []any{49.99},
		"product.availabilityStatus": []any{status},
	}
	if category != "" {
		attrs["product.category"] = []any{category}
	}
	return attrs
}

type fakeSite struct {
	mu       sync.Mutex
	payloads map[string][]byte
	legacy   map[string][]byte
	searched []string
	block    chan struct{} // closed to release a blocking Search
}

func (f *fakeSite) Search(ctx context.Context, term string) ([]byte, error) {
	f.mu.Lock()
	f.searched = append(f.searched, term)
	payload := f.payloads[term]
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if payload == nil {
		return nil, errors.New("search unavailable")
	}
	return payload, nil
}

func (f *fakeSite) LegacySearch(_ context.Context, term string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.legacy[term]; ok {
		return p, nil
	}
	return nil, errors.New("legacy unavailable")
}

func (f *fakeSite) terms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searched...)
}

type fakeStock struct {
	mu     sync.Mutex
	stocks map[string][]model.StoreStock
	codes  []string
}

func (f *fakeStock) CheckStock(_ context.Context, sourceCode string, _ []string) []model.StoreStock {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, sourceCode)
	return f.stocks[sourceCode]
}

type fakeNotifier struct {
	mu    sync.Mutex
	finds []model.NewFind
}

func (f *fakeNotifier) Route(_ context.Context, find model.NewFind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds = append(f.finds, find)
	return []string{"email"}
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Entries: []model.CatalogEntry{
			{ID: "pappy-van-winkle-15", Name: "Pappy Van Winkle 15 Year", RarityTier: 1,
				SearchTerms: []string{"pappy van winkle 15"}},
			{ID: "blantons", Name: "Blanton's Single Barrel", RarityTier: 3,
				SearchTerms: []string{"blantons"}},
		},
	}
}

func newOrchestrator(t *testing.T, store storage.Storage, site SiteSearcher,
	cat *catalog.Catalog, stock StockChecker, notifier Notifier) *Orchestrator {
	t.Helper()
	o := New(store, site, extract.New("https://example.test"), cat, stock, notifier, testLogger())
	o.SetDelays(0, 0)
	return o
}

func TestRunScanNewFind(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"blantons":            searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", true)),
		"pappy van winkle 15": searchPayload(t),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{
		"000004444": {{StoreNumber: "0510", StoreName: "Philadelphia - Chestnut St", Quantity: 2}},
	}}
	o := newOrchestrator(t, store, site, testCatalog(), stock, nil)

	result, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Listings != 1 || result.NewFinds != 1 {
		t.Fatalf("result = %+v, want 1 listing, 1 new find", result)
	}
	find := result.Finds[0]
	if find.Entry.ID != "blantons" || find.Store.StoreNumber != "0510" || find.Store.Quantity != 2 {
		t.Errorf("find = %+v", find)
	}
	if find.Listing.CatalogID != "blantons" {
		t.Errorf("listing catalog id = %q, want blantons", find.Listing.CatalogID)
	}

	history, err := store.ScanHistory(context.Background(), 5)
	if err != nil {
		t.Fatalf("scan history: %v", err)
	}
	if len(history) != 1 || history[0].Status != model.ScanCompleted || history[0].NewFinds != 1 {
		t.Errorf("history = %+v, want one completed scan with one find", history)
	}
}

func TestRunScanNoveltySuppressed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// The pair was seen in stock an hour ago; this sighting is not novel.
	listing := &model.Listing{SourceCode: "000004444", Name: "Blanton's Single Barrel"}
	id, err := store.UpsertListing(ctx, listing)
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	err = store.InsertSnapshot(ctx, &model.InventorySnapshot{
		ListingID: id, StoreNumber: "0510", Quantity: 3,
		ScannedAt: time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	site := &fakeSite{payloads: map[string][]byte{
		"blantons":            searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", true)),
		"pappy van winkle 15": searchPayload(t),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{
		"000004444": {{StoreNumber: "0510", Quantity: 2}, {StoreNumber: "5902", Quantity: 1}},
	}}
	o := newOrchestrator(t, store, site, testCatalog(), stock, nil)

	result, err := o.RunScan(ctx, "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	// Store 0510 is suppressed, store 5902 is a fresh find.
	if result.NewFinds != 1 {
		t.Fatalf("new finds = %d, want 1", result.NewFinds)
	}
	if result.Finds[0].Store.StoreNumber != "5902" {
		t.Errorf("find store = %s, want 5902", result.Finds[0].Store.StoreNumber)
	}
}

func TestRunScanOnlineExclusiveFallback(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"blantons":            searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", true)),
		"pappy van winkle 15": searchPayload(t),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{}}
	o := newOrchestrator(t, store, site, testCatalog(), stock, nil)

	result, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.NewFinds != 1 {
		t.Fatalf("new finds = %d, want 1", result.NewFinds)
	}
	st := result.Finds[0].Store
	if st.StoreNumber != "online" || st.StoreName != "Online Exclusive" || st.Quantity != 1 {
		t.Errorf("fallback store = %+v", st)
	}
}

func TestRunScanCategoryFilter(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"blantons": searchPayload(t,
			record("Blanton's Single Barrel", "000004444", "Wine", true),
			record("Blanton's Single Barrel Gift Set", "000004445", "", true),
		),
		"pappy van winkle 15": searchPayload(t),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{}}
	o := newOrchestrator(t, store, site, testCatalog(), stock, nil)

	result, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	// The wine-categorized listing is dropped; the uncategorized one is kept.
	if result.Listings != 1 {
		t.Errorf("listings = %d, want 1", result.Listings)
	}
	if len(stock.codes) != 1 || stock.codes[0] != "000004445" {
		t.Errorf("stock checked %v, want [000004445]", stock.codes)
	}
}

func TestRunScanDeduplicatesCodes(t *testing.T) {
	store := newTestStore(t)
	payload := searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", false))
	cat := &catalog.Catalog{Entries: []model.CatalogEntry{
		{ID: "blantons", Name: "Blanton's Single Barrel", RarityTier: 3,
			SearchTerms: []string{"blantons", "BLANTONS", "blantons single barrel"}},
	}}
	site := &fakeSite{payloads: map[string][]byte{
		"blantons":               payload,
		"blantons single barrel": payload,
	}}
	o := newOrchestrator(t, store, site, cat, &fakeStock{}, nil)

	result, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	// Case-insensitive term dedupe: two searches, not three.
	if terms := site.terms(); len(terms) != 2 {
		t.Errorf("searched %v, want 2 distinct terms", terms)
	}
	// The same source code from both searches counts once.
	if result.Listings != 1 {
		t.Errorf("listings = %d, want 1", result.Listings)
	}
}

func TestRunScanTierBound(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"pappy van winkle 15": searchPayload(t),
		"blantons":            searchPayload(t),
	}}
	o := newOrchestrator(t, store, site, testCatalog(), &fakeStock{}, nil)

	_, err := o.RunScan(context.Background(), "quick_scan_tier_2", model.TierHighlyAllocated)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	terms := site.terms()
	if len(terms) != 1 || terms[0] != "pappy van winkle 15" {
		t.Errorf("searched %v, want only the tier 1 term", terms)
	}
}

func TestRunScanLegacyFallback(t *testing.T) {
	store := newTestStore(t)
	legacy := []byte(`<table>
		<tr><td><a href="psi_ProductInventory_Inter.asp?cdeNo=004444">BLANTONS SINGLE BARREL</a></td>
		<td>004444</td><td>750 ML</td><td>$74.99</td></tr>
	</table>`)
	site := &fakeSite{
		payloads: map[string][]byte{"pappy van winkle 15": searchPayload(t)},
		legacy:   map[string][]byte{"blantons": legacy},
	}
	o := newOrchestrator(t, store, site, testCatalog(), &fakeStock{}, nil)

	result, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Listings != 1 {
		t.Errorf("listings = %d, want 1 from the legacy fallback", result.Listings)
	}
}

func TestStartScanExclusive(t *testing.T) {
	store := newTestStore(t)
	block := make(chan struct{})
	site := &fakeSite{
		payloads: map[string][]byte{
			"pappy van winkle 15": searchPayload(t),
			"blantons":            searchPayload(t),
		},
		block: block,
	}
	o := newOrchestrator(t, store, site, testCatalog(), &fakeStock{}, nil)

	if err := o.StartFullScan(); err != nil {
		t.Fatalf("StartFullScan: %v", err)
	}
	if err := o.StartFullScan(); !errors.Is(err, ErrScanRunning) {
		t.Errorf("concurrent start = %v, want ErrScanRunning", err)
	}
	if err := o.StartQuickScan(2); !errors.Is(err, ErrScanRunning) {
		t.Errorf("concurrent quick start = %v, want ErrScanRunning", err)
	}
	if _, err := o.RunScan(context.Background(), "full_scan", 4); !errors.Is(err, ErrScanRunning) {
		t.Errorf("concurrent RunScan = %v, want ErrScanRunning", err)
	}
	if running, _ := o.Status(); !running {
		t.Error("Status reports not running during an active scan")
	}

	close(block)
	deadline := time.After(5 * time.Second)
	for {
		if running, _ := o.Status(); !running {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scan never released the running flag")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The slot frees up for the next scan.
	if err := o.StartFullScan(); err != nil {
		t.Errorf("restart after completion = %v", err)
	}
	for {
		if running, _ := o.Status(); !running {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second scan never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestProgressObserver(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"blantons":            searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", true)),
		"pappy van winkle 15": searchPayload(t),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{
		"000004444": {{StoreNumber: "0510", Quantity: 1}},
	}}
	o := newOrchestrator(t, store, site, testCatalog(), stock, nil)

	var mu sync.Mutex
	var events []model.Progress
	o.SetObserver(func(p model.Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})

	if _, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking); err != nil {
		t.Fatalf("RunScan: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var searching, checking int
	for _, e := range events {
		switch e.Phase {
		case model.PhaseSearching:
			searching++
		case model.PhaseCheckingStock:
			checking++
		}
	}
	if searching != 2 || checking != 1 {
		t.Errorf("events: %d searching, %d checking, want 2 and 1", searching, checking)
	}
}

func TestPanickingObserverDoesNotAbort(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"pappy van winkle 15": searchPayload(t),
		"blantons":            searchPayload(t),
	}}
	o := newOrchestrator(t, store, site, testCatalog(), &fakeStock{}, nil)
	o.SetObserver(func(model.Progress) { panic("bad observer") })

	result, err := o.RunScan(context.Background(), "full_scan", model.TierWorthTracking)
	if err != nil {
		t.Fatalf("RunScan aborted by observer panic: %v", err)
	}
	if result == nil {
		t.Fatal("no result")
	}
}

func TestSearchOnceNoSideEffects(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"blantons": searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", true)),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{}}
	notifier := &fakeNotifier{}
	o := newOrchestrator(t, store, site, testCatalog(), stock, notifier)

	listings, err := o.SearchOnce(context.Background(), "blantons")
	if err != nil {
		t.Fatalf("SearchOnce: %v", err)
	}
	if len(listings) != 1 || listings[0].CatalogID != "blantons" {
		t.Fatalf("listings = %+v, want one matched listing", listings)
	}

	// No scan log, no stock checks, no alerts.
	history, err := store.ScanHistory(context.Background(), 5)
	if err != nil {
		t.Fatalf("scan history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("manual search wrote %d scan log rows", len(history))
	}
	if len(stock.codes) != 0 {
		t.Errorf("manual search checked stock for %v", stock.codes)
	}
	if len(notifier.finds) != 0 {
		t.Errorf("manual search routed %d alerts", len(notifier.finds))
	}
}

func TestDispatchRoutesFinds(t *testing.T) {
	store := newTestStore(t)
	site := &fakeSite{payloads: map[string][]byte{
		"blantons":            searchPayload(t, record("Blanton's Single Barrel", "000004444", "Bourbon", true)),
		"pappy van winkle 15": searchPayload(t),
	}}
	stock := &fakeStock{stocks: map[string][]model.StoreStock{
		"000004444": {{StoreNumber: "0510", Quantity: 2}},
	}}
	notifier := &fakeNotifier{}
	o := newOrchestrator(t, store, site, testCatalog(), stock, notifier)

	if err := o.StartFullScan(); err != nil {
		t.Fatalf("StartFullScan: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		notifier.mu.Lock()
		n := len(notifier.finds)
		notifier.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no alert routed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.finds[0].Entry.ID != "blantons" {
		t.Errorf("routed entry = %s, want blantons", notifier.finds[0].Entry.ID)
	}
}
