// Package model defines the domain types used across the application.
package model

import "time"

// CatalogEntry is a curated record of a tracked bourbon, independent of any
// live retailer listing. Entries are loaded from the embedded dataset and
// synced into storage; the scan never mutates them.
type CatalogEntry struct {
	ID            string
	Name          string
	Distillery    string
	Type          string
	Proof         float64
	Age           string
	MSRP          float64
	RarityTier    int
	AverageRating float64
	SearchTerms   []string
	Notes         string
	AnnualRelease bool
	ReleaseWindow string
}

// Rarity tiers, rarest first.
const (
	TierUnicorn         = 1
	TierHighlyAllocated = 2
	TierAllocated       = 3
	TierWorthTracking   = 4
)

// TierLabel returns the human-readable label for a rarity tier.
func TierLabel(tier int) string {
	switch tier {
	case TierUnicorn:
		return "Unicorn"
	case TierHighlyAllocated:
		return "Highly Allocated"
	case TierAllocated:
		return "Allocated"
	case TierWorthTracking:
		return "Worth Tracking"
	}
	return "Unknown"
}

// Listing is a scraped record of a product as currently offered by the
// retailer. SourceCode is the retailer SKU and is globally unique.
type Listing struct {
	ID         int64
	SourceCode string
	Name       string
	Price      *float64
	ListPrice  *float64
	Size       string
	Proof      *float64
	Category   string
	URL        string
	ImageURL   string
	InStock    bool
	OnlineOnly bool
	Limited    bool
	CatalogID  string
	FirstSeen  time.Time
	LastSeen   time.Time
}

// StoreLocation is one retail location from the store directory.
type StoreLocation struct {
	StoreNumber string
	Name        string
	Address     string
	City        string
	State       string
	Zip         string
	County      string
	Phone       string
	Hours       string
	Latitude    *float64
	Longitude   *float64
	Pickup      bool
}

// FullAddress composes the printable address for a store.
func (s StoreLocation) FullAddress() string {
	addr := s.Address
	if s.City != "" {
		addr += ", " + s.City
	}
	if s.Zip != "" {
		addr += " " + s.Zip
	}
	return addr
}

// StoreStock is the per-store result of a stock check: directory metadata
// joined with the observed quantity.
type StoreStock struct {
	StoreNumber string
	StoreName   string
	Address     string
	County      string
	Quantity    int
}

// InventorySnapshot is an append-only observation of quantity at one store
// for one listing. The current state of a (listing, store) pair is its most
// recent snapshot.
type InventorySnapshot struct {
	ID          int64
	ListingID   int64
	StoreNumber string
	StoreName   string
	Address     string
	Quantity    int
	ScannedAt   time.Time
}

// AlertRecord logs one alert sent on one channel. It is the sole input to
// cooldown decisions.
type AlertRecord struct {
	ID        int64
	CatalogID string
	ListingID *int64
	Channel   string
	Message   string
	SentAt    time.Time
}

// ScanStatus is the lifecycle state recorded in the scan log.
type ScanStatus string

// Scan log statuses.
const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanErrored   ScanStatus = "error"
)

// ScanLog is one row of scan history.
type ScanLog struct {
	ID          int64
	ScanType    string
	Status      ScanStatus
	Listings    int
	NewFinds    int
	Errors      string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewFind is a genuinely novel availability event: a matched listing seen
// with positive quantity at a store that has no positive-quantity history
// inside the novelty window.
type NewFind struct {
	Entry   CatalogEntry
	Listing Listing
	Store   StoreStock
}

// ScanPhase names the active phase of a running scan.
type ScanPhase string

// Scan phases.
const (
	PhaseSearching     ScanPhase = "searching"
	PhaseCheckingStock ScanPhase = "checking_stock"
)

// Progress is emitted to the scan observer after each processed unit.
type Progress struct {
	Phase   ScanPhase
	Current int
	Total   int
	Label   string
}

// InventoryRow is a reporting join of the latest positive-quantity snapshot
// per (listing, store) pair with its listing and catalog metadata.
type InventoryRow struct {
	ListingName string
	SourceCode  string
	Price       *float64
	URL         string
	CatalogID   string
	RarityTier  *int
	Distillery  string
	StoreNumber string
	StoreName   string
	Address     string
	Quantity    int
	ScannedAt   time.Time
}

// DashboardStats summarizes current system state for the dashboard.
type DashboardStats struct {
	TotalTracked int
	InStock      int
	AlertsToday  int
	LastScan     *ScanLog
}

// ScanResult summarizes a finished scan.
type ScanResult struct {
	ScanID   int64
	Listings int
	NewFinds int
	Finds    []NewFind
	Error    string
}
