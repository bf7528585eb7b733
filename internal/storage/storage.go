// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"bourbonwatch/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertCatalogEntry(ctx context.Context, entry *model.CatalogEntry) error

	// UpsertListing inserts or refreshes a listing keyed by source code and
	// returns its stable row ID. LastSeen is bumped on every sighting.
	UpsertListing(ctx context.Context, listing *model.Listing) (int64, error)

	InsertSnapshot(ctx context.Context, snap *model.InventorySnapshot) error

	// HasRecentSnapshot reports whether a positive-quantity snapshot exists
	// for the (source code, store number) pair inside the window.
	HasRecentSnapshot(ctx context.Context, sourceCode, storeNumber string, window time.Duration) (bool, error)

	StartScan(ctx context.Context, scanType string) (int64, error)
	CompleteScan(ctx context.Context, scanID int64, listings, newFinds int) error
	FailScan(ctx context.Context, scanID int64, errMsg string) error
	ScanHistory(ctx context.Context, limit int) ([]model.ScanLog, error)

	// HasRecentAlert reports whether an alert was sent for the
	// (catalog entry, channel) pair inside the cooldown window.
	HasRecentAlert(ctx context.Context, catalogID, channel string, window time.Duration) (bool, error)
	InsertAlertRecord(ctx context.Context, rec *model.AlertRecord) error

	// LatestSnapshots returns the current positive-quantity inventory view,
	// optionally filtered to one catalog entry (empty catalogID = all).
	LatestSnapshots(ctx context.Context, catalogID string) ([]model.InventoryRow, error)

	DashboardStats(ctx context.Context) (*model.DashboardStats, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
