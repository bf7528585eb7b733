package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"bourbonwatch/internal/model"
	"bourbonwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertCatalogEntry inserts or refreshes a curated catalog entry.
func (s *SQLite) UpsertCatalogEntry(ctx context.Context, entry *model.CatalogEntry) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_entries (id, name, distillery, type, proof, age, msrp,
		                              rarity_tier, average_rating, search_terms, notes,
		                              annual_release, release_window, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name=excluded.name, distillery=excluded.distillery, type=excluded.type,
		     proof=excluded.proof, age=excluded.age, msrp=excluded.msrp,
		     rarity_tier=excluded.rarity_tier, average_rating=excluded.average_rating,
		     search_terms=excluded.search_terms, notes=excluded.notes,
		     annual_release=excluded.annual_release, release_window=excluded.release_window,
		     updated_at=excluded.updated_at`,
		entry.ID, entry.Name, entry.Distillery, entry.Type, entry.Proof, entry.Age,
		entry.MSRP, entry.RarityTier, entry.AverageRating,
		strings.Join(entry.SearchTerms, ","), entry.Notes,
		boolToInt(entry.AnnualRelease), entry.ReleaseWindow, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	return nil
}

// UpsertListing inserts or refreshes a listing keyed by source code and
// returns its stable row ID.
func (s *SQLite) UpsertListing(ctx context.Context, listing *model.Listing) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	var catalogID *string
	if listing.CatalogID != "" {
		catalogID = &listing.CatalogID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (source_code, name, price, list_price, size, proof, category,
		                       url, image_url, in_stock, online_only, limited_release,
		                       catalog_id, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_code) DO UPDATE SET
		     name=excluded.name, price=excluded.price, list_price=excluded.list_price,
		     size=excluded.size, proof=excluded.proof, category=excluded.category,
		     url=excluded.url, image_url=excluded.image_url, in_stock=excluded.in_stock,
		     online_only=excluded.online_only, limited_release=excluded.limited_release,
		     catalog_id=COALESCE(excluded.catalog_id, listings.catalog_id),
		     last_seen=excluded.last_seen`,
		listing.SourceCode, listing.Name, listing.Price, listing.ListPrice, listing.Size,
		listing.Proof, listing.Category, listing.URL, listing.ImageURL,
		boolToInt(listing.InStock), boolToInt(listing.OnlineOnly), boolToInt(listing.Limited),
		catalogID, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert listing: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM listings WHERE source_code = ?`, listing.SourceCode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("listing id: %w", err)
	}
	listing.ID = id
	return id, nil
}

// InsertSnapshot appends an inventory observation. A zero ScannedAt is
// stamped with the current time.
func (s *SQLite) InsertSnapshot(ctx context.Context, snap *model.InventorySnapshot) error {
	at := snap.ScannedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory_snapshots (listing_id, store_number, store_name, store_address, quantity, scanned_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ListingID, snap.StoreNumber, snap.StoreName, snap.Address, snap.Quantity,
		at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// HasRecentSnapshot reports whether a positive-quantity snapshot exists for
// the (source code, store number) pair inside the window.
func (s *SQLite) HasRecentSnapshot(ctx context.Context, sourceCode, storeNumber string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window).Format(timeLayout)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_snapshots inv
		 JOIN listings l ON inv.listing_id = l.id
		 WHERE l.source_code = ? AND inv.store_number = ?
		   AND inv.quantity > 0 AND inv.scanned_at > ?`,
		sourceCode, storeNumber, cutoff,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check recent snapshot: %w", err)
	}
	return count > 0, nil
}

// StartScan inserts a running scan-log row and returns its ID.
func (s *SQLite) StartScan(ctx context.Context, scanType string) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_log (scan_type, status, started_at) VALUES (?, ?, ?)`,
		scanType, string(model.ScanRunning), now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// CompleteScan marks a scan-log row completed with its totals.
func (s *SQLite) CompleteScan(ctx context.Context, scanID int64, listings, newFinds int) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE scan_log SET status=?, listings_found=?, new_finds=?, completed_at=? WHERE id=?`,
		string(model.ScanCompleted), listings, newFinds, now, scanID,
	)
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	return nil
}

// FailScan marks a scan-log row errored with a message.
func (s *SQLite) FailScan(ctx context.Context, scanID int64, errMsg string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE scan_log SET status=?, errors=?, completed_at=? WHERE id=?`,
		string(model.ScanErrored), errMsg, now, scanID,
	)
	if err != nil {
		return fmt.Errorf("fail scan: %w", err)
	}
	return nil
}

// ScanHistory returns the most recent scan-log rows, newest first.
func (s *SQLite) ScanHistory(ctx context.Context, limit int) ([]model.ScanLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scan_type, status, listings_found, new_finds, errors, started_at, completed_at
		 FROM scan_log ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.ScanLog
	for rows.Next() {
		entry, err := scanScanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *entry)
	}
	return logs, rows.Err()
}

// HasRecentAlert reports whether an alert was sent for the (catalog entry,
// channel) pair inside the cooldown window.
func (s *SQLite) HasRecentAlert(ctx context.Context, catalogID, channel string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window).Format(timeLayout)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts_sent WHERE catalog_id = ? AND channel = ? AND sent_at > ?`,
		catalogID, channel, cutoff,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check recent alert: %w", err)
	}
	return count > 0, nil
}

// InsertAlertRecord appends a sent-alert record. A zero SentAt is stamped
// with the current time.
func (s *SQLite) InsertAlertRecord(ctx context.Context, rec *model.AlertRecord) error {
	at := rec.SentAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts_sent (catalog_id, listing_id, channel, message, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.CatalogID, rec.ListingID, rec.Channel, rec.Message, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert alert record: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// LatestSnapshots returns the current positive-quantity inventory view,
// optionally filtered to one catalog entry.
func (s *SQLite) LatestSnapshots(ctx context.Context, catalogID string) ([]model.InventoryRow, error) {
	query := `
		SELECT l.name, l.source_code, l.price, l.url, COALESCE(l.catalog_id, ''),
		       c.rarity_tier, COALESCE(c.distillery, ''),
		       inv.store_number, COALESCE(inv.store_name, ''), COALESCE(inv.store_address, ''),
		       inv.quantity, inv.scanned_at
		FROM inventory_snapshots inv
		JOIN listings l ON inv.listing_id = l.id
		LEFT JOIN catalog_entries c ON l.catalog_id = c.id
		WHERE inv.scanned_at = (
			SELECT MAX(inv2.scanned_at) FROM inventory_snapshots inv2
			WHERE inv2.listing_id = inv.listing_id
			  AND inv2.store_number = inv.store_number
		)
		AND inv.quantity > 0`
	args := []any{}
	if catalogID != "" {
		query += ` AND l.catalog_id = ?`
		args = append(args, catalogID)
	}
	query += ` ORDER BY c.rarity_tier ASC, inv.scanned_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.InventoryRow
	for rows.Next() {
		var r model.InventoryRow
		var scanned string
		err := rows.Scan(&r.ListingName, &r.SourceCode, &r.Price, &r.URL, &r.CatalogID,
			&r.RarityTier, &r.Distillery, &r.StoreNumber, &r.StoreName, &r.Address,
			&r.Quantity, &scanned)
		if err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		r.ScannedAt, _ = time.Parse(timeLayout, scanned)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DashboardStats summarizes tracked entries, 24h availability, alert volume
// and the most recent scan.
func (s *SQLite) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{}
	dayAgo := time.Now().UTC().Add(-24 * time.Hour).Format(timeLayout)

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_entries`).Scan(&stats.TotalTracked)
	if err != nil {
		return nil, fmt.Errorf("count catalog entries: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT l.catalog_id) FROM listings l
		 JOIN inventory_snapshots inv ON inv.listing_id = l.id
		 WHERE l.catalog_id IS NOT NULL AND inv.quantity > 0 AND inv.scanned_at > ?`,
		dayAgo,
	).Scan(&stats.InStock)
	if err != nil {
		return nil, fmt.Errorf("count in-stock entries: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts_sent WHERE sent_at > ?`, dayAgo,
	).Scan(&stats.AlertsToday)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, scan_type, status, listings_found, new_finds, errors, started_at, completed_at
		 FROM scan_log ORDER BY started_at DESC, id DESC LIMIT 1`,
	)
	last, err := scanScanLog(row)
	if err == nil {
		stats.LastScan = last
	} else if err != errNoScanLog {
		return nil, err
	}
	return stats, nil
}

// GetSetting reads a key-value setting; ok is false when the key is absent.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// SetSetting writes a key-value setting.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

var errNoScanLog = fmt.Errorf("no scan log rows")

func scanScanLog(row scannable) (*model.ScanLog, error) {
	var entry model.ScanLog
	var status string
	var errors, started, completed sql.NullString
	err := row.Scan(&entry.ID, &entry.ScanType, &status, &entry.Listings,
		&entry.NewFinds, &errors, &started, &completed)
	if err == sql.ErrNoRows {
		return nil, errNoScanLog
	}
	if err != nil {
		return nil, fmt.Errorf("scan scan log: %w", err)
	}
	entry.Status = model.ScanStatus(status)
	entry.Errors = errors.String
	if started.Valid {
		entry.StartedAt, _ = time.Parse(timeLayout, started.String)
	}
	if completed.Valid {
		t, _ := time.Parse(timeLayout, completed.String)
		entry.CompletedAt = &t
	}
	return &entry, nil
}
