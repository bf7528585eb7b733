// Package stock resolves per-store stock for a product code through the
// retailer's batched stock-status API.
package stock

import (
	"context"
	"encoding/json"
	"log/slog"

	"bourbonwatch/internal/model"
	"bourbonwatch/internal/stores"
)

// batchSize caps store IDs per request to respect URL length limits.
const batchSize = 100

const statusInStock = "IN_STOCK"

// StatusSource queries stock status for one product across a set of stores.
type StatusSource interface {
	StockStatus(ctx context.Context, productCode string, storeIDs []string) ([]byte, error)
}

// Resolver performs batched stock checks and joins the results with store
// directory metadata.
type Resolver struct {
	source StatusSource
	dir    *stores.Directory
	log    *slog.Logger
}

// New creates a Resolver.
func New(source StatusSource, dir *stores.Directory, log *slog.Logger) *Resolver {
	return &Resolver{source: source, dir: dir, log: log}
}

type statusPayload struct {
	Items []struct {
		LocationID               string         `json:"locationId"`
		StockStatus              string         `json:"stockStatus"`
		ProductSkuInventoryStats map[string]int `json:"productSkuInventoryStatus"`
	} `json:"items"`
}

// CheckStock queries stock for sourceCode across the candidate stores (all
// cached stores when candidates is nil) and returns every store holding
// positive quantity. Batches fail independently: an errored batch is logged
// and skipped, results from the remaining batches are still returned.
func (r *Resolver) CheckStock(ctx context.Context, sourceCode string, candidates []string) []model.StoreStock {
	if candidates == nil {
		ids, err := r.dir.AllIDs(ctx)
		if err != nil {
			r.log.Error("load store directory", "error", err)
			return nil
		}
		candidates = ids
	}

	var inStock []model.StoreStock
	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		payload, err := r.source.StockStatus(ctx, sourceCode, batch)
		if err != nil {
			r.log.Warn("stock status batch failed", "code", sourceCode, "offset", start, "error", err)
			continue
		}

		var decoded statusPayload
		if err := json.Unmarshal(payload, &decoded); err != nil {
			r.log.Warn("stock status parse failed", "code", sourceCode, "offset", start, "error", err)
			continue
		}

		for _, item := range decoded.Items {
			if item.StockStatus != statusInStock {
				continue
			}
			qty := item.ProductSkuInventoryStats[sourceCode]
			if qty <= 0 {
				continue
			}

			entry := model.StoreStock{
				StoreNumber: item.LocationID,
				StoreName:   "Store #" + item.LocationID,
				Quantity:    qty,
			}
			if loc, ok := r.dir.Get(ctx, item.LocationID); ok {
				entry.StoreName = loc.Name
				entry.Address = loc.FullAddress()
				entry.County = loc.County
			}
			inStock = append(inStock, entry)
		}
	}
	return inStock
}
