package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bourbonwatch/internal/model"
)

var (
	storeNumberRe = regexp.MustCompile(`^\d{4}$`)
	quantityRe    = regexp.MustCompile(`^\d{1,3}$`)
	addressRe     = regexp.MustCompile(`(?i)\d+\s+\w+.*\b(st|ave|rd|blvd|dr|ln|way|pike)\b`)
)

// Inventory extracts per-store stock levels from an inventory page payload.
// Like Listings it is total and tries the embedded state first, falling back
// to the legacy HTML table.
func (e *Extractor) Inventory(payload []byte) []model.StoreStock {
	if stocks := structuredInventory(payload); len(stocks) > 0 {
		return stocks
	}
	return legacyInventory(payload)
}

// structuredInventory walks the page state for per-location stock objects.
func structuredInventory(payload []byte) []model.StoreStock {
	state := decodeState(payload)
	if state == nil {
		return nil
	}
	return collectLocationStock(state)
}

func collectLocationStock(node any) []model.StoreStock {
	var stocks []model.StoreStock
	switch v := node.(type) {
	case map[string]any:
		if loc, ok := locationStock(v); ok {
			return []model.StoreStock{loc}
		}
		for _, child := range v {
			stocks = append(stocks, collectLocationStock(child)...)
		}
	case []any:
		for _, child := range v {
			stocks = append(stocks, collectLocationStock(child)...)
		}
	}
	return stocks
}

// locationStock reads one per-location stock object: a locationId with an
// adjacent stock level under one of the names the provider has used.
func locationStock(obj map[string]any) (model.StoreStock, bool) {
	id, ok := objString(obj, "locationId")
	if !ok || id == "" {
		return model.StoreStock{}, false
	}
	for _, key := range []string{"stockLevel", "quantity", "inStockQuantity"} {
		if qty, ok := objInt(obj, key); ok {
			stock := model.StoreStock{StoreNumber: id, Quantity: qty}
			stock.StoreName, _ = objString(obj, "name")
			return stock, true
		}
	}
	return model.StoreStock{}, false
}

func objString(obj map[string]any, key string) (string, bool) {
	switch s := scalar(obj[key]).(type) {
	case string:
		return strings.TrimSpace(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	return "", false
}

func objInt(obj map[string]any, key string) (int, bool) {
	switch n := scalar(obj[key]).(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// legacyInventory parses the legacy per-store inventory table: rows keyed by
// a 4-digit store number with an adjacent quantity cell.
func legacyInventory(payload []byte) []model.StoreStock {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil
	}

	var stocks []model.StoreStock
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		var stock model.StoreStock
		cells.Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			switch {
			case storeNumberRe.MatchString(text) && stock.StoreNumber == "":
				stock.StoreNumber = text
			case quantityRe.MatchString(text) && stock.StoreNumber != "":
				if qty, err := strconv.Atoi(text); err == nil {
					stock.Quantity = qty
				}
			case addressRe.MatchString(text):
				stock.Address = text
			}
		})

		if name := row.Find("a").First(); name.Length() > 0 {
			stock.StoreName = strings.TrimSpace(name.Text())
		}

		if stock.StoreNumber != "" {
			stocks = append(stocks, stock)
		}
	})
	return stocks
}
