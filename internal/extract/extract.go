// Package extract turns raw retailer page payloads into normalized listing
// and inventory records. Two site generations are supported: the modern
// pages carry a percent-encoded JSON state blob, the legacy pages are plain
// HTML tables. Extraction is total: malformed or absent input yields an
// empty result, never an error.
package extract

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bourbonwatch/internal/model"
)

// Attribute keys read from the embedded page-state records. The upstream
// schema is provider-controlled; every access is null-checked.
const (
	attrName         = "product.displayName"
	attrRepositoryID = "product.repositoryId"
	attrSKUID        = "sku.repositoryId"
	attrActivePrice  = "sku.activePrice"
	attrListPrice    = "product.listPrice"
	attrAvailability = "product.availabilityStatus"
	attrCategory     = "product.category"
	attrRoute        = "product.route"
	attrImage        = "product.mediumImage.url"
	attrSize         = "product.x_size"
	attrOnlineOnly   = "product.x_onlineExclusive"
	attrLimited      = "product.x_limitedRelease"

	availInStock = "INSTOCK"
)

var (
	stateBlobRe  = regexp.MustCompile(`window\.state\s*=\s*"((?:%[0-9A-Fa-f]{2}|[^"\\])*)"`)
	proofRe      = regexp.MustCompile(`(?i)(\d{2,3}(?:\.\d)?)\s*proof`)
	priceRe      = regexp.MustCompile(`\$?\s*(\d+(?:\.\d{2})?)`)
	sizeRe       = regexp.MustCompile(`(?i)(\d+)\s*ml`)
	legacyCodeRe = regexp.MustCompile(`cdeNo=(\d+)`)
	productURLRe = regexp.MustCompile(`/product/(\d+)`)
	trailingRe   = regexp.MustCompile(`/(\d{3,6})(?:\?|$|/)`)
)

// Extractor normalizes raw page payloads. The origin prefixes relative
// product URLs and images from the modern site.
type Extractor struct {
	origin string
}

// New creates an Extractor for the given site origin.
func New(origin string) *Extractor {
	return &Extractor{origin: strings.TrimRight(origin, "/")}
}

// Listings extracts product listings from a search results payload. The
// structured page-state strategy is tried first; the legacy table strategy
// only runs when it yields nothing.
func (e *Extractor) Listings(payload []byte) []model.Listing {
	if listings := e.structuredListings(payload); len(listings) > 0 {
		return listings
	}
	return e.legacyListings(payload)
}

// structuredListings reads the percent-encoded JSON blob assigned to the
// page-state variable and maps its result records to listings.
func (e *Extractor) structuredListings(payload []byte) []model.Listing {
	state := decodeState(payload)
	if state == nil {
		return nil
	}

	var listings []model.Listing
	for _, attrs := range collectRecords(state) {
		name, ok := attrString(attrs, attrName)
		if !ok || name == "" {
			continue
		}

		listing := model.Listing{
			Name:     name,
			Category: stringOr(attrs, attrCategory),
			Size:     stringOr(attrs, attrSize),
		}
		if code, ok := attrString(attrs, attrSKUID); ok {
			listing.SourceCode = code
		} else if code, ok := attrString(attrs, attrRepositoryID); ok {
			listing.SourceCode = code
		}
		listing.Price = attrFloat(attrs, attrActivePrice)
		listing.ListPrice = attrFloat(attrs, attrListPrice)
		if status, ok := attrString(attrs, attrAvailability); ok {
			listing.InStock = status == availInStock
		}
		listing.OnlineOnly = attrYesNo(attrs, attrOnlineOnly)
		listing.Limited = attrYesNo(attrs, attrLimited)
		listing.Proof = ParseProof(name)
		if route, ok := attrString(attrs, attrRoute); ok {
			listing.URL = e.absolutize(route)
			if listing.SourceCode == "" {
				listing.SourceCode = ExtractCode(route)
			}
		}
		if img, ok := attrString(attrs, attrImage); ok {
			listing.ImageURL = e.absolutize(img)
		}

		listings = append(listings, listing)
	}
	return listings
}

// legacyListings parses the legacy site's tabular search results. A row
// qualifies when it has at least four cells and a hyperlink; name and
// source code are required to keep it.
func (e *Extractor) legacyListings(payload []byte) []model.Listing {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil
	}

	var listings []model.Listing
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		link := row.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}

		listing := model.Listing{Name: strings.TrimSpace(link.Text())}
		href, _ := link.Attr("href")
		if m := legacyCodeRe.FindStringSubmatch(href); m != nil {
			listing.SourceCode = m[1]
			listing.URL = href
		}

		cells.Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if strings.Contains(text, "$") {
				if p := ParsePrice(text); p != nil {
					listing.Price = p
				}
			}
			if m := sizeRe.FindStringSubmatch(text); m != nil {
				listing.Size = m[1] + " ml"
			}
		})
		listing.Proof = ParseProof(listing.Name)

		if listing.Name != "" && listing.SourceCode != "" {
			listings = append(listings, listing)
		}
	})
	return listings
}

func (e *Extractor) absolutize(ref string) string {
	if ref == "" || strings.Contains(ref, "://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return e.origin + ref
}

// decodeState locates the page-state blob, percent-decodes it and parses
// the JSON. Returns nil when the blob is absent or unparsable.
func decodeState(payload []byte) map[string]any {
	m := stateBlobRe.FindSubmatch(payload)
	if m == nil {
		return nil
	}
	decoded, err := url.PathUnescape(string(m[1]))
	if err != nil {
		return nil
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(decoded), &state); err != nil {
		return nil
	}
	return state
}

// collectRecords walks the nested paged-results structure and returns every
// record's attribute bag. Records may nest one level of aggregation, so the
// walk recurses through "records" keys at any depth.
func collectRecords(node any) []map[string]any {
	var bags []map[string]any
	switch v := node.(type) {
	case map[string]any:
		if recs, ok := v["records"].([]any); ok {
			for _, rec := range recs {
				recMap, ok := rec.(map[string]any)
				if !ok {
					continue
				}
				if attrs, ok := recMap["attributes"].(map[string]any); ok {
					bags = append(bags, attrs)
				}
				bags = append(bags, collectRecords(recMap)...)
			}
			return bags
		}
		for _, child := range v {
			bags = append(bags, collectRecords(child)...)
		}
	case []any:
		for _, child := range v {
			bags = append(bags, collectRecords(child)...)
		}
	}
	return bags
}

// scalar normalizes an attribute value that may be a scalar or a
// single-element sequence.
func scalar(v any) any {
	if seq, ok := v.([]any); ok {
		if len(seq) == 0 {
			return nil
		}
		return seq[0]
	}
	return v
}

func attrString(attrs map[string]any, key string) (string, bool) {
	v, ok := attrs[key]
	if !ok {
		return "", false
	}
	switch s := scalar(v).(type) {
	case string:
		return strings.TrimSpace(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	return "", false
}

func stringOr(attrs map[string]any, key string) string {
	s, _ := attrString(attrs, key)
	return s
}

// attrFloat coerces a numeric attribute null-safely; invalid input yields nil.
func attrFloat(attrs map[string]any, key string) *float64 {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	switch n := scalar(v).(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// attrYesNo reads a Y/N-valued feature flag.
func attrYesNo(attrs map[string]any, key string) bool {
	s, ok := attrString(attrs, key)
	return ok && strings.EqualFold(s, "Y")
}

// ParsePrice extracts a numeric price from text like "$45.99".
// Invalid input yields nil.
func ParsePrice(text string) *float64 {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseProof extracts a proof statement from a product name: a 2-3 digit
// number immediately followed by "proof", case-insensitive.
func ParseProof(name string) *float64 {
	m := proofRe.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &f
}

// ExtractCode pulls a product code out of a URL, trying the modern product
// route, the legacy query parameter, then a trailing numeric segment.
func ExtractCode(rawURL string) string {
	if m := productURLRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := legacyCodeRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := trailingRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}
