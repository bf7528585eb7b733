// Package stores maintains the process-lifetime cache of retail locations
// and answers geospatial queries against it.
package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"bourbonwatch/internal/model"
)

const pageSize = 250

// earthRadiusMiles is the mean Earth radius used by the haversine distance.
const earthRadiusMiles = 3958.8

// LocationSource fetches one page of the retailer's store directory.
type LocationSource interface {
	Locations(ctx context.Context, limit, offset int) ([]byte, error)
}

// Geocoder resolves a zip code to coordinates. ok is false when the zip is
// unknown to the service.
type Geocoder interface {
	Lookup(ctx context.Context, zip string) (lat, lng float64, ok bool)
}

// Directory is the in-memory store cache. It is populated at most once per
// process and is safe for concurrent readers afterwards.
type Directory struct {
	source   LocationSource
	geocoder Geocoder
	log      *slog.Logger

	mu     sync.Mutex
	stores map[string]model.StoreLocation
	order  []string
	loaded bool
}

// New creates an empty Directory over the given location source. geocoder
// may be nil; ResolveZip then relies on the prefix fallback alone.
func New(source LocationSource, geocoder Geocoder, log *slog.Logger) *Directory {
	return &Directory{
		source:   source,
		geocoder: geocoder,
		log:      log,
		stores:   make(map[string]model.StoreLocation),
	}
}

type locationPage struct {
	Items []struct {
		LocationID   string   `json:"locationId"`
		Name         string   `json:"name"`
		Address1     string   `json:"address1"`
		City         string   `json:"city"`
		StateAddress string   `json:"stateAddress"`
		PostalCode   string   `json:"postalCode"`
		County       string   `json:"county"`
		PhoneNumber  string   `json:"phoneNumber"`
		Hours        string   `json:"hours"`
		Latitude     *float64 `json:"latitude"`
		Longitude    *float64 `json:"longitude"`
		PickUp       bool     `json:"pickUp"`
	} `json:"items"`
}

// FetchAll pages through the location source until exhausted and caches the
// result. Idempotent: once populated it returns the cache without refetching.
func (d *Directory) FetchAll(ctx context.Context) ([]model.StoreLocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return d.snapshot(), nil
	}

	for offset := 0; ; offset += pageSize {
		payload, err := d.source.Locations(ctx, pageSize, offset)
		if err != nil {
			if offset == 0 {
				return nil, fmt.Errorf("fetch locations: %w", err)
			}
			d.log.Warn("location page fetch failed", "offset", offset, "error", err)
			break
		}

		var page locationPage
		if err := json.Unmarshal(payload, &page); err != nil {
			if offset == 0 {
				return nil, fmt.Errorf("parse locations: %w", err)
			}
			d.log.Warn("location page parse failed", "offset", offset, "error", err)
			break
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			if item.LocationID == "" {
				continue
			}
			state := item.StateAddress
			if state == "" {
				state = "PA"
			}
			loc := model.StoreLocation{
				StoreNumber: item.LocationID,
				Name:        item.Name,
				Address:     item.Address1,
				City:        item.City,
				State:       state,
				Zip:         item.PostalCode,
				County:      item.County,
				Phone:       item.PhoneNumber,
				Hours:       item.Hours,
				Latitude:    item.Latitude,
				Longitude:   item.Longitude,
				Pickup:      item.PickUp,
			}
			if _, seen := d.stores[loc.StoreNumber]; !seen {
				d.order = append(d.order, loc.StoreNumber)
			}
			d.stores[loc.StoreNumber] = loc
		}

		if len(page.Items) < pageSize {
			break
		}
	}

	d.loaded = true
	d.log.Info("store directory loaded", "stores", len(d.stores))
	return d.snapshot(), nil
}

func (d *Directory) snapshot() []model.StoreLocation {
	out := make([]model.StoreLocation, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.stores[id])
	}
	return out
}

// Get returns a cached store by number, lazily populating the cache on the
// first call.
func (d *Directory) Get(ctx context.Context, storeNumber string) (model.StoreLocation, bool) {
	if err := d.ensure(ctx); err != nil {
		return model.StoreLocation{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	loc, ok := d.stores[storeNumber]
	return loc, ok
}

// AllIDs returns every cached store number in directory order.
func (d *Directory) AllIDs(ctx context.Context) ([]string, error) {
	if err := d.ensure(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out, nil
}

// ByCounty returns cached stores in the given county, case-insensitively.
func (d *Directory) ByCounty(ctx context.Context, county string) []model.StoreLocation {
	if err := d.ensure(ctx); err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.StoreLocation
	for _, id := range d.order {
		if strings.EqualFold(d.stores[id].County, county) {
			out = append(out, d.stores[id])
		}
	}
	return out
}

func (d *Directory) ensure(ctx context.Context) error {
	d.mu.Lock()
	loaded := d.loaded
	d.mu.Unlock()
	if loaded {
		return nil
	}
	_, err := d.FetchAll(ctx)
	return err
}

// NearbyStore is a store annotated with its distance from a query point.
type NearbyStore struct {
	model.StoreLocation
	DistanceMiles float64
}

// Nearby returns every cached store with coordinates within radiusMiles of
// the query point, ascending by distance.
func (d *Directory) Nearby(ctx context.Context, lat, lng, radiusMiles float64) []NearbyStore {
	if err := d.ensure(ctx); err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []NearbyStore
	for _, id := range d.order {
		loc := d.stores[id]
		if loc.Latitude == nil || loc.Longitude == nil {
			continue
		}
		dist := Haversine(lat, lng, *loc.Latitude, *loc.Longitude)
		if dist <= radiusMiles {
			out = append(out, NearbyStore{StoreLocation: loc, DistanceMiles: dist})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMiles < out[j].DistanceMiles })
	return out
}

// ResolveZip resolves a zip code to coordinates: geocoder first, then any
// cached store sharing the zip's first three digits. ok is false when both
// fail; callers must treat that as an unknown location.
func (d *Directory) ResolveZip(ctx context.Context, zip string) (lat, lng float64, ok bool) {
	if d.geocoder != nil {
		if lat, lng, ok := d.geocoder.Lookup(ctx, zip); ok {
			return lat, lng, true
		}
	}

	if len(zip) < 3 {
		return 0, 0, false
	}
	prefix := zip[:3]
	if err := d.ensure(ctx); err != nil {
		return 0, 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.order {
		loc := d.stores[id]
		if strings.HasPrefix(loc.Zip, prefix) && loc.Latitude != nil && loc.Longitude != nil {
			return *loc.Latitude, *loc.Longitude, true
		}
	}
	return 0, 0, false
}

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
