package stores

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ZipGeocoder resolves US zip codes through the zippopotam.us lookup API.
// Failures are soft: Lookup reports ok=false and the Directory falls back to
// its zip-prefix heuristic.
type ZipGeocoder struct {
	client  HTTPClient
	baseURL string
	log     *slog.Logger
}

// NewZipGeocoder creates a geocoder with the given HTTP client.
func NewZipGeocoder(client HTTPClient, log *slog.Logger) *ZipGeocoder {
	return &ZipGeocoder{
		client:  client,
		baseURL: "https://api.zippopotam.us/us/",
		log:     log,
	}
}

type zipResponse struct {
	Places []struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"places"`
}

// Lookup resolves a zip code to coordinates.
func (g *ZipGeocoder) Lookup(ctx context.Context, zip string) (float64, float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+zip, nil)
	if err != nil {
		return 0, 0, false
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("zip lookup failed", "zip", zip, "error", err)
		return 0, 0, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return 0, 0, false
	}

	var decoded zipResponse
	if err := json.Unmarshal(body, &decoded); err != nil || len(decoded.Places) == 0 {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(decoded.Places[0].Latitude, 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(decoded.Places[0].Longitude, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
