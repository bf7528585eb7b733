// Package fwgs is the HTTP client for the retailer's site: product search,
// batched stock status, the store directory, and the legacy inventory pages.
package fwgs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxBodyBytes = 5 * 1024 * 1024

// Client talks to both site generations: the modern commerce APIs under
// BaseURL and the legacy ASP pages under LegacyURL.
type Client struct {
	client    HTTPClient
	baseURL   string
	legacyURL string
	userAgent string
	timeout   time.Duration
}

// New creates a Client with the given HTTP client and site origins.
func New(client HTTPClient, baseURL, legacyURL, userAgent string) *Client {
	return &Client{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		legacyURL: strings.TrimRight(legacyURL, "/"),
		userAgent: userAgent,
		timeout:   15 * time.Second,
	}
}

// BaseURL returns the modern site origin, used to absolutize relative URLs.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Search fetches the modern search results page for a term.
func (c *Client) Search(ctx context.Context, term string) ([]byte, error) {
	q := url.Values{"Ntt": {term}}
	return c.get(ctx, c.baseURL+"/search?"+q.Encode(), c.timeout)
}

// LegacySearch posts a brand-name search to the legacy product pages.
func (c *Client) LegacySearch(ctx context.Context, term string) ([]byte, error) {
	form := url.Values{
		"txtBrandName": {term},
		"btnSearch":    {"Search"},
	}
	endpoint := c.legacyURL + "/webapp/product_management/psi_productdefault_inter.asp"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// StockStatus queries per-store stock for a product code across the given
// store IDs in one request.
func (c *Client) StockStatus(ctx context.Context, productCode string, storeIDs []string) ([]byte, error) {
	q := url.Values{
		"products":          {productCode},
		"locationIds":       {strings.Join(storeIDs, ",")},
		"actualStockStatus": {"true"},
	}
	return c.get(ctx, c.baseURL+"/ccstore/v1/stockStatus?"+q.Encode(), 20*time.Second)
}

// Locations fetches one page of the store directory.
func (c *Client) Locations(ctx context.Context, limit, offset int) ([]byte, error) {
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	return c.get(ctx, c.baseURL+"/ccstore/v1/locations?"+q.Encode(), c.timeout)
}

// LegacyInventory fetches the per-store inventory page for a product code
// from the legacy site.
func (c *Client) LegacyInventory(ctx context.Context, productCode string) ([]byte, error) {
	q := url.Values{"cdeNo": {productCode}}
	endpoint := c.legacyURL + "/webapp/Product_Management/psi_ProductInventory_Inter.asp?" + q.Encode()
	return c.get(ctx, endpoint, c.timeout)
}

func (c *Client) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json,text/html,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
