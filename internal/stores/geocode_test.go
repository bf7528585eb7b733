package stores

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type cannedHTTP struct {
	req    *http.Request
	body   string
	status int
	err    error
}

func (c *cannedHTTP) Do(req *http.Request) (*http.Response, error) {
	c.req = req
	if c.err != nil {
		return nil, c.err
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(c.body)),
	}, nil
}

func TestZipGeocoderLookup(t *testing.T) {
	client := &cannedHTTP{body: `{"places":[{"latitude":"39.9526","longitude":"-75.1652"}]}`}
	g := NewZipGeocoder(client, testLogger())

	lat, lng, ok := g.Lookup(context.Background(), "19103")
	if !ok || lat != 39.9526 || lng != -75.1652 {
		t.Errorf("Lookup = (%v, %v, %v)", lat, lng, ok)
	}
	if !strings.HasSuffix(client.req.URL.String(), "/us/19103") {
		t.Errorf("url = %s", client.req.URL)
	}
}

func TestZipGeocoderSoftFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *cannedHTTP
	}{
		{"network error", &cannedHTTP{err: errors.New("timeout")}},
		{"unknown zip", &cannedHTTP{status: http.StatusNotFound}},
		{"empty places", &cannedHTTP{body: `{"places":[]}`}},
		{"bad json", &cannedHTTP{body: `{`}},
		{"bad coordinates", &cannedHTTP{body: `{"places":[{"latitude":"north","longitude":"west"}]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewZipGeocoder(tt.client, testLogger())
			if _, _, ok := g.Lookup(context.Background(), "19103"); ok {
				t.Error("Lookup reported success")
			}
		})
	}
}
