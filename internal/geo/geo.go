// Package geo resolves service addresses to coordinates.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGoogleURL = "https://maps.googleapis.com/maps/api/geocode/json"

var (
	ErrNoResults = errors.New("geocode: no results")
	ErrNoAPIKey  = errors.New("geocode: api key not configured")
)

type Result struct {
	Lat              float64 `json:"latitude"`
	Lng              float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address"`
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

// GoogleGeocoder calls the Google Maps Geocoding API.
type GoogleGeocoder struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type Option func(*GoogleGeocoder)

func WithEndpoint(u string) Option {
	return func(g *GoogleGeocoder) { g.endpoint = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(g *GoogleGeocoder) { g.client = c }
}

func NewGoogleGeocoder(apiKey string, opts ...Option) *GoogleGeocoder {
	g := &GoogleGeocoder{
		apiKey:   apiKey,
		endpoint: defaultGoogleURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (Result, error) {
	if g.apiKey == "" {
		return Result{}, ErrNoAPIKey
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, fmt.Errorf("geocode: empty address")
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("geocode: http %d", resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("geocode: decode: %w", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Result{}, ErrNoResults
	default:
		return Result{}, fmt.Errorf("geocode: status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return Result{}, ErrNoResults
	}
	first := body.Results[0]
	return Result{
		Lat:              first.Geometry.Location.Lat,
		Lng:              first.Geometry.Location.Lng,
		FormattedAddress: first.FormattedAddress,
	}, nil
}
