package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/justcook/justcook-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://maps.googleapis.com/maps/api"
	distanceMatrixPath         = "distancematrix/json"
	defaultCountryHint         = "UK"
	metersPerMile              = 1609.34
	requestBodyReadLimit int64 = 1024
)

var (
	errAPIKeyRequired = errors.New("google maps api key is required")
)

// Client wraps the Google Distance Matrix API used for delivery quotes.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	countryHint string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Maps API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithCountryHint sets the country appended to bare destination addresses.
func WithCountryHint(hint string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(hint)
		if trimmed != "" {
			c.countryHint = trimmed
		}
	}
}

// NewClient builds the Google Maps client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:      trimmedKey,
		baseURL:     defaultBaseURL,
		countryHint: defaultCountryHint,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// DistanceResult is the normalized single-pair Distance Matrix answer.
type DistanceResult struct {
	DistanceMiles       float64
	DistanceText        string
	ResolvedOrigin      string
	ResolvedDestination string
}

// Distance measures the driving distance between origin and destination.
// An unknown destination returns CodeNotFound; every other failure is
// CodeDependency.
func (c *Client) Distance(ctx context.Context, origin, destination string) (*DistanceResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin and destination are required")
	}

	query := url.Values{}
	query.Set("origins", origin)
	query.Set("destinations", c.NormalizeAddress(destination))
	query.Set("units", "imperial")
	query.Set("key", c.apiKey)
	endpoint := c.buildURL(distanceMatrixPath) + "?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build distance request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute distance request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "distance request failed")
	}

	var apiResp struct {
		Status               string   `json:"status"`
		ErrorMessage         string   `json:"error_message"`
		OriginAddresses      []string `json:"origin_addresses"`
		DestinationAddresses []string `json:"destination_addresses"`
		Rows                 []struct {
			Elements []struct {
				Status   string `json:"status"`
				Distance struct {
					Text  string  `json:"text"`
					Value float64 `json:"value"`
				} `json:"distance"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode distance response")
	}

	if apiResp.Status != "OK" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %s: %s", apiResp.Status, apiResp.ErrorMessage), "distance matrix rejected request")
	}
	if len(apiResp.Rows) == 0 || len(apiResp.Rows[0].Elements) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "distance matrix returned no elements")
	}

	element := apiResp.Rows[0].Elements[0]
	switch element.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS":
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "destination address not found")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("distance element status %s", element.Status))
	}

	result := &DistanceResult{
		DistanceMiles: roundMiles(element.Distance.Value / metersPerMile),
		DistanceText:  element.Distance.Text,
	}
	if len(apiResp.OriginAddresses) > 0 {
		result.ResolvedOrigin = apiResp.OriginAddresses[0]
	}
	if len(apiResp.DestinationAddresses) > 0 {
		result.ResolvedDestination = apiResp.DestinationAddresses[0]
	}
	return result, nil
}

// NormalizeAddress appends the country hint unless the address already names
// the country.
func (c *Client) NormalizeAddress(address string) string {
	trimmed := strings.TrimSpace(address)
	hint := c.countryHint
	if hint == "" {
		hint = defaultCountryHint
	}
	lower := strings.ToLower(trimmed)
	if strings.HasSuffix(lower, strings.ToLower(hint)) || strings.Contains(lower, "united kingdom") {
		return trimmed
	}
	return trimmed + ", " + hint
}

func roundMiles(miles float64) float64 {
	return math.Round(miles*100) / 100
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
