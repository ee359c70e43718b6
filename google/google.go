// Package google looks places up in the Google Places web service.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/models"
	"github.com/aluiziolira/go-places-prefetch/parser"
)

// ErrNoResults is returned when the search matched no place.
var ErrNoResults = errors.New("no place matched the query")

// detailFields are the details the proxy passes through.
const detailFields = "name,rating,user_ratings_total,formatted_address,reviews"

// UpstreamError is a non-OK status reported by the web service.
type UpstreamError struct {
	Status  string
	Message string
	HTTP    int
}

func (e UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("google places %s: %s", e.Status, e.Message)
	}
	if e.Status == "" {
		return fmt.Sprintf("google places: http status %d", e.HTTP)
	}
	return fmt.Sprintf("google places %s", e.Status)
}

type searchResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID string `json:"place_id"`
		models.PlaceRecord
	} `json:"results"`
}

type detailsResponse struct {
	Status       string              `json:"status"`
	ErrorMessage string              `json:"error_message"`
	Result       *models.PlaceRecord `json:"result"`
}

// Client calls the text search and details endpoints.
type Client struct {
	baseURL   string
	apiKey    string
	collector *colly.Collector
	logger    *zap.Logger
}

// NewClient builds a client for baseURL, e.g. https://maps.googleapis.com/maps/api/place.
func NewClient(baseURL, apiKey, userAgent string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse google places url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("google places url must include a host")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("google places API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	if timeout > 0 {
		collector.SetRequestTimeout(timeout)
	}
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})

	return &Client{
		baseURL:   parsed.String(),
		apiKey:    apiKey,
		collector: collector,
		logger:    logger,
	}, nil
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Lookup finds the best match for query and returns it with its reviews.
// A failed details call degrades to the search result without reviews.
func (c *Client) Lookup(ctx context.Context, query string) (*models.PlaceRecord, error) {
	var search searchResponse
	if err := c.get(ctx, "textsearch", url.Values{"query": {query}}, &search); err != nil {
		return nil, err
	}
	switch search.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResults
	default:
		return nil, UpstreamError{Status: search.Status, Message: search.ErrorMessage}
	}
	if len(search.Results) == 0 {
		return nil, ErrNoResults
	}

	best := search.Results[0]
	record := best.PlaceRecord
	record.Reviews = []models.Review{}

	if best.PlaceID != "" {
		details, err := c.details(ctx, best.PlaceID)
		if err != nil {
			c.logger.Warn("place details failed, using search result",
				zap.String("query", query),
				zap.String("place_id", best.PlaceID),
				zap.Error(err),
			)
		} else {
			record = mergeDetails(record, details)
		}
	}

	record.Name = strings.TrimSpace(record.Name)
	record.FormattedAddress = strings.TrimSpace(record.FormattedAddress)
	record.IsFallback = false
	if err := parser.ValidateRecord(&record); err != nil {
		return nil, fmt.Errorf("google places result: %w", err)
	}
	parser.ClampRating(&record)
	return &record, nil
}

func (c *Client) details(ctx context.Context, placeID string) (*models.PlaceRecord, error) {
	var resp detailsResponse
	params := url.Values{"place_id": {placeID}, "fields": {detailFields}}
	if err := c.get(ctx, "details", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" || resp.Result == nil {
		return nil, UpstreamError{Status: resp.Status, Message: resp.ErrorMessage}
	}
	return resp.Result, nil
}

func mergeDetails(search models.PlaceRecord, details *models.PlaceRecord) models.PlaceRecord {
	out := search
	if details.Name != "" {
		out.Name = details.Name
	}
	if details.FormattedAddress != "" {
		out.FormattedAddress = details.FormattedAddress
	}
	if details.Rating != nil {
		out.Rating = details.Rating
	}
	if details.UserRatingsTotal != nil {
		out.UserRatingsTotal = details.UserRatingsTotal
	}
	if details.Reviews != nil {
		out.Reviews = details.Reviews
	}
	return out
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params.Set("key", c.apiKey)
	target := c.baseURL + "/" + endpoint + "/json?" + params.Encode()

	reqCtx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	if err := c.collector.Request(http.MethodGet, target, nil, reqCtx, hdr); err != nil {
		return fmt.Errorf("google places %s: %w", endpoint, err)
	}

	status, _ := reqCtx.GetAny("status").(int)
	body, _ := reqCtx.GetAny("body").([]byte)
	if status < 200 || status >= 300 {
		return UpstreamError{HTTP: status}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode google places %s: %w", endpoint, err)
	}
	return nil
}
