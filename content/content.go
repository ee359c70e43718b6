// Package content reads published guide items from the headless CMS.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/models"
)

// PlaceItemsQuery selects published experiences and destinations with the
// fields the query builder needs. Drafts live under the drafts. ID prefix.
const PlaceItemsQuery = `*[_type in ["experience", "destination"] && !(_id in path("drafts.**")) && defined(name)]{` +
	`_id, _type, name, "category": coalesce(category->slug.current, category, _type), ` +
	`"parentLocation": coalesce(location->name, region->name, city)} | order(_id asc)`

// Lister lists content items that need place data.
type Lister interface {
	ListPlaceItems(ctx context.Context) ([]models.ContentItem, error)
}

type queryResponse struct {
	Result []models.ContentItem `json:"result"`
	Error  *struct {
		Description string `json:"description"`
	} `json:"error"`
}

// Client queries the CMS HTTP API.
type Client struct {
	endpoint  string
	token     string
	collector *colly.Collector
	logger    *zap.Logger
}

// NewClient builds a CMS client. BaseURL overrides the host derived from ProjectID.
func NewClient(cfg config.CMSConfig, userAgent string, logger *zap.Logger) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("cms project id is required")
		}
		base = fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID)
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse cms url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("cms url must include a host")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	version := strings.TrimPrefix(cfg.APIVersion, "v")
	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	if cfg.Timeout > 0 {
		collector.SetRequestTimeout(cfg.Timeout)
	}
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})

	return &Client{
		endpoint:  parsed.JoinPath("v"+version, "data", "query", cfg.Dataset).String(),
		token:     cfg.Token,
		collector: collector,
		logger:    logger,
	}, nil
}

// WithTransport replaces the HTTP transport used for CMS queries.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// ListPlaceItems returns every published experience and destination.
func (c *Client) ListPlaceItems(ctx context.Context) ([]models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}

	target := c.endpoint + "?" + url.Values{"query": {PlaceItemsQuery}}.Encode()
	if err := c.collector.Request(http.MethodGet, target, nil, reqCtx, hdr); err != nil {
		return nil, fmt.Errorf("query cms: %w", err)
	}

	status, _ := reqCtx.GetAny("status").(int)
	body, _ := reqCtx.GetAny("body").([]byte)

	var decoded queryResponse
	decodeErr := json.Unmarshal(body, &decoded)
	if status < 200 || status >= 300 {
		if decodeErr == nil && decoded.Error != nil {
			return nil, fmt.Errorf("query cms: status %d: %s", status, decoded.Error.Description)
		}
		return nil, fmt.Errorf("query cms: status %d", status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode cms response: %w", decodeErr)
	}

	items := make([]models.ContentItem, 0, len(decoded.Result))
	for _, item := range decoded.Result {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Name) == "" {
			c.logger.Debug("skipping cms item without id or name", zap.String("id", item.ID))
			continue
		}
		if item.Category == "" {
			item.Category = item.Type
		}
		items = append(items, item)
	}

	c.logger.Info("loaded cms items", zap.Int("items", len(items)), zap.Int("raw", len(decoded.Result)))
	return items, nil
}
