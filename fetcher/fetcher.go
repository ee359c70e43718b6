// Package fetcher looks up place ratings from the places API.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/models"
	"github.com/aluiziolira/go-places-prefetch/parser"
)

const (
	placesPath = "/api/places"
	apiKeyHdr  = "x-api-key"

	ctxStatus = "status"
	ctxBody   = "body"
)

// Result is the settled outcome of one lookup. Exactly one of Record and Err is set.
type Result struct {
	Query    string
	Record   *models.PlaceRecord
	Err      error
	Status   int
	Duration time.Duration
	Cached   bool
}

// OK reports whether the lookup produced a record.
func (r Result) OK() bool {
	return r.Err == nil && r.Record != nil
}

// Client issues one GET per query against the places API.
type Client struct {
	endpoint  string
	profile   config.Profile
	collector *colly.Collector
	logger    *zap.Logger
	Metrics   *Metrics
}

// New builds a client for cfg.BaseURL using the credential and timeout in profile.
func New(cfg *config.Config, profile config.Profile, logger *zap.Logger) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(profile.Timeout)
	collector.IgnoreRobotsTxt = true
	// Non-2xx responses are classified here rather than by colly.
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   profile.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Parallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxBody, r.Body)
	})

	return &Client{
		endpoint:  parsed.JoinPath(placesPath).String(),
		profile:   profile,
		collector: collector,
		logger:    logger,
		Metrics:   NewMetrics(),
	}, nil
}

// WithTransport replaces the HTTP transport used for lookups.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Profile returns the fetch context the client was built with.
func (c *Client) Profile() config.Profile {
	return c.profile
}

// Fetch looks up a single query. Failures are returned in Result.Err and
// logged; Fetch never panics on upstream errors.
func (c *Client) Fetch(ctx context.Context, query string) Result {
	res := Result{Query: query}

	if c.profile.Credential == "" {
		c.logger.Warn("places API credential missing, skipping lookup", zap.String("query", query))
		c.Metrics.IncError(ErrorLabel(ErrMissingCredential))
		res.Err = ErrMissingCredential
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = classifyError(err, 0)
		return res
	}

	reqCtx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set(apiKeyHdr, c.profile.Credential)
	hdr.Set("Accept", "application/json")

	c.Metrics.IncRequest("started")
	start := time.Now()
	err := c.collector.Request(http.MethodGet, c.requestURL(query), nil, reqCtx, hdr)
	res.Duration = time.Since(start)
	c.Metrics.ObserveDuration(res.Duration)

	if status, ok := reqCtx.GetAny(ctxStatus).(int); ok {
		res.Status = status
	}
	if classified := classifyError(err, res.Status); classified != nil {
		return c.fail(res, classified)
	}

	body, _ := reqCtx.GetAny(ctxBody).([]byte)
	record, err := parser.ParsePlace(body)
	if err != nil {
		return c.fail(res, ErrDecode{Err: err})
	}

	c.Metrics.IncRequest("succeeded")
	c.logger.Debug("place lookup succeeded",
		zap.String("query", query),
		zap.Float64("rating", record.RatingValue()),
		zap.Int("reviews", record.ReviewCount()),
		zap.Duration("duration", res.Duration),
	)
	res.Record = record
	return res
}

func (c *Client) fail(res Result, err error) Result {
	label := ErrorLabel(err)
	c.Metrics.IncRequest("failed")
	c.Metrics.IncError(label)
	c.logger.Warn("place lookup failed",
		zap.String("query", res.Query),
		zap.Int("status", res.Status),
		zap.String("category", label),
		zap.Duration("duration", res.Duration),
		zap.Error(err),
	)
	res.Err = err
	return res
}

func (c *Client) requestURL(query string) string {
	return c.endpoint + "?" + url.Values{"query": {query}}.Encode()
}
