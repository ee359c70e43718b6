// Package placesapi serves the place-lookup HTTP API that the prefetch
// pipeline and page builds call.
package placesapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/fetcher"
	"github.com/aluiziolira/go-places-prefetch/google"
	"github.com/aluiziolira/go-places-prefetch/models"
	"github.com/aluiziolira/go-places-prefetch/ratings"
	"github.com/aluiziolira/go-places-prefetch/snapshot"
)

// Looker finds a place by free-text query.
type Looker interface {
	Lookup(ctx context.Context, query string) (*models.PlaceRecord, error)
}

// Options configures the server.
type Options struct {
	ClientKeys      []string
	ResponseTTL     time.Duration
	RatePerMinute   int
	UpstreamTimeout time.Duration
}

// Server answers place lookups from the upstream service and the committed snapshot.
type Server struct {
	lookup   Looker
	snapshot *snapshot.Reader
	resolver *ratings.Resolver
	keys     map[string]struct{}
	cache    *gocache.Cache
	limiter  *keyLimiter
	timeout  time.Duration
	metrics  *fetcher.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer wires a server. reader may be nil, in which case ratings are always synthesized.
func NewServer(lookup Looker, reader *snapshot.Reader, opts Options, metrics *fetcher.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := make(map[string]struct{}, len(opts.ClientKeys))
	for _, k := range opts.ClientKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	ttl := opts.ResponseTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		lookup:   lookup,
		snapshot: reader,
		resolver: ratings.NewResolver(reader, nil, metrics, logger),
		keys:     keys,
		cache:    gocache.New(ttl, 2*ttl),
		limiter:  newKeyLimiter(opts.RatePerMinute),
		timeout:  opts.UpstreamTimeout,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", requireAPIKey(s.keys), s.limiter.middleware(s.logger))
	api.GET("/places", s.places)
	api.GET("/ratings/:id", s.rating)
	return r
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.snapshot != nil {
		file := s.snapshot.Load()
		body["snapshot_entries"] = len(file.PlacesData)
		body["snapshot_stale"] = s.snapshot.IsStale(s.now())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) places(c *gin.Context) {
	query := strings.Join(strings.Fields(c.Query("query")), " ")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}
	cacheKey := strings.ToLower(query)

	if cached, ok := s.cache.Get(cacheKey); ok {
		s.metrics.IncCache(true)
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}
	s.metrics.IncCache(false)

	ctx := c.Request.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	record, err := s.lookup.Lookup(ctx, query)
	s.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		if errors.Is(err, google.ErrNoResults) {
			s.metrics.IncRequest("not_found")
			c.JSON(http.StatusNotFound, gin.H{"error": "place not found"})
			return
		}
		s.metrics.IncRequest("failed")
		s.metrics.IncError("upstream")
		s.logger.Warn("upstream place lookup failed", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream lookup failed"})
		return
	}

	s.metrics.IncRequest("succeeded")
	s.cache.SetDefault(cacheKey, record)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, record)
}

type ratingResponse struct {
	ID     string              `json:"id"`
	Source string              `json:"source"`
	Stale  bool                `json:"stale"`
	Record *models.PlaceRecord `json:"place"`
}

func (s *Server) rating(c *gin.Context) {
	item := models.ContentItem{ID: c.Param("id"), Name: strings.TrimSpace(c.Query("name"))}
	resp := ratingResponse{ID: item.ID}
	if s.snapshot != nil {
		resp.Stale = s.snapshot.IsStale(s.now())
	}

	if item.Name == "" && (s.snapshot == nil || s.snapshot.GetByKey(item.ID) == nil) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot entry and no name to derive a fallback from"})
		return
	}

	res := s.resolver.Resolve(c.Request.Context(), item)
	resp.Source = string(res.Source)
	resp.Record = res.Record
	c.JSON(http.StatusOK, resp)
}
