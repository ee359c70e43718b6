// Package ratings resolves the rating shown for a content item: committed
// snapshot first, then a live lookup, then a deterministic fallback.
package ratings

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/fallback"
	"github.com/aluiziolira/go-places-prefetch/fetcher"
	"github.com/aluiziolira/go-places-prefetch/models"
	"github.com/aluiziolira/go-places-prefetch/pipeline"
	"github.com/aluiziolira/go-places-prefetch/query"
	"github.com/aluiziolira/go-places-prefetch/snapshot"
)

// Source names where a resolved record came from.
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceCache    Source = "cache"
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// ErrLiveSkipped is recorded on fallbacks when live lookups are disabled.
var ErrLiveSkipped = errors.New("live place lookups disabled")

// Resolution is a resolved record plus its provenance. Record is never nil.
// Err holds the lookup failure that led to a fallback, if any.
type Resolution struct {
	Record *models.PlaceRecord
	Source Source
	Query  string
	Err    error
}

// Fallback reports whether the record was synthesized.
func (r Resolution) Fallback() bool {
	return r.Source == SourceFallback
}

// Resolver answers rating lookups for page rendering.
type Resolver struct {
	snapshot *snapshot.Reader
	batcher  *pipeline.Batcher
	profile  config.Profile
	metrics  *fetcher.Metrics
	logger   *zap.Logger
}

// NewResolver wires a resolver. reader and batcher may be nil; without a
// batcher no live lookups are made.
func NewResolver(reader *snapshot.Reader, batcher *pipeline.Batcher, metrics *fetcher.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{snapshot: reader, batcher: batcher, metrics: metrics, logger: logger}
	if batcher != nil {
		r.profile = batcher.Profile()
	}
	return r
}

// Resolve returns the best available record for item.
func (r *Resolver) Resolve(ctx context.Context, item models.ContentItem) Resolution {
	if res, ok := r.fromSnapshot(item); ok {
		return res
	}

	q := query.Build(item)
	if err := r.liveAllowed(); err != nil {
		return r.fallback(item, q, err)
	}
	return r.settle(item, r.batcher.FetchOne(ctx, q))
}

// ResolveAll resolves items in order, sending every snapshot miss through a
// single batch.
func (r *Resolver) ResolveAll(ctx context.Context, items []models.ContentItem) []Resolution {
	out := make([]Resolution, len(items))
	pending := make([]int, 0, len(items))
	queries := make([]string, 0, len(items))

	for i, item := range items {
		if res, ok := r.fromSnapshot(item); ok {
			out[i] = res
			continue
		}
		pending = append(pending, i)
		queries = append(queries, query.Build(item))
	}
	if len(pending) == 0 {
		return out
	}

	if err := r.liveAllowed(); err != nil {
		for n, i := range pending {
			out[i] = r.fallback(items[i], queries[n], err)
		}
		return out
	}

	byQuery := make(map[string]fetcher.Result, len(queries))
	for _, res := range r.batcher.Run(ctx, queries) {
		byQuery[res.Query] = res
	}
	for n, i := range pending {
		res, ok := byQuery[queries[n]]
		if !ok {
			res = fetcher.Result{Query: queries[n], Err: errors.New("empty place query")}
		}
		out[i] = r.settle(items[i], res)
	}
	return out
}

func (r *Resolver) fromSnapshot(item models.ContentItem) (Resolution, bool) {
	if r.snapshot == nil || item.ID == "" {
		return Resolution{}, false
	}
	entry := r.snapshot.GetByKey(item.ID)
	if entry == nil {
		return Resolution{}, false
	}
	record := entry.PlaceRecord
	return Resolution{Record: &record, Source: SourceSnapshot, Query: entry.Query}, true
}

func (r *Resolver) liveAllowed() error {
	if r.batcher == nil || r.profile.SkipLive {
		return ErrLiveSkipped
	}
	return nil
}

func (r *Resolver) settle(item models.ContentItem, res fetcher.Result) Resolution {
	if !res.OK() {
		return r.fallback(item, res.Query, res.Err)
	}
	src := SourceLive
	if res.Cached {
		src = SourceCache
	}
	return Resolution{Record: res.Record, Source: src, Query: res.Query}
}

func (r *Resolver) fallback(item models.ContentItem, q string, cause error) Resolution {
	r.metrics.IncFallback()
	r.logger.Debug("using fallback rating",
		zap.String("id", item.ID),
		zap.String("name", item.Name),
		zap.String("reason", fetcher.ErrorLabel(cause)),
	)
	return Resolution{Record: fallback.Generate(item.Name), Source: SourceFallback, Query: q, Err: cause}
}
