// Package pipeline fans place lookups out to the fetcher and caches the results.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/fetcher"
	"github.com/aluiziolira/go-places-prefetch/models"
)

var errEmptyQuery = errors.New("empty place query")

// Fetcher performs a single lookup.
type Fetcher interface {
	Fetch(ctx context.Context, query string) fetcher.Result
}

// Options tune how a batch is dispatched.
type Options struct {
	Parallelism  int
	ChunkSize    int
	ChunkPause   time.Duration
	RequestDelay time.Duration
}

// OptionsFromConfig copies the batching settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Parallelism:  cfg.Parallelism,
		ChunkSize:    cfg.ChunkSize,
		ChunkPause:   cfg.ChunkPause,
		RequestDelay: cfg.RequestDelay,
	}
}

// Batcher dispatches many lookups and settles every one of them.
type Batcher struct {
	fetcher Fetcher
	cache   *BuildCache
	profile config.Profile
	opts    Options
	limiter *rate.Limiter
	metrics *fetcher.Metrics
	logger  *zap.Logger

	pause func(ctx context.Context, d time.Duration) error
}

// NewBatcher wires a batcher. cache and metrics may be nil.
func NewBatcher(f Fetcher, cache *BuildCache, profile config.Profile, opts Options, metrics *fetcher.Metrics, logger *zap.Logger) *Batcher {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Batcher{
		fetcher: f,
		cache:   cache,
		profile: profile,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		pause:   sleep,
	}
	if profile.RateLimited && opts.RequestDelay > 0 {
		b.limiter = rate.NewLimiter(rate.Every(opts.RequestDelay), 1)
	}
	return b
}

// Profile returns the fetch context the batcher paces itself for.
func (b *Batcher) Profile() config.Profile {
	return b.profile
}

// Cache returns the build cache, which may be nil.
func (b *Batcher) Cache() *BuildCache {
	return b.cache
}

// Run looks up every distinct query and returns one settled result per
// query, in first-seen order. One failure never cancels the others.
func (b *Batcher) Run(ctx context.Context, queries []string) []fetcher.Result {
	unique := dedupe(queries)
	if len(unique) == 0 {
		return nil
	}

	results := make([]fetcher.Result, len(unique))
	chunkSize := len(unique)
	if b.profile.RateLimited && b.opts.ChunkSize > 0 {
		chunkSize = b.opts.ChunkSize
	}

	for start := 0; start < len(unique); start += chunkSize {
		end := min(start+chunkSize, len(unique))

		if start > 0 && b.profile.RateLimited && b.opts.ChunkPause > 0 {
			if err := b.pause(ctx, b.opts.ChunkPause); err != nil {
				for i := start; i < len(unique); i++ {
					results[i] = fetcher.Result{Query: unique[i], Err: err}
				}
				break
			}
		}

		g := new(errgroup.Group)
		g.SetLimit(b.opts.Parallelism)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = b.fetchOne(ctx, unique[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(unique) {
			b.logger.Debug("place batch chunk complete",
				zap.Int("done", end),
				zap.Int("total", len(unique)),
			)
		}
	}

	b.report(results)
	return results
}

// FetchAll returns only the records that were found. Failures are logged and dropped.
func (b *Batcher) FetchAll(ctx context.Context, queries []string) []*models.PlaceRecord {
	results := b.Run(ctx, queries)
	records := make([]*models.PlaceRecord, 0, len(results))
	for _, res := range results {
		if res.OK() {
			records = append(records, res.Record)
		}
	}
	return records
}

// FetchOne looks up a single query through the cache and rate limiter
// without the batch summary log.
func (b *Batcher) FetchOne(ctx context.Context, query string) fetcher.Result {
	if query == "" {
		return fetcher.Result{Query: query, Err: errEmptyQuery}
	}
	return b.fetchOne(ctx, query)
}

func (b *Batcher) fetchOne(ctx context.Context, query string) fetcher.Result {
	if record, ok := b.cache.Get(query); ok {
		b.metrics.IncCache(true)
		return fetcher.Result{Query: query, Record: record, Cached: true}
	}
	if b.cache != nil {
		b.metrics.IncCache(false)
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fetcher.Result{Query: query, Err: err}
		}
	}

	res := b.fetcher.Fetch(ctx, query)
	if res.OK() {
		b.cache.Add(query, res.Record)
	}
	return res
}

func (b *Batcher) report(results []fetcher.Result) {
	var succeeded, cached int
	var failed []string
	for _, res := range results {
		switch {
		case res.OK():
			succeeded++
			if res.Cached {
				cached++
			}
		default:
			failed = append(failed, res.Query)
		}
	}

	if len(failed) > 0 {
		b.logger.Warn("dropped failed place lookups",
			zap.Int("failed", len(failed)),
			zap.Strings("queries", failed),
		)
	}
	b.logger.Info("place batch complete",
		zap.Int("attempted", len(results)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(failed)),
		zap.Int("cached", cached),
		zap.Bool("rate_limited", b.profile.RateLimited),
	)
}

func dedupe(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
