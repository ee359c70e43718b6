// Package prefetch refreshes the committed places snapshot from the CMS and
// the places API.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/config"
	"github.com/aluiziolira/go-places-prefetch/content"
	"github.com/aluiziolira/go-places-prefetch/fetcher"
	"github.com/aluiziolira/go-places-prefetch/models"
	"github.com/aluiziolira/go-places-prefetch/pipeline"
	"github.com/aluiziolira/go-places-prefetch/query"
)

var (
	// ErrMissingCredential aborts a run before any request is made.
	ErrMissingCredential = errors.New("places API credential is not configured")
	// ErrFailureMajority marks a run whose failures exceeded the policy.
	ErrFailureMajority = errors.New("too many place lookups failed")
)

// Policy decides whether a finished run counts as broken.
type Policy struct {
	// MaxFailureRatio is the largest tolerated failed/total ratio. 0.5 fails
	// a run when failures outnumber successes; 1 never fails.
	MaxFailureRatio float64
	// MinRequests is the smallest run the ratio is applied to.
	MinRequests int
}

// PolicyFromConfig copies the failure policy out of cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{MaxFailureRatio: cfg.MaxFailureRatio, MinRequests: cfg.MinRequests}
}

// Failed reports whether stats breach the policy.
func (p Policy) Failed(stats models.Stats) bool {
	if stats.TotalRequests == 0 || stats.TotalRequests < p.MinRequests {
		return false
	}
	if p.MaxFailureRatio >= 1 {
		return false
	}
	return float64(stats.FailedRequests)/float64(stats.TotalRequests) > p.MaxFailureRatio
}

// Runner executes one prefetch run.
type Runner struct {
	Content content.Lister
	Batcher *pipeline.Batcher
	Policy  Policy
	Now     func() time.Time
	Logger  *zap.Logger
}

// Run lists content items, looks up each one and assembles a fresh snapshot.
// On ErrFailureMajority the snapshot and summary are still returned so the
// caller can persist what succeeded.
func (r *Runner) Run(ctx context.Context) (*models.SnapshotFile, *models.PrefetchResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	profile := r.Batcher.Profile()
	if profile.Credential == "" {
		return nil, nil, ErrMissingCredential
	}

	result := &models.PrefetchResult{
		StartTime:    now(),
		ErrorsByType: make(map[string]int),
	}

	items, err := r.Content.ListPlaceItems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list content items: %w", err)
	}
	result.Items = len(items)

	logger.Info("starting places prefetch",
		zap.Int("items", len(items)),
		zap.String("mode", string(profile.Mode)),
		zap.Bool("rate_limited", profile.RateLimited),
	)

	queries := make([]string, len(items))
	for i, item := range items {
		queries[i] = query.Build(item)
	}

	byQuery := make(map[string]fetcher.Result, len(items))
	for _, res := range r.Batcher.Run(ctx, queries) {
		byQuery[res.Query] = res
	}

	file := models.NewSnapshotFile()
	for i, item := range items {
		q := queries[i]
		result.Stats.TotalRequests++

		res, ok := byQuery[q]
		if !ok {
			// Empty queries are never dispatched.
			res = fetcher.Result{Query: q, Err: fmt.Errorf("no query for item %s", item.ID)}
		}
		if !res.OK() {
			result.Stats.FailedRequests++
			result.FailedIDs = append(result.FailedIDs, item.ID)
			result.ErrorsByType[fetcher.ErrorLabel(res.Err)]++
			continue
		}
		if res.Cached {
			result.CacheHits++
		}

		result.Stats.SuccessfulRequests++
		file.PlacesData[item.ID] = &models.SnapshotEntry{
			PlaceRecord: *res.Record,
			Query:       q,
			FetchedAt:   now().UnixMilli(),
			Type:        item.Type,
		}
	}

	sort.Strings(result.FailedIDs)
	file.Stats = result.Stats
	result.EndTime = now()
	file.LastUpdated = result.EndTime.UTC()

	logger.Info("places prefetch complete",
		zap.Int("total", result.Stats.TotalRequests),
		zap.Int("successful", result.Stats.SuccessfulRequests),
		zap.Int("failed", result.Stats.FailedRequests),
		zap.Int("cache_hits", result.CacheHits),
	)

	if r.Policy.Failed(result.Stats) {
		return file, result, fmt.Errorf("%w: %d of %d", ErrFailureMajority, result.Stats.FailedRequests, result.Stats.TotalRequests)
	}
	return file, result, nil
}
