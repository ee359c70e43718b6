package snapshot

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aluiziolira/go-places-prefetch/models"
)

// DefaultStaleAfter is how old a snapshot may get before it is reported stale.
const DefaultStaleAfter = 30 * 24 * time.Hour

// Reader serves lookups from a snapshot file. The file is read at most once.
type Reader struct {
	path       string
	staleAfter time.Duration
	logger     *zap.Logger

	once sync.Once
	file *models.SnapshotFile
}

// NewReader returns a reader for path. A non-positive staleAfter uses DefaultStaleAfter.
func NewReader(path string, staleAfter time.Duration, logger *zap.Logger) *Reader {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{path: path, staleAfter: staleAfter, logger: logger}
}

// Load returns the snapshot, reading it from disk on first use. A missing or
// malformed file yields an empty snapshot and a warning.
func (r *Reader) Load() *models.SnapshotFile {
	r.once.Do(func() {
		r.file = r.read()
	})
	return r.file
}

func (r *Reader) read() *models.SnapshotFile {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("places snapshot not found, serving empty data", zap.String("path", r.path))
		} else {
			r.logger.Warn("places snapshot unreadable, serving empty data", zap.String("path", r.path), zap.Error(err))
		}
		return models.NewSnapshotFile()
	}

	var file models.SnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Warn("places snapshot malformed, serving empty data", zap.String("path", r.path), zap.Error(err))
		return models.NewSnapshotFile()
	}
	if file.PlacesData == nil {
		file.PlacesData = make(map[string]*models.SnapshotEntry)
	}

	r.logger.Info("places snapshot loaded",
		zap.String("path", r.path),
		zap.Int("places", len(file.PlacesData)),
		zap.Time("last_updated", file.LastUpdated),
	)
	return &file
}

// GetByKey returns the entry for a content item ID, or nil when absent.
func (r *Reader) GetByKey(id string) *models.SnapshotEntry {
	entry, ok := r.Load().PlacesData[id]
	if !ok {
		return nil
	}
	return entry
}

// Age reports how long ago the snapshot was generated.
func (r *Reader) Age(now time.Time) time.Duration {
	return now.Sub(r.Load().LastUpdated)
}

// IsStale reports whether the snapshot is older than the staleness window.
// An empty snapshot is always stale.
func (r *Reader) IsStale(now time.Time) bool {
	file := r.Load()
	if file.LastUpdated.IsZero() {
		return true
	}
	return now.Sub(file.LastUpdated) > r.staleAfter
}
