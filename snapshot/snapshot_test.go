package snapshot

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aluiziolira/go-places-prefetch/models"
)

func sampleSnapshot(updated time.Time) *models.SnapshotFile {
	rating := 4.6
	reviews := 52310
	lowRating := 3.9
	file := models.NewSnapshotFile()
	file.LastUpdated = updated
	file.Stats = models.Stats{TotalRequests: 2, SuccessfulRequests: 2}
	file.PlacesData["exp-sensoji"] = &models.SnapshotEntry{
		PlaceRecord: models.PlaceRecord{
			Rating:           &rating,
			UserRatingsTotal: &reviews,
			Name:             "Senso-ji",
			FormattedAddress: "2-3-1 Asakusa, Taito City, Tokyo 111-0032, Japan",
			Reviews: []models.Review{{
				AuthorName:              "Aiko",
				Rating:                  5,
				Text:                    "Go early <before> the crowds & enjoy",
				RelativeTimeDescription: "2 weeks ago",
				Time:                    1717000000,
			}},
		},
		Query:     "Senso-ji, Tokyo, Japan",
		FetchedAt: 1718000000123,
		Type:      models.KindExperience,
	}
	file.PlacesData["dest-nara"] = &models.SnapshotEntry{
		PlaceRecord: models.PlaceRecord{
			Rating:  &lowRating,
			Name:    "Nara Park",
			Reviews: []models.Review{},
		},
		Query:     "Nara Park, Nara, Japan",
		FetchedAt: 1718000000456,
		Type:      models.KindDestination,
	}
	return file
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "places-data.json")
	written := sampleSnapshot(time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC))

	if err := Write(path, written); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Validate(path); err != nil {
		t.Fatalf("validate: %v", err)
	}

	loaded := NewReader(path, 0, nil).Load()

	want, err := json.Marshal(written.PlacesData)
	if err != nil {
		t.Fatalf("marshal written: %v", err)
	}
	got, err := json.Marshal(loaded.PlacesData)
	if err != nil {
		t.Fatalf("marshal loaded: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("placesData changed across round trip:\nwant %s\ngot  %s", want, got)
	}
	if !loaded.LastUpdated.Equal(written.LastUpdated) {
		t.Fatalf("lastUpdated = %v, want %v", loaded.LastUpdated, written.LastUpdated)
	}
	if loaded.Stats != written.Stats {
		t.Fatalf("stats = %+v, want %+v", loaded.Stats, written.Stats)
	}
}

func TestWriteReplacesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places-data.json")
	if err := Write(path, sampleSnapshot(time.Now())); err != nil {
		t.Fatalf("first write: %v", err)
	}

	next := models.NewSnapshotFile()
	next.LastUpdated = time.Now()
	next.PlacesData["only"] = &models.SnapshotEntry{PlaceRecord: models.PlaceRecord{Name: "Only"}}
	if err := Write(path, next); err != nil {
		t.Fatalf("second write: %v", err)
	}

	loaded := NewReader(path, 0, nil).Load()
	if len(loaded.PlacesData) != 1 || loaded.PlacesData["only"] == nil {
		t.Fatalf("snapshot should be fully replaced, got %d entries", len(loaded.PlacesData))
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".places-*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestWriteJSONShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places-data.json")
	if err := Write(path, sampleSnapshot(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"lastUpdated", "stats", "placesData"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing top-level key %q", key)
		}
	}

	var places map[string]map[string]any
	if err := json.Unmarshal(raw["placesData"], &places); err != nil {
		t.Fatalf("decode placesData: %v", err)
	}
	entry := places["exp-sensoji"]
	for _, key := range []string{"rating", "user_ratings_total", "name", "formatted_address", "reviews", "query", "fetchedAt", "type"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("entry missing key %q: %v", key, entry)
		}
	}
	if _, ok := entry["isFallback"]; ok {
		t.Fatalf("real records should omit isFallback")
	}
}

func TestReaderMissingFile(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewReader(filepath.Join(t.TempDir(), "absent.json"), 0, zap.New(core))

	if entry := r.GetByKey("anything"); entry != nil {
		t.Fatalf("expected nil entry, got %+v", entry)
	}
	if !r.IsStale(time.Now()) {
		t.Fatalf("empty snapshot should be stale")
	}
	if logs.FilterMessage("places snapshot not found, serving empty data").Len() != 1 {
		t.Fatalf("expected one missing-file warning, got %v", logs.All())
	}
}

func TestReaderMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places-data.json")
	if err := os.WriteFile(path, []byte(`{"placesData": [`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewReader(path, 0, nil)
	file := r.Load()
	if file == nil || file.PlacesData == nil {
		t.Fatalf("malformed file should yield an empty snapshot")
	}
	if r.GetByKey("exp-sensoji") != nil {
		t.Fatalf("expected nil entry")
	}
}

func TestReaderNullPlacesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places-data.json")
	if err := os.WriteFile(path, []byte(`{"lastUpdated":"2026-10-01T00:00:00Z","stats":{},"placesData":null}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if NewReader(path, 0, nil).GetByKey("x") != nil {
		t.Fatalf("expected nil entry")
	}
}

func TestReaderLoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places-data.json")
	if err := Write(path, sampleSnapshot(time.Now())); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewReader(path, 0, nil)
	if r.GetByKey("exp-sensoji") == nil {
		t.Fatalf("expected entry before rewrite")
	}

	if err := Write(path, models.NewSnapshotFile()); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if r.GetByKey("exp-sensoji") == nil {
		t.Fatalf("reader should keep the memoized snapshot")
	}
	if r.Load() != r.Load() {
		t.Fatalf("Load should return the same snapshot instance")
	}
}

func TestReaderIsStale(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		age      time.Duration
		expected bool
	}{
		{name: "29 days", age: 29 * 24 * time.Hour, expected: false},
		{name: "31 days", age: 31 * 24 * time.Hour, expected: true},
		{name: "fresh", age: time.Minute, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "places-data.json")
			if err := Write(path, sampleSnapshot(now.Add(-tt.age))); err != nil {
				t.Fatalf("write: %v", err)
			}
			r := NewReader(path, 0, nil)
			if got := r.IsStale(now); got != tt.expected {
				t.Fatalf("IsStale() = %v, want %v", got, tt.expected)
			}
			if got := r.Age(now); got != tt.age {
				t.Fatalf("Age() = %v, want %v", got, tt.age)
			}
		})
	}
}

func TestWriteCSVReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "places.csv")
	if err := WriteCSVReport(path, sampleSnapshot(time.Now())); err != nil {
		t.Fatalf("write report: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "id" || records[0][4] != "rating" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	// Rows are sorted by ID.
	if records[1][0] != "dest-nara" || records[2][0] != "exp-sensoji" {
		t.Fatalf("unexpected row order: %v, %v", records[1][0], records[2][0])
	}
	if records[1][5] != "" {
		t.Fatalf("absent review count should be blank, got %q", records[1][5])
	}
	if records[2][4] != "4.6" || records[2][5] != "52310" {
		t.Fatalf("unexpected rating columns: %v", records[2])
	}
}
