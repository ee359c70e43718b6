// Package snapshot persists place data to the committed JSON file and reads it back.
package snapshot

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/aluiziolira/go-places-prefetch/models"
)

// Write replaces the snapshot at path. The document is written to a temp
// file in the same directory and renamed, so readers never see a partial file.
func Write(path string, file *models.SnapshotFile) error {
	if file == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if file.PlacesData == nil {
		file.PlacesData = make(map[string]*models.SnapshotEntry)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".places-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	buffer := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(buffer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(file); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := buffer.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Validate ensures the file at path exists and is non-empty.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat snapshot file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("snapshot file is empty")
	}
	return nil
}

// WriteCSVReport writes a review sheet of the snapshot, one row per item sorted by ID.
func WriteCSVReport(path string, file *models.SnapshotFile) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv report: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{"id", "type", "query", "name", "rating", "reviews", "fetched_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	ids := make([]string, 0, len(file.PlacesData))
	for id := range file.PlacesData {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry := file.PlacesData[id]
		rating := ""
		if entry.Rating != nil {
			rating = strconv.FormatFloat(*entry.Rating, 'f', 1, 64)
		}
		reviews := ""
		if entry.UserRatingsTotal != nil {
			reviews = strconv.Itoa(*entry.UserRatingsTotal)
		}
		record := []string{
			id,
			entry.Type,
			entry.Query,
			entry.Name,
			rating,
			reviews,
			time.UnixMilli(entry.FetchedAt).UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv report: %w", err)
	}
	return f.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
