// Package models defines data structures for the places pipeline.
package models

import "time"

// Content kinds that carry place ratings.
const (
	KindExperience  = "experience"
	KindDestination = "destination"
	KindDistrict    = "district"
)

// Review is passed through from the upstream API without validation.
type Review struct {
	AuthorName              string  `json:"author_name"`
	Rating                  float64 `json:"rating"`
	Text                    string  `json:"text"`
	RelativeTimeDescription string  `json:"relative_time_description"`
	Time                    int64   `json:"time"`
}

// PlaceRecord is the normalized rating data for one real-world place.
type PlaceRecord struct {
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal *int     `json:"user_ratings_total,omitempty"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Reviews          []Review `json:"reviews"`
	IsFallback       bool     `json:"isFallback,omitempty"`
}

// RatingValue returns the rating or zero when absent.
func (p *PlaceRecord) RatingValue() float64 {
	if p == nil || p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// ReviewCount returns the review count or zero when absent.
func (p *PlaceRecord) ReviewCount() int {
	if p == nil || p.UserRatingsTotal == nil {
		return 0
	}
	return *p.UserRatingsTotal
}

// SnapshotEntry is a PlaceRecord plus the metadata recorded when it was fetched.
type SnapshotEntry struct {
	PlaceRecord
	Query     string `json:"query"`
	FetchedAt int64  `json:"fetchedAt"`
	Type      string `json:"type"`
}

// Stats summarizes one prefetch run.
type Stats struct {
	TotalRequests      int `json:"totalRequests"`
	SuccessfulRequests int `json:"successfulRequests"`
	FailedRequests     int `json:"failedRequests"`
}

// SnapshotFile is the committed JSON document standing in for the live API.
type SnapshotFile struct {
	LastUpdated time.Time                 `json:"lastUpdated"`
	Stats       Stats                     `json:"stats"`
	PlacesData  map[string]*SnapshotEntry `json:"placesData"`
}

// NewSnapshotFile returns an empty snapshot.
func NewSnapshotFile() *SnapshotFile {
	return &SnapshotFile{PlacesData: make(map[string]*SnapshotEntry)}
}

// ContentItem is a CMS document that needs place data.
type ContentItem struct {
	ID             string `json:"_id"`
	Type           string `json:"_type"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	ParentLocation string `json:"parentLocation"`
}

// PrefetchResult holds the overall result of a prefetch run.
type PrefetchResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Items        int
	Stats        Stats
	ErrorsByType map[string]int
	FailedIDs    []string
	CacheHits    int
}
