package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-places-prefetch/models"
)

// ParsePlace decodes an upstream place payload. Fields are taken verbatim;
// only a payload that is not a JSON object is rejected.
func ParsePlace(body []byte) (*models.PlaceRecord, error) {
	var record *models.PlaceRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode place: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("decode place: empty payload")
	}
	record.Name = strings.TrimSpace(record.Name)
	record.FormattedAddress = strings.TrimSpace(record.FormattedAddress)
	if record.Reviews == nil {
		record.Reviews = []models.Review{}
	}
	record.IsFallback = false
	return record, nil
}

// ValidateRecord ensures the upstream returned something identifiable.
func ValidateRecord(r *models.PlaceRecord) error {
	if r == nil {
		return fmt.Errorf("place is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("place missing name")
	}
	if r.UserRatingsTotal != nil && *r.UserRatingsTotal < 0 {
		return fmt.Errorf("place %s has negative review count", r.Name)
	}
	return nil
}

// ClampRating keeps a present rating inside the 1-5 star scale.
func ClampRating(r *models.PlaceRecord) {
	if r == nil || r.Rating == nil {
		return
	}
	v := *r.Rating
	switch {
	case v < 1:
		v = 1
	case v > 5:
		v = 5
	}
	r.Rating = &v
}
