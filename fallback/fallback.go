// Package fallback synthesizes stable ratings for places without real data.
package fallback

import (
	"unicode/utf16"

	"github.com/aluiziolira/go-places-prefetch/models"
)

// Generate derives a rating in [4.0, 4.9] and a review count in [100, 999]
// from the name. The result depends only on the name, so it is identical
// across processes and builds.
func Generate(name string) *models.PlaceRecord {
	h := int64(Hash(name))
	if h < 0 {
		h = -h
	}

	rating := float64(40+h%10) / 10
	reviews := int(100 + h%900)

	return &models.PlaceRecord{
		Rating:           &rating,
		UserRatingsTotal: &reviews,
		Name:             name,
		Reviews:          []models.Review{},
		IsFallback:       true,
	}
}

// Hash is the classic 31-multiplier string hash over UTF-16 code units,
// wrapped to a signed 32-bit integer, so browser-side code computes the
// same value for the same name.
func Hash(name string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(name)) {
		h = h*31 + int32(unit)
	}
	return h
}
