package fallback

import (
	"fmt"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		input    string
		expected int32
	}{
		{input: "", expected: 0},
		{input: "a", expected: 97},
		{input: "ab", expected: 97*31 + 98},
		// "Tokyo Tower" wraps past int32.
		{input: "Tokyo Tower", expected: hashReference("Tokyo Tower")},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			if got := Hash(tt.input); got != tt.expected {
				t.Fatalf("Hash(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	names := []string{"Senso-ji Temple", "Nara Park", "金閣寺", "", "A very long experience name in Hokkaido"}
	for _, name := range names {
		first := Generate(name)
		second := Generate(name)
		if *first.Rating != *second.Rating || *first.UserRatingsTotal != *second.UserRatingsTotal {
			t.Fatalf("Generate(%q) not deterministic: %v/%d vs %v/%d",
				name, *first.Rating, *first.UserRatingsTotal, *second.Rating, *second.UserRatingsTotal)
		}
		if !first.IsFallback {
			t.Fatalf("Generate(%q) should be marked as fallback", name)
		}
	}
}

func TestGenerateRanges(t *testing.T) {
	for i := 0; i < 2000; i++ {
		name := fmt.Sprintf("place-%d-%s", i, string(rune('a'+i%26)))
		rec := Generate(name)
		if r := *rec.Rating; r < 4.0 || r > 4.9 {
			t.Fatalf("rating %v out of range for %q", r, name)
		}
		if c := *rec.UserRatingsTotal; c < 100 || c > 999 {
			t.Fatalf("review count %d out of range for %q", c, name)
		}
	}
}

func TestGenerateKnownValue(t *testing.T) {
	// hash("ab") = 3105 -> rating 4.5, reviews 100 + 3105%900 = 505
	rec := Generate("ab")
	if *rec.Rating != 4.5 {
		t.Fatalf("rating = %v, want 4.5", *rec.Rating)
	}
	if *rec.UserRatingsTotal != 505 {
		t.Fatalf("reviews = %d, want 505", *rec.UserRatingsTotal)
	}
}

func hashReference(s string) int32 {
	var h int64
	for _, r := range s {
		h = (h*31 + int64(r)) & 0xffffffff
	}
	return int32(uint32(h))
}
