// Package query turns CMS content items into place-lookup search strings.
package query

import (
	"strings"

	"github.com/aluiziolira/go-places-prefetch/models"
)

const country = "Japan"

type rule struct {
	keywords []string
	format   func(name, parent string) string
}

// rules are checked in order; the first keyword hit wins.
var rules = []rule{
	{
		keywords: []string{"deer"},
		format:   func(string, string) string { return "Nara Park deer, Nara, Japan" },
	},
	{
		keywords: []string{"tea ceremony"},
		format: func(_, parent string) string {
			return join(", ", join(" ", "tea ceremony", parent), country)
		},
	},
	{keywords: []string{"temple", "shrine", "-ji", "-dera", "jinja", "taisha"}, format: commaSeparated},
	{keywords: []string{"castle"}, format: commaSeparated},
	{keywords: []string{"market"}, format: commaSeparated},
	{
		keywords: []string{"onsen", "hot spring"},
		format: func(name, parent string) string {
			if !strings.Contains(strings.ToLower(name), "onsen") {
				name += " onsen"
			}
			return join(", ", name, parent, country)
		},
	},
	{keywords: []string{"park", "garden"}, format: commaSeparated},
	{keywords: []string{"museum", "gallery"}, format: commaSeparated},
	{keywords: []string{"tower", "skytree"}, format: commaSeparated},
}

// Build returns the search string for an item. It is pure: the same item
// always yields the same string.
func Build(item models.ContentItem) string {
	name := normalize(item.Name)
	parent := normalize(item.ParentLocation)
	lower := strings.ToLower(name)

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.format(name, parent)
			}
		}
	}

	switch strings.ToLower(item.Category) {
	case models.KindDestination:
		if parent == "" {
			return join(", ", name, country)
		}
		return commaSeparated(name, parent)
	case models.KindDistrict:
		return commaSeparated(name, parent)
	}

	return join(" ", name, parent, country)
}

func commaSeparated(name, parent string) string {
	return join(", ", name, parent, country)
}

// join skips empty parts so a missing parent never leaves a dangling separator.
func join(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
