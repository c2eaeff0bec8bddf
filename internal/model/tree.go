package model

import (
	"sort"
	"time"
)

// Tree maps field names to extracted values.
type Tree map[string]Value

// Insert stores v under name unless the name is already present.
// The first writer wins; existing values are never overwritten.
// It reports whether the value was stored.
func (t Tree) Insert(name string, v Value) bool {
	if _, exists := t[name]; exists {
		return false
	}
	t[name] = v
	return true
}

// IsEmpty reports whether the tree carries no content: it has no fields, or
// every value is empty text or an empty list.
func (t Tree) IsEmpty() bool {
	for _, v := range t {
		if !v.IsEmpty() {
			return false
		}
	}
	return true
}

// UnionKeys returns the sorted union of top-level field names across trees.
func UnionKeys(trees []Tree) []string {
	seen := make(map[string]struct{})
	for _, t := range trees {
		for k := range t {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Page is the extraction result for a single fetched URL.
type Page struct {
	// Position is the 0-based index of the page in fetch order.
	Position int `json:"position"`

	// URL is the address the page was fetched from.
	URL string `json:"url"`

	// FetchedAt is when extraction finished.
	FetchedAt time.Time `json:"fetched_at"`

	// Tree is the extracted data.
	Tree Tree `json:"data"`
}
