// Package types holds the identifiers shared by the store, the engine and
// the workshop adapters.
package types

import "strings"

// Tag is a workshop category. Every tag owns an ordered list of collections.
type Tag string

// CollectionID identifies a capacity-bounded workshop collection.
type CollectionID string

// ItemID identifies a workshop item. Ids are globally unique.
type ItemID string

// TagPlan is a tag together with its collections in fill priority order.
type TagPlan struct {
	Tag         Tag
	Collections []CollectionID
}

// ItemIDFromURL extracts the id query value from a filedetails link such as
// https://steamcommunity.com/sharedfiles/filedetails/?id=123&searchtext=.
// It returns "" when the link carries no id.
func ItemIDFromURL(href string) ItemID {
	idx := strings.Index(href, "id=")
	for idx > 0 && href[idx-1] != '?' && href[idx-1] != '&' {
		next := strings.Index(href[idx+3:], "id=")
		if next < 0 {
			return ""
		}
		idx += 3 + next
	}
	if idx < 0 {
		return ""
	}
	value := href[idx+3:]
	if end := strings.IndexAny(value, "&#"); end >= 0 {
		value = value[:end]
	}
	return ItemID(strings.TrimSpace(value))
}
