package storage

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"linkstash/internal/domain"
)

// LinkFilter narrows FindLinks. Nil fields match everything.
type LinkFilter struct {
	Starred  *bool
	Archived *bool
	Unread   *bool
	GroupID  *uuid.UUID
	TagID    *uuid.UUID
	// Query matches case-insensitively against url, title, description and note.
	Query string
}

// Match reports whether link satisfies every set field of the filter.
func (f LinkFilter) Match(link domain.Link) bool {
	if f.Starred != nil && link.Starred != *f.Starred {
		return false
	}
	if f.Archived != nil && link.Archived != *f.Archived {
		return false
	}
	if f.Unread != nil && link.Unread != *f.Unread {
		return false
	}
	if f.GroupID != nil && (link.Group == nil || link.Group.ID != *f.GroupID) {
		return false
	}
	if f.TagID != nil && !link.HasTag(*f.TagID) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		fields := []string{link.URL}
		for _, p := range []*string{link.Title, link.Description, link.Note} {
			if p != nil {
				fields = append(fields, *p)
			}
		}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// SortNewestFirst orders links by creation time, newest first, using the id
// as a tie breaker so the order is stable across calls.
func SortNewestFirst(links []domain.Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt != links[j].CreatedAt {
			return links[i].CreatedAt > links[j].CreatedAt
		}
		return links[i].ID.String() < links[j].ID.String()
	})
}
