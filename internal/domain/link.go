package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyURL is returned by Validate for a link without a URL.
var ErrEmptyURL = errors.New("link url is empty")

// Link represents the core data structure for a saved website link.
type Link struct {
	// ID identifies the link. It is assigned by NewLink and never reassigned.
	ID uuid.UUID `json:"id"`

	// URL is the address the user saved.
	URL string `json:"url"`

	// Title scraped from the page's og:title or <title>.
	Title *string `json:"title,omitempty"`

	// Description scraped from the page's meta description tags.
	Description *string `json:"description,omitempty"`

	// ImageURL is the preview image (e.g., Open Graph image), absolute.
	ImageURL *string `json:"image_url,omitempty"`

	// Note is a free-form user note. Empty notes are stored as nil.
	Note *string `json:"note,omitempty"`

	Starred  bool `json:"starred"`
	Archived bool `json:"archived"`
	Unread   bool `json:"unread"`

	// ColorTag is a 6 hex digit colour assigned at creation.
	ColorTag string `json:"color_tag"`

	// CreatedAt and UpdatedAt are epoch seconds.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	// Group and Tags are snapshots of the referenced entities. The link records
	// the association only; Tag and Group lifecycles are managed separately.
	Group *Group `json:"group,omitempty"`
	Tags  []Tag  `json:"tags,omitempty"`
}

// NewLink creates an unread link for rawURL with a fresh id, a random colour
// tag and both timestamps set to now.
func NewLink(rawURL string) Link {
	now := time.Now().Unix()
	return Link{
		ID:        uuid.New(),
		URL:       strings.TrimSpace(rawURL),
		Unread:    true,
		ColorTag:  RandomColorTag(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsSameIdentity reports whether both links carry the same id.
func (l Link) IsSameIdentity(other Link) bool {
	return l.ID == other.ID
}

// ContentEquals reports whether every mutable field of both links is equal.
// The id is ignored.
func (l Link) ContentEquals(other Link) bool {
	if l.URL != other.URL ||
		!equalOptional(l.Title, other.Title) ||
		!equalOptional(l.Description, other.Description) ||
		!equalOptional(l.ImageURL, other.ImageURL) ||
		!equalOptional(l.Note, other.Note) ||
		l.Starred != other.Starred ||
		l.Archived != other.Archived ||
		l.Unread != other.Unread ||
		l.ColorTag != other.ColorTag ||
		l.CreatedAt != other.CreatedAt ||
		l.UpdatedAt != other.UpdatedAt {
		return false
	}

	switch {
	case l.Group == nil && other.Group == nil:
	case l.Group == nil || other.Group == nil:
		return false
	case !l.Group.ContentEquals(*other.Group):
		return false
	}

	return equalTagSets(l.Tags, other.Tags)
}

// SetNote stores note trimmed, or nil when nothing is left after trimming.
func (l *Link) SetNote(note string) {
	l.Note = normalizeOptional(&note)
}

// Normalized returns a copy of the link with the note normalized. Stores call
// it on every write.
func (l Link) Normalized() Link {
	l.Note = normalizeOptional(l.Note)
	if l.Tags != nil {
		tags := make([]Tag, len(l.Tags))
		copy(tags, l.Tags)
		l.Tags = tags
	}
	return l
}

// Validate reports whether the link can be stored. Only a blank URL is
// rejected; malformed URLs are kept as typed.
func (l Link) Validate() error {
	if strings.TrimSpace(l.URL) == "" {
		return ErrEmptyURL
	}
	return nil
}

// Touch bumps UpdatedAt to now.
func (l *Link) Touch() {
	l.UpdatedAt = time.Now().Unix()
}

// HasTag reports whether a tag with the given id is attached.
func (l Link) HasTag(id uuid.UUID) bool {
	for _, t := range l.Tags {
		if t.ID == id {
			return true
		}
	}
	return false
}

// DisplayTitle returns the title, falling back to the URL.
func (l Link) DisplayTitle() string {
	if l.Title != nil && *l.Title != "" {
		return *l.Title
	}
	return l.URL
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// equalTagSets compares tags as sets by content. A nil set equals an empty one.
func equalTagSets(a, b []Tag) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, ta := range a {
		for j, tb := range b {
			if !used[j] && ta.ContentEquals(tb) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
