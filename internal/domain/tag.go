package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Tag labels links. Names are unique across tags, compared case-insensitively.
type Tag struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	ColorTag string    `json:"color_tag"`
}

// NewTag creates a tag with a fresh id and a random colour tag.
func NewTag(name string) Tag {
	return Tag{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		ColorTag: RandomColorTag(),
	}
}

// IsSameIdentity reports whether both tags carry the same id.
func (t Tag) IsSameIdentity(other Tag) bool {
	return t.ID == other.ID
}

// ContentEquals compares name and colour, ignoring the id.
func (t Tag) ContentEquals(other Tag) bool {
	return t.Name == other.Name && t.ColorTag == other.ColorTag
}
