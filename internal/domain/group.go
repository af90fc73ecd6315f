package domain

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultGroupIcon is used when a group is created without an icon.
const DefaultGroupIcon = "folder"

// Group is a named folder a link can belong to. Names are unique across
// groups, compared case-insensitively.
type Group struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	ColorTag string    `json:"color_tag"`
	IconName string    `json:"icon_name"`
}

// NewGroup creates a group with a fresh id and a random colour tag.
func NewGroup(name, iconName string) Group {
	if iconName == "" {
		iconName = DefaultGroupIcon
	}
	return Group{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		ColorTag: RandomColorTag(),
		IconName: iconName,
	}
}

// IsSameIdentity reports whether both groups carry the same id.
func (g Group) IsSameIdentity(other Group) bool {
	return g.ID == other.ID
}

// ContentEquals compares name, colour and icon, ignoring the id.
func (g Group) ContentEquals(other Group) bool {
	return g.Name == other.Name &&
		g.ColorTag == other.ColorTag &&
		g.IconName == other.IconName
}
