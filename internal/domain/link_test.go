package domain

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colorTagPattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

func sampleLink() Link {
	l := NewLink("https://example.com/article")
	l.Title = StringPtr("Example")
	l.Description = StringPtr("An example page")
	l.ImageURL = StringPtr("https://example.com/cover.png")
	l.SetNote("read later")
	l.Starred = true
	l.Group = &Group{Name: "Reading", ColorTag: "112233", IconName: "book"}
	l.Tags = []Tag{
		{Name: "go", ColorTag: "aabbcc"},
		{Name: "web", ColorTag: "ddeeff"},
	}
	return l
}

func TestNewLink_Defaults(t *testing.T) {
	l := NewLink("  https://example.com  ")

	assert.NotEqual(t, uuid.Nil, l.ID, "id should be assigned")
	assert.Equal(t, "https://example.com", l.URL)
	assert.True(t, l.Unread)
	assert.False(t, l.Starred)
	assert.Regexp(t, colorTagPattern, l.ColorTag)
	assert.Equal(t, l.CreatedAt, l.UpdatedAt)
	assert.Nil(t, l.Title)
}

// TestLink_ContentEqualityLaw checks that identical field values with
// different ids are content-equal but not the same identity, and that any
// single field change breaks content equality.
func TestLink_ContentEqualityLaw(t *testing.T) {
	l1 := sampleLink()
	l2 := l1
	l2.ID = NewLink(l1.URL).ID
	l2.Tags = []Tag{l1.Tags[1], l1.Tags[0]} // order does not matter

	require.True(t, l1.ContentEquals(l2))
	require.False(t, l1.IsSameIdentity(l2))

	mutations := map[string]func(l *Link){
		"url":         func(l *Link) { l.URL = "https://example.org" },
		"title":       func(l *Link) { l.Title = StringPtr("Other") },
		"title nil":   func(l *Link) { l.Title = nil },
		"description": func(l *Link) { l.Description = StringPtr("Other") },
		"image":       func(l *Link) { l.ImageURL = nil },
		"note":        func(l *Link) { l.SetNote("something else") },
		"starred":     func(l *Link) { l.Starred = !l.Starred },
		"archived":    func(l *Link) { l.Archived = !l.Archived },
		"unread":      func(l *Link) { l.Unread = !l.Unread },
		"color":       func(l *Link) { l.ColorTag = "000000" },
		"created":     func(l *Link) { l.CreatedAt++ },
		"updated":     func(l *Link) { l.UpdatedAt++ },
		"group":       func(l *Link) { l.Group = &Group{Name: "Other", ColorTag: "112233", IconName: "book"} },
		"group nil":   func(l *Link) { l.Group = nil },
		"tag renamed": func(l *Link) { l.Tags = []Tag{{Name: "rust", ColorTag: "aabbcc"}, l.Tags[1]} },
		"tag removed": func(l *Link) { l.Tags = l.Tags[:1] },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			l3 := l2
			l3.Tags = append([]Tag(nil), l2.Tags...)
			mutate(&l3)
			assert.False(t, l1.ContentEquals(l3), "mutating %s should break content equality", name)
			assert.False(t, l1.IsSameIdentity(l3))
		})
	}
}

func TestLink_IsSameIdentityIgnoresContent(t *testing.T) {
	l1 := sampleLink()
	l2 := l1
	l2.Title = StringPtr("Changed")

	assert.True(t, l1.IsSameIdentity(l2))
	assert.False(t, l1.ContentEquals(l2))
}

func TestLink_SetNote(t *testing.T) {
	var l Link

	l.SetNote("   ")
	assert.Nil(t, l.Note)

	l.SetNote("  keep me \n")
	require.NotNil(t, l.Note)
	assert.Equal(t, "keep me", *l.Note)

	l.Note = StringPtr("\t")
	assert.Nil(t, l.Normalized().Note)
}

func TestLink_Validate(t *testing.T) {
	assert.NoError(t, NewLink("https://go.dev").Validate())
	assert.NoError(t, NewLink("not a url").Validate(), "malformed urls are kept")
	assert.ErrorIs(t, NewLink("   ").Validate(), ErrEmptyURL)
	assert.ErrorIs(t, Link{URL: "\t"}.Validate(), ErrEmptyURL)
}

func TestTagAndGroup_Equality(t *testing.T) {
	t1 := NewTag(" go ")
	t2 := t1
	t2.ID = NewTag("go").ID
	assert.Equal(t, "go", t1.Name)
	assert.True(t, t1.ContentEquals(t2))
	assert.False(t, t1.IsSameIdentity(t2))
	t2.Name = "golang"
	assert.False(t, t1.ContentEquals(t2))

	g1 := NewGroup("Work", "")
	g2 := g1
	g2.ID = NewGroup("Work", "").ID
	assert.Equal(t, DefaultGroupIcon, g1.IconName)
	assert.True(t, g1.ContentEquals(g2))
	assert.False(t, g1.IsSameIdentity(g2))
	g2.IconName = "briefcase"
	assert.False(t, g1.ContentEquals(g2))
}

func TestMetadata_ApplyTo(t *testing.T) {
	l := NewLink("https://example.com/posts/1")
	l.Title = StringPtr("User title")

	Metadata{
		Title:    StringPtr("Fetched"),
		ImageURL: StringPtr("/img/cover.jpg"),
	}.ApplyTo(&l)

	require.NotNil(t, l.Title)
	assert.Equal(t, "Fetched", *l.Title)
	assert.Nil(t, l.Description)
	require.NotNil(t, l.ImageURL)
	assert.Equal(t, "https://example.com/img/cover.jpg", *l.ImageURL)

	Metadata{ImageURL: StringPtr("//cdn.example.net/a.png")}.ApplyTo(&l)
	assert.Nil(t, l.Title, "fetched metadata replaces existing values unconditionally")
	assert.Equal(t, "https://cdn.example.net/a.png", *l.ImageURL)
}
