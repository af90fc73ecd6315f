package sqlstore

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkstash/internal/domain"
	"linkstash/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := Open(filepath.Join(t.TempDir(), "linkstash.db"), logger)
	require.NoError(t, err, "Failed to open test store")
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestStore_LinkRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	group := domain.NewGroup("Reading", "book")
	link := domain.NewLink("https://example.com/a")
	link.Title = domain.StringPtr("A")
	link.ImageURL = domain.StringPtr("https://example.com/a.png")
	link.SetNote("  later  ")
	link.Group = &group
	link.Tags = []domain.Tag{domain.NewTag("go"), domain.NewTag("web")}

	require.NoError(t, store.InsertLink(ctx, link))
	assert.ErrorIs(t, store.InsertLink(ctx, link), storage.ErrAlreadyExists)

	got, err := store.Link(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSameIdentity(link))
	assert.True(t, got.ContentEquals(link.Normalized()))
	assert.Equal(t, "later", *got.Note)

	// Zero values must be written on update.
	link.Title = nil
	link.Unread = false
	link.Group = nil
	require.NoError(t, store.UpdateLink(ctx, link))
	got, err = store.Link(ctx, link.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Title)
	assert.False(t, got.Unread)
	assert.Nil(t, got.Group)

	missing := domain.NewLink("https://example.com/missing")
	assert.ErrorIs(t, store.UpdateLink(ctx, missing), storage.ErrNotFound)
	_, err = store.Link(ctx, missing.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteLink(ctx, link.ID))
	assert.ErrorIs(t, store.DeleteLink(ctx, link.ID), storage.ErrNotFound)
}

func TestStore_FindLinks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	group := domain.NewGroup("Work", "")
	tag := domain.NewTag("infra")
	starred := true

	a := domain.NewLink("https://a.example")
	a.Starred = true
	a.Group = &group
	b := domain.NewLink("https://b.example")
	b.Tags = []domain.Tag{tag}
	b.CreatedAt += 10
	c := domain.NewLink("https://c.example")
	c.Title = domain.StringPtr("Kubernetes notes")
	c.CreatedAt += 20

	for _, l := range []domain.Link{a, b, c} {
		require.NoError(t, store.InsertLink(ctx, l))
	}

	all, err := store.Links(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, c.ID, all[0].ID, "newest first")

	got, err := store.FindLinks(ctx, storage.LinkFilter{Starred: &starred, GroupID: &group.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = store.FindLinks(ctx, storage.LinkFilter{TagID: &tag.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got, err = store.FindLinks(ctx, storage.LinkFilter{Query: "kubernetes"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
}

func TestStore_TagAndGroupNames(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tag := domain.NewTag("Go")
	require.NoError(t, store.InsertTag(ctx, tag))
	assert.ErrorIs(t, store.InsertTag(ctx, tag), storage.ErrAlreadyExists)
	assert.ErrorIs(t, store.InsertTag(ctx, domain.NewTag("go")), storage.ErrDuplicateName)

	other := domain.NewTag("rust")
	require.NoError(t, store.InsertTag(ctx, other))
	other.Name = "GO"
	assert.ErrorIs(t, store.UpdateTag(ctx, other), storage.ErrDuplicateName)
	other.Name = "Zig"
	require.NoError(t, store.UpdateTag(ctx, other))

	tags, err := store.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Go", tags[0].Name)
	assert.Equal(t, "Zig", tags[1].Name)

	require.NoError(t, store.DeleteTag(ctx, tag.ID))
	_, err = store.Tag(ctx, tag.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	group := domain.NewGroup("Home", "house")
	require.NoError(t, store.InsertGroup(ctx, group))
	assert.ErrorIs(t, store.InsertGroup(ctx, domain.NewGroup(" home ", "")), storage.ErrDuplicateName)
	group.IconName = "sofa"
	require.NoError(t, store.UpdateGroup(ctx, group))

	got, err := store.Group(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, got.ContentEquals(group))

	assert.ErrorIs(t, store.UpdateGroup(ctx, domain.NewGroup("Nope", "")), storage.ErrNotFound)
	require.NoError(t, store.DeleteGroup(ctx, group.ID))
	assert.ErrorIs(t, store.DeleteGroup(ctx, group.ID), storage.ErrNotFound)
}
