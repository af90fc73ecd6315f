package storage

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkstash/internal/domain"
)

// setupTestDB creates a temporary BadgerDB instance for testing.
// It returns the repository instance and a cleanup function.
func setupTestDB(t *testing.T) (*BadgerRepository, func()) {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetOutput(os.Stderr)        // Send logs to stderr during tests
	testLogger.SetLevel(logrus.FatalLevel) // Failures below are expected

	repo, err := NewBadgerRepository(t.TempDir(), testLogger)
	require.NoError(t, err, "Failed to create test BadgerDB repository")

	cleanup := func() {
		assert.NoError(t, repo.Close(), "Failed to close test BadgerDB repository")
	}
	return repo, cleanup
}

func boolPtr(b bool) *bool { return &b }

func TestBadgerRepository_LinkCRUD(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	older := domain.NewLink("https://example.com/page1")
	older.CreatedAt -= 3600
	older.Title = domain.StringPtr("Example Page 1")
	newer := domain.NewLink("https://example.com/page2")
	newer.Note = domain.StringPtr("   ")

	require.NoError(t, repo.InsertLink(ctx, older))
	require.NoError(t, repo.InsertLink(ctx, newer))

	err := repo.InsertLink(ctx, older)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	links, err := repo.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, newer.ID, links[0].ID, "newest first")
	assert.Equal(t, older.ID, links[1].ID)
	assert.Nil(t, links[0].Note, "blank note is stored as nil")

	got, err := repo.Link(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.ContentEquals(older))
	assert.True(t, got.IsSameIdentity(older))

	older.Title = domain.StringPtr("Updated Title")
	older.Starred = true
	require.NoError(t, repo.UpdateLink(ctx, older))
	got, err = repo.Link(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", *got.Title)
	assert.True(t, got.Starred)

	missing := domain.NewLink("https://example.com/missing")
	assert.ErrorIs(t, repo.UpdateLink(ctx, missing), ErrNotFound)
	_, err = repo.Link(ctx, missing.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.DeleteLink(ctx, older.ID))
	assert.ErrorIs(t, repo.DeleteLink(ctx, older.ID), ErrNotFound)

	links, err = repo.Links(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, newer.ID, links[0].ID)
}

func TestBadgerRepository_FindLinks(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	group := domain.NewGroup("Reading", "book")
	tag := domain.NewTag("golang")

	a := domain.NewLink("https://go.dev/blog")
	a.Title = domain.StringPtr("The Go Blog")
	a.Starred = true
	a.Tags = []domain.Tag{tag}
	b := domain.NewLink("https://example.com/recipe")
	b.Group = &group
	b.SetNote("Try the GO-TO pasta")
	c := domain.NewLink("https://example.org")
	c.Archived = true
	c.Unread = false

	for _, l := range []domain.Link{a, b, c} {
		require.NoError(t, repo.InsertLink(ctx, l))
	}

	tests := []struct {
		name   string
		filter LinkFilter
		want   []uuid.UUID
	}{
		{"starred", LinkFilter{Starred: boolPtr(true)}, []uuid.UUID{a.ID}},
		{"archived", LinkFilter{Archived: boolPtr(true)}, []uuid.UUID{c.ID}},
		{"read", LinkFilter{Unread: boolPtr(false)}, []uuid.UUID{c.ID}},
		{"group", LinkFilter{GroupID: &group.ID}, []uuid.UUID{b.ID}},
		{"tag", LinkFilter{TagID: &tag.ID}, []uuid.UUID{a.ID}},
		{"query title and note", LinkFilter{Query: "go"}, []uuid.UUID{a.ID, b.ID}},
		{"query url", LinkFilter{Query: "example.org"}, []uuid.UUID{c.ID}},
		{"no match", LinkFilter{Query: "nothing"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := repo.FindLinks(ctx, tt.filter)
			require.NoError(t, err)
			var ids []uuid.UUID
			for _, l := range links {
				ids = append(ids, l.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestBadgerRepository_TagUniqueness(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	goTag := domain.NewTag("Go")
	webTag := domain.NewTag("web")
	require.NoError(t, repo.InsertTag(ctx, goTag))
	require.NoError(t, repo.InsertTag(ctx, webTag))

	assert.ErrorIs(t, repo.InsertTag(ctx, domain.NewTag("go")), ErrDuplicateName)
	assert.ErrorIs(t, repo.InsertTag(ctx, goTag), ErrAlreadyExists)

	renamed := webTag
	renamed.Name = "GO"
	assert.ErrorIs(t, repo.UpdateTag(ctx, renamed), ErrDuplicateName)

	renamed.Name = "frontend"
	require.NoError(t, repo.UpdateTag(ctx, renamed))
	// The old name is free again.
	require.NoError(t, repo.InsertTag(ctx, domain.NewTag("web")))

	tags, err := repo.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "frontend", tags[0].Name)
	assert.Equal(t, "Go", tags[1].Name)

	require.NoError(t, repo.DeleteTag(ctx, goTag.ID))
	assert.ErrorIs(t, repo.DeleteTag(ctx, goTag.ID), ErrNotFound)
	require.NoError(t, repo.InsertTag(ctx, domain.NewTag("go")), "deleted name can be reused")

	_, err = repo.Tag(ctx, goTag.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerRepository_GroupCRUD(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	work := domain.NewGroup("Work", "briefcase")
	require.NoError(t, repo.InsertGroup(ctx, work))
	assert.ErrorIs(t, repo.InsertGroup(ctx, domain.NewGroup("work", "")), ErrDuplicateName)

	work.IconName = "folder"
	require.NoError(t, repo.UpdateGroup(ctx, work), "updating without renaming keeps the name index")

	got, err := repo.Group(ctx, work.ID)
	require.NoError(t, err)
	assert.True(t, got.ContentEquals(work))

	assert.ErrorIs(t, repo.UpdateGroup(ctx, domain.NewGroup("Ghost", "")), ErrNotFound)

	require.NoError(t, repo.DeleteGroup(ctx, work.ID))
	groups, err := repo.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestBadgerRepository_ConcurrentWrites(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.InsertLink(ctx, domain.NewLink("https://example.com/concurrent")))
		}()
	}
	wg.Wait()

	links, err := repo.Links(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 20)
}
