package bot

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkstash/internal/domain"
	"linkstash/internal/pipeline"
	"linkstash/internal/storage"
)

// fakeSaver stores links straight into the repository.
type fakeSaver struct {
	repo    storage.Repository
	err     error
	saved   []domain.Link
	deleted []domain.Link
}

func (s *fakeSaver) EnrichAndInsert(ctx context.Context, links []domain.Link) ([]pipeline.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	outcomes := make([]pipeline.Outcome, len(links))
	for i, link := range links {
		outcomes[i] = pipeline.Outcome{Link: link, Metadata: pipeline.MetadataFetched}
		if strings.Contains(link.URL, "fail") {
			outcomes[i].Persist = pipeline.PersistFailed
			continue
		}
		if err := s.repo.InsertLink(ctx, link); err != nil {
			outcomes[i].Persist = pipeline.PersistFailed
			outcomes[i].PersistErr = err
			continue
		}
		outcomes[i].Persist = pipeline.Persisted
		s.saved = append(s.saved, link)
	}
	return outcomes, nil
}

func (s *fakeSaver) Delete(ctx context.Context, link domain.Link) error {
	s.deleted = append(s.deleted, link)
	return s.repo.DeleteLink(ctx, link.ID)
}

func setupHandler(t *testing.T) (*Handler, *fakeSaver) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo, err := storage.NewBadgerRepository(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repo.Close()) })

	saver := &fakeSaver{repo: repo}
	return &Handler{saver: saver, repo: repo, log: logger}, saver
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "none", text: "hello there", want: nil},
		{name: "single", text: "look https://go.dev/blog", want: []string{"https://go.dev/blog"}},
		{
			name: "punctuation and duplicates",
			text: "(https://a.example/x), see https://a.example/x. and http://b.example!",
			want: []string{"https://a.example/x", "http://b.example"},
		},
		{name: "other schemes", text: "ftp://files.example mailto:me@example.com", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text))
		})
	}
}

func TestFormatLinks(t *testing.T) {
	assert.Equal(t, "No links saved yet.", FormatLinks(nil, 10))

	a := domain.NewLink("https://a.example")
	a.Title = domain.StringPtr("Alpha")
	a.Starred = true
	b := domain.NewLink("https://b.example")
	c := domain.NewLink("https://c.example")

	out := FormatLinks([]domain.Link{a, b, c}, 2)
	assert.Contains(t, out, "★ Alpha\nhttps://a.example\nid: "+a.ID.String())
	assert.Contains(t, out, "https://b.example\nhttps://b.example")
	assert.NotContains(t, out, "https://c.example")
	assert.True(t, strings.HasSuffix(out, "and 1 more"))
}

func TestSaveReply(t *testing.T) {
	h, saver := setupHandler(t)

	reply := h.saveReply(context.Background(), []string{"https://ok.example", "https://fail.example"})
	assert.Equal(t, "Saved: https://ok.example\nFailed to save: https://fail.example", reply)
	assert.Len(t, saver.saved, 1)

	saver.err = errors.New("pipeline closed")
	reply = h.saveReply(context.Background(), []string{"https://ok.example"})
	assert.Contains(t, reply, "couldn't save")
}

func TestListAndDeleteReply(t *testing.T) {
	h, saver := setupHandler(t)
	ctx := context.Background()

	assert.Equal(t, "No links saved yet.", h.listReply(ctx))
	h.saveReply(ctx, []string{"https://ok.example"})
	saved := saver.saved[0]
	assert.Contains(t, h.listReply(ctx), saved.ID.String())

	assert.Contains(t, h.deleteReply(ctx, "not-an-id"), "Usage")
	assert.Equal(t, "No link with that id.", h.deleteReply(ctx, "6f1c2c7e-8a43-4b55-9d1e-1d1b4a9f8a11"))
	assert.Equal(t, "Deleted: https://ok.example", h.deleteReply(ctx, saved.ID.String()))
	require.Len(t, saver.deleted, 1)
	assert.Equal(t, saved.ID, saver.deleted[0].ID)
	assert.Equal(t, "No links saved yet.", h.listReply(ctx))
}
