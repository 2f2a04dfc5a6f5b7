package report

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tootsearch/tootsearch/internal/models"
	"github.com/tootsearch/tootsearch/internal/search"
	"github.com/tootsearch/tootsearch/internal/store"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected Category
		wantErr  bool
	}{
		{input: "replies", expected: CategoryReplies},
		{input: "boosts", expected: CategoryBoosts},
		{input: "favourites", expected: CategoryFavourites},
		{input: "favorites", expected: CategoryFavourites},
		{input: "faves", expected: CategoryFavourites},
		{input: "views", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormat(t *testing.T) {
	r := New(nil, nil, 70)
	status := &models.Status{
		ID:              1,
		URL:             "https://example.social/@alice/1",
		Account:         "alice",
		SpoilerText:     "long post",
		Content:         "<p>first</p><p>second</p>",
		CreatedAt:       time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		RepliesCount:    1,
		ReblogsCount:    2,
		FavouritesCount: 3,
		Attachments: models.Attachments{
			{Type: "image"}, {Type: "image"}, {Type: "video"},
		},
	}

	expected := []string{
		"Account: alice",
		"Date: 2025-06-01 12:30 UTC",
		"URL: https://example.social/@alice/1",
		"Spoiler: long post",
		"Attached: 2 image, 1 video",
		"",
		"first",
		"",
		"second",
		"",
		"Replies: 1  Boosts: 2  Faves: 3",
	}
	assert.Equal(t, expected, r.Format(status))
}

func TestFormatEmptyBodyCollapses(t *testing.T) {
	r := New(nil, nil, 70)
	status := &models.Status{
		ID:        2,
		URL:       "https://example.social/@alice/2",
		Account:   "alice",
		Content:   "",
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}

	expected := []string{
		"Account: alice",
		"Date: 2025-06-01 12:30 UTC",
		"URL: https://example.social/@alice/2",
		"",
		"Replies: 0  Boosts: 0  Faves: 0",
	}
	assert.Equal(t, expected, r.Format(status))
}

func TestTopStatuses(t *testing.T) {
	statuses := []models.Status{
		{ID: 1, FavouritesCount: 1},
		{ID: 2, FavouritesCount: 5},
		{ID: 3, FavouritesCount: 3},
		{ID: 4, FavouritesCount: 9},
		{ID: 5, FavouritesCount: 2},
	}

	top := TopStatuses(statuses, CategoryFavourites, 2)
	require.Len(t, top, 2)
	assert.Equal(t, 5, top[0].FavouritesCount)
	assert.Equal(t, 9, top[1].FavouritesCount)
}

func TestTopStatusesTieBreaksOnID(t *testing.T) {
	statuses := []models.Status{
		{ID: 30, ReblogsCount: 4},
		{ID: 10, ReblogsCount: 4},
		{ID: 20, ReblogsCount: 4},
	}

	top := TopStatuses(statuses, CategoryBoosts, 0)
	ids := []int64{top[0].ID, top[1].ID, top[2].ID}
	assert.Equal(t, []int64{10, 20, 30}, ids)
}

func newTestArchive(t *testing.T) (*store.Store, *search.Index) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "archive.db")
	require.NoError(t, store.Initialize(dbPath, false))
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx, err := search.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return st, idx
}

func TestSearchRendersMatches(t *testing.T) {
	st, idx := newTestArchive(t)
	ctx := context.Background()

	status := &models.Status{
		ID:        1,
		URL:       "https://example.social/@alice/1",
		Account:   "alice",
		Content:   "<p>a rare needle</p>",
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}
	require.NoError(t, st.Insert(ctx, status))
	require.NoError(t, idx.Upsert(ctx, search.Document{ID: 1, Account: "alice", Content: "a rare needle"}))

	var buf bytes.Buffer
	r := New(st, idx, 70)
	require.NoError(t, r.Search(ctx, "needle", &buf))

	out := buf.String()
	assert.Contains(t, out, strings.Repeat("-", 70))
	assert.Contains(t, out, "Account: alice")
	assert.Contains(t, out, "a rare needle")
}

func TestSearchSkipsDivergentIndexEntries(t *testing.T) {
	st, idx := newTestArchive(t)
	ctx := context.Background()

	status := &models.Status{
		ID:        1,
		URL:       "https://example.social/@alice/1",
		Account:   "alice",
		Content:   "<p>kept needle</p>",
		CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}
	require.NoError(t, st.Insert(ctx, status))
	require.NoError(t, idx.Upsert(ctx, search.Document{ID: 1, Content: "kept needle"}))
	// Index entry with no archive record behind it.
	require.NoError(t, idx.Upsert(ctx, search.Document{ID: 99, Content: "orphaned needle"}))

	var buf bytes.Buffer
	r := New(st, idx, 70)
	require.NoError(t, r.Search(ctx, "needle", &buf), "divergence must not abort the query")

	assert.Contains(t, buf.String(), "kept needle")
	assert.NotContains(t, buf.String(), "orphaned")
}

func TestTopWritesAscending(t *testing.T) {
	st, idx := newTestArchive(t)
	ctx := context.Background()

	for i, faves := range []int{1, 9, 5} {
		require.NoError(t, st.Insert(ctx, &models.Status{
			ID:              int64(i + 1),
			URL:             "https://example.social/@alice/1",
			Account:         "alice",
			Content:         "<p>post</p>",
			CreatedAt:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			FavouritesCount: faves,
		}))
	}

	var buf bytes.Buffer
	r := New(st, idx, 70)
	require.NoError(t, r.Top(ctx, CategoryFavourites, 2, &buf))

	out := buf.String()
	first := strings.Index(out, "Faves: 5")
	second := strings.Index(out, "Faves: 9")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second, "top entry should print last")
}

func TestAttachmentSummary(t *testing.T) {
	tests := []struct {
		name        string
		attachments models.Attachments
		expected    string
	}{
		{name: "none", attachments: nil, expected: ""},
		{
			name:        "single",
			attachments: models.Attachments{{Type: "image"}},
			expected:    "1 image",
		},
		{
			name: "grouped in first-seen order",
			attachments: models.Attachments{
				{Type: "video"}, {Type: "image"}, {Type: "video"},
			},
			expected: "2 video, 1 image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, attachmentSummary(tt.attachments))
		})
	}
}
