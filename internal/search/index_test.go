package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestUpsertAndSearch(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	docs := []Document{
		{ID: 1, Account: "alice", Content: "the quick brown fox"},
		{ID: 2, Account: "alice", Content: "jumped over the lazy dog"},
		{ID: 3, Account: "alice", SpoilerText: "animals", Content: "a slow red fox"},
	}
	for _, doc := range docs {
		require.NoError(t, idx.Upsert(ctx, doc))
	}

	ids, err := idx.Search(ctx, "fox")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, ids)

	ids, err = idx.Search(ctx, "dog")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	// Spoiler text is searchable too.
	ids, err = idx.Search(ctx, "animals")
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)

	ids, err = idx.Search(ctx, "nothing-here-matches")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUpsertReplacesByID(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Document{ID: 9, Content: "original words"}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: 9, Content: "replacement text"}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ids, err := idx.Search(ctx, "original")
	require.NoError(t, err)
	assert.Empty(t, ids, "stale document version should be gone")

	ids, err = idx.Search(ctx, "replacement")
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, ids)
}

func TestSearchQuerySanitized(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Document{ID: 1, Content: "plain words"}))

	// FTS5 operators and syntax characters in user input must not break
	// the query.
	for _, query := range []string{`words AND`, `"unbalanced`, `col:umn`, `(paren`, `w*`} {
		if _, err := idx.Search(ctx, query); err != nil {
			t.Errorf("Search(%q) returned error: %v", query, err)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := openTestIndex(t)

	ids, err := idx.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, Document{ID: 5, Content: "persistent"}))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.Search(ctx, "persistent")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
}
