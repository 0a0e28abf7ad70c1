package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newslens/newslens/pkg/retrieval"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), NewHashEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAndRecall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Store(ctx, "AI adoption is accelerating in finance", "fact", 0.8, 0, []string{"d1"}, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = s.Store(ctx, "quarterly earnings call transcript archive", "note", 0.3, 0, nil, "alice")
	require.NoError(t, err)

	records, err := s.Recall(ctx, "AI adoption finance", "alice", 5, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, 0.8, records[0].Importance)
	assert.Greater(t, records[0].Similarity, 0.3)
}

func TestRecallRespectsUserScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "alice private memo about AI adoption", "note", 0.5, 0, nil, "alice")
	require.NoError(t, err)

	records, err := s.Recall(ctx, "AI adoption", "bob", 5, 0.1)
	require.NoError(t, err)
	assert.Empty(t, records)

	all, err := s.Recall(ctx, "AI adoption", "", 5, 0.1)
	require.NoError(t, err)
	assert.NotEmpty(t, all)
}

func TestRecallMinSimilarityFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "completely unrelated gardening tips", "note", 0.5, 0, nil, "alice")
	require.NoError(t, err)

	records, err := s.Recall(ctx, "AI adoption finance", "alice", 5, 0.9)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSweepDeletesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "short lived memo", "note", 0.5, 1, nil, "alice")
	require.NoError(t, err)
	_, err = s.Store(ctx, "permanent memo", "note", 0.5, 0, nil, "alice")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().AddDate(0, 0, 2) }

	scanned, deleted := s.Sweep()
	assert.Equal(t, 2, scanned)
	assert.Equal(t, 1, deleted)

	records, err := s.Recall(ctx, "memo", "alice", 5, 0.0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "permanent memo", records[0].Content)
}

func TestSuggestFromDocuments(t *testing.T) {
	s := newTestStore(t)
	docs := []retrieval.Document{
		{Title: "AI survey", Snippet: "adoption grows", Score: 0.9},
		{Title: "", Snippet: "untitled doc skipped", Score: 0.8},
		{Title: "Chips report", Snippet: "supply stabilizes", Score: 1.7},
		{Title: "Extra", Snippet: "beyond cap", Score: 0.2},
	}

	out := s.Suggest(docs, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "AI survey: adoption grows", out[0].Content)
	assert.Equal(t, 0.9, out[0].Importance)
	assert.Equal(t, 1.0, out[1].Importance, "score clamped to 1")
}
