package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientRetrieve(t *testing.T) {
	var gotQuery Query
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		_ = json.NewEncoder(w).Encode(searchResponse{Documents: []Document{
			{ArticleID: "d1", Title: "A", URL: "https://a.example.com/1", Date: "2026-08-01", Snippet: "s", Score: 0.9},
			{ArticleID: "d2", Title: "B", URL: "https://b.example.com/2", Date: "2026-08-02", Snippet: "s", Score: 0.7},
		}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	docs, err := c.Retrieve(context.Background(), Query{Text: "ai adoption", Window: "7d", Lang: "en", KFinal: 5, UseRerank: true})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ArticleID, "order preserved from backend")
	assert.Equal(t, "ai adoption", gotQuery.Text)
	assert.Equal(t, 5, gotQuery.KFinal)
}

func TestHTTPClientRetrieveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Retrieve(context.Background(), Query{Text: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheKeyDeterministicAndSensitive(t *testing.T) {
	q := Query{Text: "ai", Window: "7d", Lang: "en", KFinal: 5, UseRerank: true, Sources: []string{"a", "b"}}
	assert.Equal(t, CacheKey(q), CacheKey(q))

	q2 := q
	q2.KFinal = 6
	assert.NotEqual(t, CacheKey(q), CacheKey(q2))

	q3 := q
	q3.Sources = []string{"a"}
	assert.NotEqual(t, CacheKey(q), CacheKey(q3))
}

func TestDedupeFirstSeenWins(t *testing.T) {
	base := []Document{
		{ArticleID: "d1", URL: "https://a/1", Score: 0.9},
		{ArticleID: "d2", URL: "https://a/2", Score: 0.8},
	}
	extra := []Document{
		{ArticleID: "d1", URL: "https://a/1", Score: 0.1}, // duplicate
		{ArticleID: "d3", URL: "https://a/3", Score: 0.7},
	}

	merged := Dedupe(base, extra)
	require.Len(t, merged, 3)
	assert.Equal(t, 0.9, merged[0].Score, "first seen wins")
	assert.Equal(t, "d3", merged[2].ArticleID)
}
