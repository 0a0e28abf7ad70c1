package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// LevelDB key scheme. "|" separates parts; user ids are sanitized so keys
// parse unambiguously.
//
//	rec|<id>            -> record JSON (content, embedding, expiry)
//	usr|<user>|<id>     -> nil (per-user scan index)
const (
	prefixRecord = "rec|"
	prefixUser   = "usr|"
)

// record is the persisted form of one memory entry.
type record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	Importance float64   `json:"importance"`
	Refs       []string  `json:"refs,omitempty"`
	Embedding  []float64 `json:"embedding"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// Store is the LevelDB-backed memory engine. A single Store owns the
// database directory (LevelDB is single-writer).
type Store struct {
	db       *leveldb.DB
	embedder Embedder
	now      func() time.Time
}

// NewStore opens (or creates) the LevelDB database at dbPath.
func NewStore(dbPath string, embedder Embedder) (*Store, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("opening memory store at %s: %w", dbPath, err)
	}
	return &Store{db: db, embedder: embedder, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Store persists one memory entry and returns its id. A ttlDays of zero
// means the entry never expires.
func (s *Store) Store(ctx context.Context, content, typ string, importance float64, ttlDays int, refs []string, userID string) (string, error) {
	vectors, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return "", fmt.Errorf("embedding memory content: %w", err)
	}

	rec := record{
		ID:         uuid.New().String(),
		UserID:     userID,
		Content:    content,
		Type:       typ,
		Importance: importance,
		Refs:       refs,
		Embedding:  vectors[0],
		CreatedAt:  s.now().UTC(),
	}
	if ttlDays > 0 {
		rec.ExpiresAt = rec.CreatedAt.AddDate(0, 0, ttlDays)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshaling memory record: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(prefixRecord+rec.ID), data)
	batch.Put([]byte(userKey(userID, rec.ID)), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return "", fmt.Errorf("persisting memory record: %w", err)
	}
	return rec.ID, nil
}

// Recall returns up to limit records whose cosine similarity to the query
// meets minSimilarity, best first. With a userID only that user's records
// are scanned; without one all records are.
func (s *Store) Recall(ctx context.Context, query, userID string, limit int, minSimilarity float64) ([]schema.MemoryRecord, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding recall query: %w", err)
	}
	queryVec := vectors[0]

	now := s.now().UTC()
	var scored []schema.MemoryRecord

	scan := func(rec record) {
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now) {
			return
		}
		sim := cosine(queryVec, rec.Embedding)
		if sim < minSimilarity {
			return
		}
		scored = append(scored, schema.MemoryRecord{
			ID:         rec.ID,
			Content:    rec.Content,
			Type:       rec.Type,
			Importance: rec.Importance,
			Similarity: sim,
			Refs:       rec.Refs,
			CreatedAt:  rec.CreatedAt.Format("2006-01-02"),
		})
	}

	if userID != "" {
		prefix := prefixUser + safeKeyPart(userID) + "|"
		iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			id := string(iter.Key())[len(prefix):]
			rec, err := s.fetch(id)
			if err != nil {
				continue
			}
			scan(rec)
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return nil, err
		}
	} else {
		iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixRecord)), nil)
		for iter.Next() {
			var rec record
			if err := json.Unmarshal(iter.Value(), &rec); err != nil {
				continue
			}
			scan(rec)
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return nil, err
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Suggest derives up to max store candidates from retrieved documents.
// Importance is the document score clamped to [0, 1]; no I/O involved.
func (s *Store) Suggest(docs []retrieval.Document, max int) []schema.MemorySuggestion {
	out := make([]schema.MemorySuggestion, 0, max)
	for _, doc := range docs {
		if len(out) >= max {
			break
		}
		if doc.Title == "" {
			continue
		}
		content := doc.Title
		if doc.Snippet != "" {
			content += ": " + doc.Snippet
		}
		importance := doc.Score
		if importance < 0 {
			importance = 0
		}
		if importance > 1 {
			importance = 1
		}
		out = append(out, schema.MemorySuggestion{
			Content:    schema.Truncate(content, 240),
			Type:       "article_note",
			Importance: importance,
		})
	}
	return out
}

// Sweep hard-deletes expired records and reports (scanned, deleted).
func (s *Store) Sweep() (scanned, deleted int) {
	now := s.now().UTC()
	var expired []record

	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixRecord)), nil)
	for iter.Next() {
		scanned++
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now) {
			expired = append(expired, rec)
		}
	}
	iter.Release()

	for _, rec := range expired {
		batch := new(leveldb.Batch)
		batch.Delete([]byte(prefixRecord + rec.ID))
		batch.Delete([]byte(userKey(rec.UserID, rec.ID)))
		if err := s.db.Write(batch, nil); err != nil {
			slog.Warn("Memory sweep delete failed", "id", rec.ID, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("Memory sweep complete", "scanned", scanned, "deleted", deleted)
	}
	return scanned, deleted
}

// Run sweeps expired records periodically until the context is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) fetch(id string) (record, error) {
	data, err := s.db.Get([]byte(prefixRecord+id), nil)
	if err != nil {
		return record{}, err
	}
	var rec record
	return rec, json.Unmarshal(data, &rec)
}

func userKey(userID, id string) string {
	return prefixUser + safeKeyPart(userID) + "|" + id
}

func safeKeyPart(s string) string {
	return strings.ReplaceAll(s, "|", "_")
}
