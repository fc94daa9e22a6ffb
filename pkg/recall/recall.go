// Package recall implements the local-context augmentation step of the
// `Search()` built-in (spec.md §4.4): an in-process chromem-go collection
// seeded by prior Search results and Checkpointed context within a single
// session, consulted before the call delegates to Provider.Search.
package recall

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

// Store wraps a single in-memory chromem-go collection scoped to one
// interpreter session. A nil *Store is safe to use — every method becomes
// a no-op, so recall is optional ambient enrichment, never a hard
// dependency for Search() to function.
type Store struct {
	db   *chromem.DB
	coll *chromem.Collection
}

// New creates an in-memory recall store with a naive embedding function
// (no outbound network calls, matching the offline-first stub-Provider test
// path): documents are embedded as a bag-of-character-trigram vector.
func New() *Store {
	db := chromem.NewDB()
	coll, err := db.GetOrCreateCollection("session", nil, trigramEmbed)
	if err != nil {
		return &Store{}
	}
	return &Store{db: db, coll: coll}
}

// Remember indexes a passage (a prior Search result, or Checkpointed
// implicit_context) for later recall within the same session.
func (s *Store) Remember(ctx context.Context, id, text string) {
	if s == nil || s.coll == nil || text == "" {
		return
	}
	doc := chromem.Document{ID: id, Content: text}
	_ = s.coll.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

// Related returns up to n passages most similar to query, best similarity
// first. Returns nil if nothing has been remembered yet.
func (s *Store) Related(ctx context.Context, query string, n int) []string {
	if s == nil || s.coll == nil || s.coll.Count() == 0 {
		return nil
	}
	if n > s.coll.Count() {
		n = s.coll.Count()
	}
	if n <= 0 {
		return nil
	}
	results, err := s.coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out
}

// trigramEmbed is a deterministic, dependency-free embedding: each
// character trigram of the (lowercased) text hashes into one of 256
// buckets, producing a fixed-width vector suitable for chromem-go's cosine
// similarity search without any network embedding API.
func trigramEmbed(ctx context.Context, text string) ([]float32, error) {
	const dims = 256
	vec := make([]float32, dims)
	runes := []rune(text)
	for i := 0; i+2 < len(runes); i++ {
		tri := fmt.Sprintf("%c%c%c", runes[i], runes[i+1], runes[i+2])
		vec[hashBucket(tri, dims)]++
	}
	return vec, nil
}

func hashBucket(s string, buckets int) int {
	var h uint32 = 2166136261
	for _, b := range []byte(s) {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h) % buckets
}
