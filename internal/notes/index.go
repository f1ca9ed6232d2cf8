package notes

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"notechat/internal/domain"
	"notechat/internal/textvec"
)

// Index serves ranking candidates for a note store, caching each note's vector
// until its title or content changes.
type Index struct {
	store domain.NoteStore
	cache *cache.Cache
}

// NewIndex wraps store. Cached vectors not used for ttl are evicted.
func NewIndex(store domain.NoteStore, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Index{store: store, cache: cache.New(ttl, 2*ttl)}
}

// Candidates lists the store and pairs every note with its vector.
func (ix *Index) Candidates(ctx context.Context) ([]textvec.Candidate[domain.Note], error) {
	list, err := ix.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]textvec.Candidate[domain.Note], len(list))
	for i, n := range list {
		out[i] = textvec.Candidate[domain.Note]{Item: n, Vector: ix.vector(n)}
	}
	return out, nil
}

func (ix *Index) vector(n domain.Note) textvec.Vector {
	key := cacheKey(n)
	if v, found := ix.cache.Get(key); found {
		ix.cache.Set(key, v, cache.DefaultExpiration)
		return v.(textvec.Vector)
	}
	v := textvec.Vectorize(n.Title + " " + n.Content)
	ix.cache.Set(key, v, cache.DefaultExpiration)
	return v
}

// Cached returns the number of vectors held.
func (ix *Index) Cached() int { return ix.cache.ItemCount() }

func cacheKey(n domain.Note) string {
	h := sha1.New()
	h.Write([]byte(n.Title))
	h.Write([]byte{0})
	h.Write([]byte(n.Content))
	return n.ID + "#" + hex.EncodeToString(h.Sum(nil))
}
