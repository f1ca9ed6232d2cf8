package textvec

import (
	"fmt"
	"sort"

	"notechat/internal/domain"
)

const (
	// NoiseThreshold is the score at or below which a document never ranks.
	NoiseThreshold = 0.01
	// HistoryLimit is the number of prior messages recalled for a new query.
	HistoryLimit = 5
)

// Candidate pairs an item with its precomputed vector.
type Candidate[T any] struct {
	Item   T
	Vector Vector
}

// Ranked pairs an item with its similarity to a query.
type Ranked[T any] struct {
	Item  T
	Score float64
	// Pos is the candidate's position in the input slice.
	Pos int
}

// Rank scores candidates against query and returns them by descending score,
// ties kept in input order. Candidates scoring at or below minScore are dropped
// unless minScore is negative. topK <= 0 means no cap.
func Rank[T any](query Vector, candidates []Candidate[T], minScore float64, topK int) []Ranked[T] {
	out := make([]Ranked[T], 0, len(candidates))
	for i, c := range candidates {
		score := Cosine(query, c.Vector)
		if minScore >= 0 && score <= minScore {
			continue
		}
		out = append(out, Ranked[T]{Item: c.Item, Score: score, Pos: i})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// RankDocuments ranks documents against a free-text query. A query with no
// tokens left after normalization yields no results.
func RankDocuments[T any](query string, docs []Candidate[T]) []Ranked[T] {
	qv := Vectorize(query)
	if len(qv) == 0 {
		return nil
	}
	return Rank(qv, docs, NoiseThreshold, 0)
}

// RankHistory returns up to HistoryLimit prior messages most similar to query,
// in their original transcript order. Each message is scored as "role: content".
func RankHistory(query string, history []domain.ChatMessage) []domain.ChatMessage {
	qv := Vectorize(query)
	if len(qv) == 0 || len(history) == 0 {
		return nil
	}
	candidates := make([]Candidate[domain.ChatMessage], len(history))
	for i, msg := range history {
		candidates[i] = Candidate[domain.ChatMessage]{
			Item:   msg,
			Vector: Vectorize(fmt.Sprintf("%s: %s", msg.Role, msg.Content)),
		}
	}
	top := Rank(qv, candidates, -1, HistoryLimit)
	// Keep original order among selected
	sort.Slice(top, func(i, j int) bool { return top[i].Pos < top[j].Pos })
	out := make([]domain.ChatMessage, len(top))
	for i, r := range top {
		out[i] = r.Item
	}
	return out
}
