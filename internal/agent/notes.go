package agent

import (
	"context"
	"fmt"
	"strings"

	"notechat/internal/domain"
	"notechat/internal/generation"
	"notechat/internal/textvec"
)

// MaxSources caps the notes placed into a grounded prompt.
const MaxSources = 5

// Corpus yields the note collection with vectors ready for ranking.
type Corpus interface {
	Candidates(ctx context.Context) ([]textvec.Candidate[domain.Note], error)
}

// NotesAgent answers only from the user's notes.
type NotesAgent struct {
	gen    generation.Generator
	corpus Corpus
}

func NewNotes(gen generation.Generator, corpus Corpus) *NotesAgent {
	return &NotesAgent{gen: gen, corpus: corpus}
}

// Run ranks the corpus, then asks for an answer grounded on the best notes.
// An empty selection still goes out so the model can say the notes lack the answer.
func (a *NotesAgent) Run(ctx context.Context, query string, _ Input) (*Run, error) {
	cands, err := a.corpus.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	ranked := textvec.RankDocuments(query, cands)
	if len(ranked) > MaxSources {
		ranked = ranked[:MaxSources]
	}
	sources := make([]domain.Source, len(ranked))
	selected := make([]domain.Note, len(ranked))
	for i, r := range ranked {
		selected[i] = r.Item
		sources[i] = domain.Source{NoteID: r.Item.ID, Title: r.Item.Title, Path: r.Item.Path, Score: r.Score}
	}
	s, err := a.gen.Stream(ctx, generation.Request{Prompt: GroundedPrompt(query, selected)})
	if err != nil {
		return nil, err
	}
	return &Run{Sources: sources, Stream: s}, nil
}

// GroundedPrompt numbers notes from 1 in the given order and embeds them with the query.
func GroundedPrompt(query string, notes []domain.Note) string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions about the user's personal notes.\n")
	b.WriteString("Answer using only the notes below. Do not use outside knowledge.\n")
	b.WriteString("If the notes do not contain the answer, say that the information is not available in the provided notes.\n")
	b.WriteString(`At the very end of your answer, list the notes you used by number, like this: "Sources: [1], [3]".`)
	b.WriteString("\n\nNotes:\n---\n")
	for i, n := range notes {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%d] File: %s\nTitle: %s\n%s\n", i+1, n.Path, n.Title, strings.TrimSpace(n.Content))
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Question: %q", query)
	return b.String()
}
