package agent

import (
	"context"

	"notechat/internal/domain"
	"notechat/internal/generation"
)

// Input is what a pipeline gets besides the query.
type Input struct {
	// History is the transcript before the new user message.
	History []domain.ChatMessage
}

// Run is an opened answer: the notes it is grounded on, if any, and its stream.
type Run struct {
	Sources []domain.Source
	Stream  generation.Stream
}

// Pipeline builds a generation request for one agent and opens it.
type Pipeline interface {
	Run(ctx context.Context, query string, in Input) (*Run, error)
}

// Registry maps agent IDs to pipelines.
type Registry map[ID]Pipeline

// NewRegistry wires the three agents to gen. Notes answers are ranked over corpus.
func NewRegistry(gen generation.Generator, corpus Corpus) Registry {
	return Registry{
		SmartChat: NewChat(gen),
		Notes:     NewNotes(gen, corpus),
		WebSearch: NewWeb(gen),
	}
}

// Lookup returns the pipeline for id.
func (r Registry) Lookup(id ID) (Pipeline, bool) {
	p, ok := r[id]
	return p, ok
}
