package agent

import (
	"context"

	"notechat/internal/domain"
	"notechat/internal/generation"
	"notechat/internal/textvec"
)

// Chat answers conversationally, recalling the prior messages most similar to the query.
type Chat struct {
	gen generation.Generator
}

func NewChat(gen generation.Generator) *Chat { return &Chat{gen: gen} }

func (c *Chat) Run(ctx context.Context, query string, in Input) (*Run, error) {
	recalled := textvec.RankHistory(query, in.History)
	turns := make([]domain.Turn, len(recalled))
	for i, m := range recalled {
		turns[i] = domain.Turn{Role: m.Role, Content: m.Content}
	}
	s, err := c.gen.Stream(ctx, generation.Request{History: turns, Prompt: query})
	if err != nil {
		return nil, err
	}
	return &Run{Stream: s}, nil
}

// Web answers from an external web search.
type Web struct {
	gen generation.Generator
}

func NewWeb(gen generation.Generator) *Web { return &Web{gen: gen} }

func (w *Web) Run(ctx context.Context, query string, _ Input) (*Run, error) {
	s, err := w.gen.Stream(ctx, generation.Request{Prompt: query, WebSearch: true})
	if err != nil {
		return nil, err
	}
	return &Run{Stream: s}, nil
}
