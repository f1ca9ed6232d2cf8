package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notechat/internal/agent"
	"notechat/internal/chat"
	"notechat/internal/domain"
	"notechat/internal/generation"
)

type scriptStream struct {
	frags  []domain.Fragment
	tail   error
	closed bool
	// onRecv runs before each Recv returns.
	onRecv func(i int)
	i      int
}

func (s *scriptStream) Recv() (domain.Fragment, error) {
	if s.onRecv != nil {
		s.onRecv(s.i)
	}
	if s.i < len(s.frags) {
		f := s.frags[s.i]
		s.i++
		return f, nil
	}
	if s.tail != nil {
		return domain.Fragment{}, s.tail
	}
	return domain.Fragment{}, io.EOF
}

func (s *scriptStream) Close() error {
	s.closed = true
	return nil
}

type pipelineFunc func(ctx context.Context, query string, in agent.Input) (*agent.Run, error)

func (f pipelineFunc) Run(ctx context.Context, query string, in agent.Input) (*agent.Run, error) {
	return f(ctx, query, in)
}

func newRouter(id agent.ID, p agent.Pipeline) *Router {
	return NewRouter(agent.Registry{id: p}, zap.NewNop())
}

func TestDispatchStreamsReply(t *testing.T) {
	agg := chat.NewAggregator([]domain.ChatMessage{{ID: "old", Role: domain.RoleUser, Content: "earlier"}}, nil)
	stream := &scriptStream{frags: []domain.Fragment{{Text: "Hel"}, {Text: "lo"}}}
	var gotIn agent.Input
	var sawSources bool
	agg.OnChange(func(ev chat.Event) {
		if ev.Kind == chat.EventUpdated && !sawSources {
			snap := agg.Snapshot()
			last := snap[len(snap)-1]
			assert.Len(t, last.Sources, 1, "sources must be applied before any fragment")
			assert.Empty(t, last.Content)
			sawSources = true
		}
	})
	r := newRouter(agent.Notes, pipelineFunc(func(_ context.Context, q string, in agent.Input) (*agent.Run, error) {
		assert.Equal(t, "question", q)
		gotIn = in
		return &agent.Run{Sources: []domain.Source{{NoteID: "n1", Title: "N1"}}, Stream: stream}, nil
	}))

	require.NoError(t, r.Dispatch(context.Background(), agent.Notes, "question", agg))

	assert.False(t, agg.Loading())
	assert.True(t, stream.closed)
	assert.True(t, sawSources)
	require.Len(t, gotIn.History, 1)
	assert.Equal(t, "earlier", gotIn.History[0].Content)

	msgs := agg.Snapshot()
	require.Len(t, msgs, 3)
	assert.Equal(t, "question", msgs[1].Content)
	assert.Equal(t, "Hello", msgs[2].Content)
	assert.Equal(t, "n1", msgs[2].Sources[0].NoteID)
}

func TestDispatchUnknownAgent(t *testing.T) {
	agg := chat.NewAggregator(nil, nil)
	r := NewRouter(agent.Registry{}, nil)
	err := r.Dispatch(context.Background(), agent.SmartChat, "q", agg)
	assert.ErrorIs(t, err, ErrUnknownAgent)
	assert.Empty(t, agg.Snapshot())
}

func TestDispatchBusy(t *testing.T) {
	agg := chat.NewAggregator(nil, nil)
	_, err := agg.Send("pending")
	require.NoError(t, err)
	r := newRouter(agent.SmartChat, pipelineFunc(func(context.Context, string, agent.Input) (*agent.Run, error) {
		t.Fatal("pipeline must not run while busy")
		return nil, nil
	}))
	assert.ErrorIs(t, r.Dispatch(context.Background(), agent.SmartChat, "q", agg), chat.ErrBusy)
}

func TestDispatchConfigErrorIsReturned(t *testing.T) {
	agg := chat.NewAggregator(nil, nil)
	cfgErr := &generation.ConfigError{Reason: "missing API key"}
	r := newRouter(agent.SmartChat, pipelineFunc(func(context.Context, string, agent.Input) (*agent.Run, error) {
		return nil, cfgErr
	}))

	err := r.Dispatch(context.Background(), agent.SmartChat, "q", agg)
	require.Error(t, err)
	assert.True(t, generation.IsConfigError(err))
	assert.False(t, agg.Loading())
	msgs := agg.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.FailureText(cfgErr), msgs[1].Content)
}

func TestDispatchPipelineErrorIsAbsorbed(t *testing.T) {
	agg := chat.NewAggregator(nil, nil)
	r := newRouter(agent.SmartChat, pipelineFunc(func(context.Context, string, agent.Input) (*agent.Run, error) {
		return nil, errors.New("network down")
	}))
	require.NoError(t, r.Dispatch(context.Background(), agent.SmartChat, "q", agg))
	assert.Contains(t, agg.Snapshot()[1].Content, "network down")
	assert.False(t, agg.Loading())
}

func TestDispatchStreamErrorFails(t *testing.T) {
	agg := chat.NewAggregator(nil, nil)
	stream := &scriptStream{frags: []domain.Fragment{{Text: "partial"}}, tail: errors.New("stream reset")}
	r := newRouter(agent.WebSearch, pipelineFunc(func(context.Context, string, agent.Input) (*agent.Run, error) {
		return &agent.Run{Stream: stream}, nil
	}))

	require.NoError(t, r.Dispatch(context.Background(), agent.WebSearch, "q", agg))
	last := agg.Snapshot()[1]
	assert.Equal(t, "Sorry, I encountered an error: stream reset. Please check the log for details.", last.Content)
	assert.False(t, agg.Loading())
	assert.True(t, stream.closed)

	_, err := agg.Send("next")
	assert.NoError(t, err)
}

func TestDispatchCancelled(t *testing.T) {
	agg := chat.NewAggregator(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := &scriptStream{
		frags:  []domain.Fragment{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		onRecv: func(i int) {
			if i == 1 {
				cancel()
			}
		},
	}
	r := newRouter(agent.SmartChat, pipelineFunc(func(context.Context, string, agent.Input) (*agent.Run, error) {
		return &agent.Run{Stream: stream}, nil
	}))

	require.NoError(t, r.Dispatch(ctx, agent.SmartChat, "q", agg))
	assert.False(t, agg.Loading())
	assert.Equal(t, chat.FailureText(context.Canceled), agg.Snapshot()[1].Content)
}

// rejectingTranscript fails every apply call so a dispatch can be checked for
// closing the reply it opened.
type rejectingTranscript struct {
	*chat.Aggregator
	err error
}

func (rt rejectingTranscript) ApplySources(chat.Handle, []domain.Source) error {
	return rt.err
}

func (rt rejectingTranscript) ApplyFragment(chat.Handle, domain.Fragment) error {
	return rt.err
}

func TestDispatchApplyErrorClosesReply(t *testing.T) {
	cases := []struct {
		name string
		run  *agent.Run
	}{
		{"sources", &agent.Run{Sources: []domain.Source{{NoteID: "n1"}}, Stream: &scriptStream{}}},
		{"fragment", &agent.Run{Stream: &scriptStream{frags: []domain.Fragment{{Text: "a"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := chat.NewAggregator(nil, nil)
			r := newRouter(agent.Notes, pipelineFunc(func(context.Context, string, agent.Input) (*agent.Run, error) {
				return tc.run, nil
			}))

			err := r.dispatch(context.Background(), agent.Notes, "q", rejectingTranscript{Aggregator: agg, err: chat.ErrStaleHandle})
			assert.ErrorIs(t, err, chat.ErrStaleHandle)
			assert.False(t, agg.Loading())
			assert.Equal(t, chat.FailureText(chat.ErrStaleHandle), agg.Snapshot()[1].Content)
			assert.True(t, tc.run.Stream.(*scriptStream).closed)

			_, err = agg.Send("next")
			assert.NoError(t, err)
		})
	}
}
