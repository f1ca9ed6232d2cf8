package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notechat/internal/domain"
)

func newAgg(t *testing.T) *Aggregator {
	t.Helper()
	return NewAggregator(nil, zap.NewNop())
}

func TestSendOpensModelMessage(t *testing.T) {
	a := newAgg(t)
	h, err := a.Send("hi")
	require.NoError(t, err)
	assert.True(t, a.Loading())

	msgs := a.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, domain.RoleModel, msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	assert.Equal(t, msgs[1].ID, h.MessageID())
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestSendWhileLoadingIsRejected(t *testing.T) {
	a := newAgg(t)
	_, err := a.Send("first")
	require.NoError(t, err)
	_, err = a.Send("second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, a.Snapshot(), 2)
}

func TestFragmentsAndWebSourceDedup(t *testing.T) {
	a := newAgg(t)
	h, err := a.Send("q")
	require.NoError(t, err)

	require.NoError(t, a.ApplyFragment(h, domain.Fragment{Text: "Hello ", WebSources: []domain.WebSource{{Title: "A", URI: "a"}}}))
	require.NoError(t, a.ApplyFragment(h, domain.Fragment{Text: "world", WebSources: []domain.WebSource{
		{Title: "A2", URI: "a"}, {Title: "B", URI: "b"},
	}}))
	require.NoError(t, a.Complete(h))

	last := a.Snapshot()[1]
	assert.Equal(t, "Hello world", last.Content)
	assert.Equal(t, []domain.WebSource{{Title: "A", URI: "a"}, {Title: "B", URI: "b"}}, last.WebSources)
	assert.False(t, a.Loading())
}

func TestSourcesOnce(t *testing.T) {
	a := newAgg(t)
	h, _ := a.Send("q")
	src := []domain.Source{{NoteID: "1", Title: "One", Path: "one.md", Score: 0.5}}
	require.NoError(t, a.ApplySources(h, src))
	assert.ErrorIs(t, a.ApplySources(h, nil), ErrSourcesSet)
	require.NoError(t, a.Complete(h))
	assert.Equal(t, src, a.Snapshot()[1].Sources)

	h2, _ := a.Send("again")
	assert.NoError(t, a.ApplySources(h2, nil))
}

func TestFailOverwritesPartialContent(t *testing.T) {
	a := newAgg(t)
	h, _ := a.Send("q")
	require.NoError(t, a.ApplyFragment(h, domain.Fragment{Text: "partial"}))
	require.NoError(t, a.Fail(h, errors.New("quota exceeded")))

	assert.False(t, a.Loading())
	msgs := a.Snapshot()
	assert.Equal(t, "Sorry, I encountered an error: quota exceeded. Please check the log for details.", msgs[1].Content)
	assert.Equal(t, "q", msgs[0].Content)
}

func TestOperationsWhileIdle(t *testing.T) {
	a := newAgg(t)
	h, _ := a.Send("q")
	require.NoError(t, a.Complete(h))

	assert.ErrorIs(t, a.ApplyFragment(h, domain.Fragment{Text: "late"}), ErrNotStreaming)
	assert.ErrorIs(t, a.ApplySources(h, nil), ErrNotStreaming)
	assert.ErrorIs(t, a.Complete(h), ErrNotStreaming)
	assert.ErrorIs(t, a.Fail(h, errors.New("x")), ErrNotStreaming)
	assert.Empty(t, a.Snapshot()[1].Content)
}

func TestStaleHandle(t *testing.T) {
	a := newAgg(t)
	old, _ := a.Send("one")
	require.NoError(t, a.Complete(old))
	h, _ := a.Send("two")

	assert.ErrorIs(t, a.ApplyFragment(old, domain.Fragment{Text: "x"}), ErrStaleHandle)
	assert.ErrorIs(t, a.Complete(Handle{}), ErrStaleHandle)
	assert.True(t, a.Loading())
	require.NoError(t, a.ApplyFragment(h, domain.Fragment{Text: "ok"}))
	assert.Equal(t, "ok", a.Snapshot()[3].Content)
}

func TestClear(t *testing.T) {
	a := newAgg(t)
	h, _ := a.Send("q")
	assert.ErrorIs(t, a.Clear(), ErrBusy)
	require.NoError(t, a.Complete(h))
	require.NoError(t, a.Clear())
	assert.Empty(t, a.Snapshot())
}

func TestObserverEvents(t *testing.T) {
	a := newAgg(t)
	var kinds []EventKind
	a.OnChange(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		a.Snapshot()
	})

	h, _ := a.Send("q")
	_ = a.ApplySources(h, nil)
	_ = a.ApplyFragment(h, domain.Fragment{Text: "x"})
	_ = a.Complete(h)
	_ = a.Clear()
	_ = a.Complete(h)

	assert.Equal(t, []EventKind{EventSent, EventUpdated, EventUpdated, EventClosed, EventCleared}, kinds)
}

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAggregator([]domain.ChatMessage{{ID: "m1", Role: domain.RoleModel, Content: "c",
		WebSources: []domain.WebSource{{Title: "A", URI: "a"}}}}, nil)
	assert.False(t, a.Loading())

	s := a.Snapshot()
	s[0].Content = "changed"
	s[0].WebSources[0].URI = "z"

	again := a.Snapshot()
	assert.Equal(t, "c", again[0].Content)
	assert.Equal(t, "a", again[0].WebSources[0].URI)
}
