package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notechat/internal/domain"
)

var (
	// ErrBusy is returned by Send and Clear while a reply is streaming.
	ErrBusy = errors.New("chat: a reply is still streaming")
	// ErrNotStreaming is returned when a stream operation is applied while idle.
	ErrNotStreaming = errors.New("chat: no open message")
	// ErrStaleHandle is returned for a handle that no longer names the open message.
	ErrStaleHandle = errors.New("chat: handle does not refer to the open message")
	// ErrSourcesSet is returned when sources are applied twice to the same message.
	ErrSourcesSet = errors.New("chat: sources already set")
)

// FailureText is the content a failed reply is replaced with.
func FailureText(cause error) string {
	return fmt.Sprintf("Sorry, I encountered an error: %v. Please check the log for details.", cause)
}

// EventKind classifies transcript changes.
type EventKind int

const (
	EventSent EventKind = iota
	EventUpdated
	EventClosed
	EventCleared
)

// Event is delivered to observers after every transcript change.
type Event struct {
	Kind      EventKind
	MessageID string
}

// Handle names the open model message returned by Send.
type Handle struct {
	id    string
	index int
}

// MessageID returns the ID of the message the handle refers to.
func (h Handle) MessageID() string { return h.id }

// Aggregator owns a transcript and applies streamed replies to it. At most one
// model message is open at a time; Loading is true exactly while it is.
type Aggregator struct {
	mu         sync.Mutex
	messages   []domain.ChatMessage
	openIdx    int
	sourcesSet bool
	observers  []func(Event)
	logger     *zap.Logger
	now        func() time.Time
}

// NewAggregator creates an idle aggregator over a previously stored transcript.
func NewAggregator(history []domain.ChatMessage, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	msgs := make([]domain.ChatMessage, len(history))
	copy(msgs, history)
	return &Aggregator{
		messages: msgs,
		openIdx:  -1,
		logger:   logger.Named("chat"),
		now:      time.Now,
	}
}

// OnChange registers fn to be called after every change. Observers run on the
// goroutine that made the change, after the aggregator lock is released.
func (a *Aggregator) OnChange(fn func(Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

// Loading reports whether a reply is streaming.
func (a *Aggregator) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openIdx >= 0
}

// Snapshot returns a deep copy of the transcript.
func (a *Aggregator) Snapshot() []domain.ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.ChatMessage, len(a.messages))
	for i, m := range a.messages {
		out[i] = cloneMessage(m)
	}
	return out
}

// Send appends the user's message and an empty open model message.
func (a *Aggregator) Send(text string) (Handle, error) {
	a.mu.Lock()
	if a.openIdx >= 0 {
		a.mu.Unlock()
		return Handle{}, ErrBusy
	}
	now := a.now()
	a.messages = append(a.messages,
		domain.ChatMessage{ID: uuid.NewString(), Role: domain.RoleUser, Content: text, CreatedAt: now},
		domain.ChatMessage{ID: uuid.NewString(), Role: domain.RoleModel, CreatedAt: now},
	)
	a.openIdx = len(a.messages) - 1
	a.sourcesSet = false
	h := Handle{id: a.messages[a.openIdx].ID, index: a.openIdx}
	a.mu.Unlock()

	a.notify(Event{Kind: EventSent, MessageID: h.id})
	return h, nil
}

// ApplyFragment appends a streamed fragment to the open message. Web sources
// whose URI is already present are skipped.
func (a *Aggregator) ApplyFragment(h Handle, f domain.Fragment) error {
	a.mu.Lock()
	msg, err := a.openLocked(h, "apply fragment")
	if err != nil {
		a.mu.Unlock()
		return err
	}
	msg.Content += f.Text
	if len(f.WebSources) > 0 {
		seen := make(map[string]struct{}, len(msg.WebSources)+len(f.WebSources))
		for _, ws := range msg.WebSources {
			seen[ws.URI] = struct{}{}
		}
		for _, ws := range f.WebSources {
			if _, ok := seen[ws.URI]; ok {
				continue
			}
			seen[ws.URI] = struct{}{}
			msg.WebSources = append(msg.WebSources, ws)
		}
	}
	a.mu.Unlock()

	a.notify(Event{Kind: EventUpdated, MessageID: h.id})
	return nil
}

// ApplySources records the notes a reply is grounded on. It may be called once per reply.
func (a *Aggregator) ApplySources(h Handle, sources []domain.Source) error {
	a.mu.Lock()
	msg, err := a.openLocked(h, "apply sources")
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if a.sourcesSet {
		a.mu.Unlock()
		a.logger.Error("sources applied twice", zap.String("message_id", h.id))
		return ErrSourcesSet
	}
	a.sourcesSet = true
	msg.Sources = append([]domain.Source(nil), sources...)
	a.mu.Unlock()

	a.notify(Event{Kind: EventUpdated, MessageID: h.id})
	return nil
}

// Complete closes the open message.
func (a *Aggregator) Complete(h Handle) error {
	a.mu.Lock()
	if _, err := a.openLocked(h, "complete"); err != nil {
		a.mu.Unlock()
		return err
	}
	a.openIdx = -1
	a.mu.Unlock()

	a.notify(Event{Kind: EventClosed, MessageID: h.id})
	return nil
}

// Fail replaces the open message's content with an apology naming cause and
// closes it. Partial content is discarded.
func (a *Aggregator) Fail(h Handle, cause error) error {
	a.mu.Lock()
	msg, err := a.openLocked(h, "fail")
	if err != nil {
		a.mu.Unlock()
		return err
	}
	msg.Content = FailureText(cause)
	a.openIdx = -1
	a.mu.Unlock()

	a.notify(Event{Kind: EventClosed, MessageID: h.id})
	return nil
}

// Clear empties the transcript.
func (a *Aggregator) Clear() error {
	a.mu.Lock()
	if a.openIdx >= 0 {
		a.mu.Unlock()
		return ErrBusy
	}
	a.messages = nil
	a.mu.Unlock()

	a.notify(Event{Kind: EventCleared})
	return nil
}

// openLocked returns the open message named by h. Callers hold a.mu.
func (a *Aggregator) openLocked(h Handle, op string) (*domain.ChatMessage, error) {
	if a.openIdx < 0 {
		a.logger.Error("stream operation while idle", zap.String("op", op), zap.String("message_id", h.id))
		return nil, ErrNotStreaming
	}
	if h.index != a.openIdx || a.messages[a.openIdx].ID != h.id {
		a.logger.Error("stale message handle", zap.String("op", op), zap.String("message_id", h.id))
		return nil, ErrStaleHandle
	}
	return &a.messages[a.openIdx], nil
}

func (a *Aggregator) notify(ev Event) {
	a.mu.Lock()
	observers := make([]func(Event), len(a.observers))
	copy(observers, a.observers)
	a.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

func cloneMessage(m domain.ChatMessage) domain.ChatMessage {
	if m.Sources != nil {
		m.Sources = append([]domain.Source(nil), m.Sources...)
	}
	if m.WebSources != nil {
		m.WebSources = append([]domain.WebSource(nil), m.WebSources...)
	}
	return m
}
