package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"notechat/internal/agent"
	"notechat/internal/chat"
	"notechat/internal/domain"
	"notechat/internal/storage"
)

// State is what persists between runs.
type State struct {
	SelectedAgent agent.ID             `json:"selected_agent"`
	History       []domain.ChatMessage `json:"history"`
}

// Key is the storage key of the named session.
func Key(name string) string { return "session/" + name }

// Session ties a transcript and the selected agent to a storage key.
type Session struct {
	Name       string
	Aggregator *chat.Aggregator

	kv     storage.KV
	logger *zap.Logger

	mu    sync.Mutex
	agent agent.ID
}

// Load restores the named session, or starts an empty one with defaultAgent.
// A stored agent that is no longer known falls back to defaultAgent.
func Load(ctx context.Context, kv storage.KV, name string, defaultAgent agent.ID, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session").With(zap.String("session", name))

	var st State
	data, err := kv.Load(ctx, Key(name))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", name, err)
	default:
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", name, err)
		}
	}
	id, err := agent.ParseID(string(st.SelectedAgent))
	if err != nil {
		if st.SelectedAgent != "" {
			logger.Warn("stored agent unknown, using default", zap.String("agent", string(st.SelectedAgent)))
		}
		id = defaultAgent
	}
	return &Session{
		Name:       name,
		Aggregator: chat.NewAggregator(st.History, logger),
		kv:         kv,
		logger:     logger,
		agent:      id,
	}, nil
}

// Agent returns the selected agent.
func (s *Session) Agent() agent.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// SetAgent selects id and persists the session.
func (s *Session) SetAgent(ctx context.Context, id agent.ID) error {
	if _, err := agent.ParseID(string(id)); err != nil {
		return err
	}
	s.mu.Lock()
	s.agent = id
	s.mu.Unlock()
	return s.Save(ctx)
}

// Save writes the selected agent and the current transcript.
func (s *Session) Save(ctx context.Context) error {
	st := State{SelectedAgent: s.Agent(), History: s.Aggregator.Snapshot()}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.kv.Save(ctx, Key(s.Name), data); err != nil {
		return fmt.Errorf("save session %s: %w", s.Name, err)
	}
	return nil
}

// Attach saves the session whenever a message is sent, a reply closes or the
// transcript is cleared. Save failures are logged.
func (s *Session) Attach(ctx context.Context) {
	s.Aggregator.OnChange(func(ev chat.Event) {
		switch ev.Kind {
		case chat.EventSent, chat.EventClosed, chat.EventCleared:
			if err := s.Save(ctx); err != nil {
				s.logger.Error("persist session", zap.Error(err))
			}
		}
	})
}
