package domain

import (
	"context"
	"time"
)

// Note is a single document of the user's private collection.
type Note struct {
	ID        string
	Title     string
	Path      string
	Content   string
	UpdatedAt time.Time
}

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Source is a note selected as grounding context for an answer, with its relevance score.
type Source struct {
	NoteID string  `json:"note_id"`
	Title  string  `json:"title"`
	Path   string  `json:"path"`
	Score  float64 `json:"score"`
}

// WebSource is a web page the generation service grounded an answer on.
type WebSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ChatMessage is one entry of the transcript.
type ChatMessage struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Sources    []Source    `json:"sources,omitempty"`
	WebSources []WebSource `json:"web_sources,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Turn is a prior conversation turn handed to the generation service.
type Turn struct {
	Role    Role
	Content string
}

// Fragment is one incremental unit of a streamed answer.
type Fragment struct {
	Text       string
	WebSources []WebSource
}

// NoteStore yields the note collection. Implementations are read on every
// retrieval-augmented dispatch.
type NoteStore interface {
	List(ctx context.Context) ([]Note, error)
}
