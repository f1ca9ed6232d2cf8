package agent

import (
	"fmt"
	"strings"
)

// ID names an answering strategy.
type ID string

const (
	SmartChat ID = "smart-chat"
	Notes     ID = "rag"
	WebSearch ID = "web-search"
)

// All lists the agents in switcher order.
var All = []ID{SmartChat, Notes, WebSearch}

// ParseID accepts exactly the known agent IDs.
func ParseID(s string) (ID, error) {
	id := ID(strings.TrimSpace(s))
	for _, known := range All {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown agent %q", s)
}

// Label is the name shown to the user.
func (id ID) Label() string {
	switch id {
	case SmartChat:
		return "Smart Chat"
	case Notes:
		return "Chat with Notes"
	case WebSearch:
		return "Web Search"
	}
	return string(id)
}

// Next returns the agent after id in switcher order.
func (id ID) Next() ID {
	for i, known := range All {
		if known == id {
			return All[(i+1)%len(All)]
		}
	}
	return All[0]
}
