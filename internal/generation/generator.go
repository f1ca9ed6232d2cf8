package generation

import (
	"context"
	"errors"
	"fmt"

	"notechat/internal/domain"
)

// Request is a single generation call: optional prior turns, the new prompt
// and whether the service may ground the answer on an external web search.
type Request struct {
	History   []domain.Turn
	Prompt    string
	WebSearch bool
}

// Generator opens streaming generations.
type Generator interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream is a single-pass sequence of fragments. Recv blocks until the next
// fragment arrives and returns io.EOF once the answer is complete.
type Stream interface {
	Recv() (domain.Fragment, error)
	Close() error
}

// ConfigError reports that the generation service cannot be used as
// configured: missing or rejected credentials, or an unsupported capability.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation not configured: %s: %v", e.Reason, e.Err)
	}
	return "generation not configured: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// DedupWebSources drops entries whose URI was already seen, keeping the first
// occurrence and the arrival order.
func DedupWebSources(in []domain.WebSource) []domain.WebSource {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.WebSource, 0, len(in))
	for _, ws := range in {
		if _, ok := seen[ws.URI]; ok {
			continue
		}
		seen[ws.URI] = struct{}{}
		out = append(out, ws)
	}
	return out
}
