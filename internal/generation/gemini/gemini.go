package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"notechat/internal/domain"
	"notechat/internal/generation"
)

const defaultModel = "gemini-2.5-flash"

// Config configures the Gemini generator.
type Config struct {
	APIKey string
	// APIKeyEnv names the variable the key was read from; used in error messages only.
	APIKeyEnv string
	Model     string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Generator streams answers from the Gemini API.
type Generator struct {
	cfg Config

	mu     sync.Mutex
	client *genai.Client
}

// New creates a generator. A missing API key is reported by Stream, so the
// application can start and tell the user what to configure.
func New(cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Generator{cfg: cfg}
}

// Name returns the identifier of this generator implementation.
func (g *Generator) Name() string { return "gemini" }

// Stream opens a streaming generation. The first response is pulled before
// returning so rejected credentials surface as a ConfigError.
func (g *Generator) Stream(ctx context.Context, req generation.Request) (generation.Stream, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return nil, err
	}
	var cfg *genai.GenerateContentConfig
	if req.WebSearch {
		cfg = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
	}
	seq := client.Models.GenerateContentStream(ctx, g.cfg.Model, toContents(req), cfg)
	return open(seq)
}

func (g *Generator) getClient(ctx context.Context) (*genai.Client, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		reason := "Gemini API key is missing"
		if g.cfg.APIKeyEnv != "" {
			reason += "; set " + g.cfg.APIKeyEnv
		}
		return nil, &generation.ConfigError{Reason: reason}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  g.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &generation.ConfigError{Reason: "cannot create Gemini client", Err: err}
	}
	g.client = client
	return client, nil
}

func toContents(req generation.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		contents = append(contents, &genai.Content{
			Role:  roleName(t.Role),
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  string(domain.RoleUser),
		Parts: []*genai.Part{{Text: req.Prompt}},
	})
	return contents
}

func roleName(r domain.Role) string {
	if r == domain.RoleModel {
		return string(domain.RoleModel)
	}
	return string(domain.RoleUser)
}

type stream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending *genai.GenerateContentResponse
	done    bool
}

func open(seq iter.Seq2[*genai.GenerateContentResponse, error]) (*stream, error) {
	next, stop := iter.Pull2(seq)
	s := &stream{next: next, stop: stop}
	resp, err, ok := next()
	switch {
	case !ok:
		s.done = true
	case err != nil:
		stop()
		if isAuthError(err) {
			return nil, &generation.ConfigError{Reason: "Gemini rejected the API key", Err: err}
		}
		return nil, err
	default:
		s.pending = resp
	}
	return s, nil
}

func (s *stream) Recv() (domain.Fragment, error) {
	if s.pending != nil {
		resp := s.pending
		s.pending = nil
		return toFragment(resp), nil
	}
	if s.done {
		return domain.Fragment{}, io.EOF
	}
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return domain.Fragment{}, io.EOF
	}
	if err != nil {
		s.done = true
		return domain.Fragment{}, err
	}
	return toFragment(resp), nil
}

func (s *stream) Close() error {
	s.done = true
	s.pending = nil
	s.stop()
	return nil
}

func toFragment(resp *genai.GenerateContentResponse) domain.Fragment {
	var f domain.Fragment
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return f
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if p == nil || p.Thought {
				continue
			}
			b.WriteString(p.Text)
		}
		f.Text = b.String()
	}
	if gm := cand.GroundingMetadata; gm != nil {
		var web []domain.WebSource
		for _, ch := range gm.GroundingChunks {
			if ch == nil || ch.Web == nil {
				continue
			}
			web = append(web, domain.WebSource{Title: ch.Web.Title, URI: ch.Web.URI})
		}
		f.WebSources = generation.DedupWebSources(web)
	}
	return f
}

func isAuthError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return isAuthAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return isAuthAPIError(*apiErrPtr)
	}
	return false
}

// isAuthAPIError matches rejected credentials. Gemini answers an invalid key
// with 400 INVALID_ARGUMENT and reason API_KEY_INVALID.
func isAuthAPIError(e genai.APIError) bool {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return true
	}
	if e.Status == "UNAUTHENTICATED" || e.Status == "PERMISSION_DENIED" {
		return true
	}
	if e.Code != http.StatusBadRequest {
		return false
	}
	if strings.Contains(e.Message, "API_KEY_INVALID") || strings.Contains(e.Message, "API key not valid") {
		return true
	}
	for _, d := range e.Details {
		if reason, _ := d["reason"].(string); reason == "API_KEY_INVALID" {
			return true
		}
	}
	return false
}
