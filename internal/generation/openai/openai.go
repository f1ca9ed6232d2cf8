package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"notechat/internal/domain"
	"notechat/internal/generation"
)

// Client is an OpenAI-compatible chat completions client implementing generation.Generator.
type Client struct {
	baseURL    string
	apiKey     string
	apiKeyEnv  string
	model      string
	client     *http.Client
	maxRetries int
}

// Config configures the OpenAI-compatible chat client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// HeaderTimeout bounds the wait for response headers; the stream body itself is bounded by the context only.
	HeaderTimeout time.Duration
	MaxRetries    int
}

// NewClient creates a new chat client using the provided configuration.
// The API key is read from cfg.APIKeyEnv; a missing key is reported by Stream.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.HeaderTimeout == 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HeaderTimeout
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		apiKeyEnv:  cfg.APIKeyEnv,
		model:      cfg.Model,
		client:     &http.Client{Transport: transport},
		maxRetries: cfg.MaxRetries,
	}
}

// Name returns the identifier of this generator implementation.
func (c *Client) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream posts a streaming chat completion and returns its token stream.
func (c *Client) Stream(ctx context.Context, req generation.Request) (generation.Stream, error) {
	if c.apiKey == "" {
		return nil, &generation.ConfigError{Reason: "missing API key in env " + c.apiKeyEnv}
	}
	if req.WebSearch {
		return nil, &generation.ConfigError{Reason: "web search is not supported by the openai generator"}
	}
	messages := make([]chatMessage, 0, len(req.History)+1)
	for _, t := range req.History {
		messages = append(messages, chatMessage{Role: roleName(t.Role), Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	body, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}
	return &chatStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

func roleName(r domain.Role) string {
	if r == domain.RoleModel {
		return "assistant"
	}
	return "user"
}

// post sends the request, retrying on transport errors, 429 and 5xx.
func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if err := sleep(ctx, retryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			data, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, &generation.ConfigError{
				Reason: "chat completions rejected the API key",
				Err:    fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data))),
			}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			delay := retryDelay(attempt)
			// Respect Retry-After if provided
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if attempt < c.maxRetries {
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("chat completions failed: %s", resp.Status)
		case resp.StatusCode >= 300:
			data, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("chat completions failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		return resp, nil
	}
}

type chatStream struct {
	body io.ReadCloser
	r    *bufio.Reader
	done bool
}

// Recv reads server-sent events until the next non-empty delta. A body that
// ends before the [DONE] marker is reported as io.ErrUnexpectedEOF.
func (s *chatStream) Recv() (domain.Fragment, error) {
	for !s.done {
		line, readErr := s.r.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			s.done = true
			return domain.Fragment{}, readErr
		}
		if f, ok, err := s.event(strings.TrimSpace(line)); err != nil || ok {
			return f, err
		}
		if readErr != nil && !s.done {
			s.done = true
			return domain.Fragment{}, fmt.Errorf("chat completions stream ended before [DONE]: %w", io.ErrUnexpectedEOF)
		}
	}
	return domain.Fragment{}, io.EOF
}

// event decodes one SSE line. ok is true when the line carried text.
func (s *chatStream) event(line string) (domain.Fragment, bool, error) {
	if !strings.HasPrefix(line, "data:") {
		return domain.Fragment{}, false, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		s.done = true
		return domain.Fragment{}, false, nil
	}
	var evt struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return domain.Fragment{}, false, nil
	}
	if evt.Error != nil {
		s.done = true
		return domain.Fragment{}, false, fmt.Errorf("chat completions stream error: %s", evt.Error.Message)
	}
	if len(evt.Choices) > 0 && evt.Choices[0].Delta.Content != "" {
		return domain.Fragment{Text: evt.Choices[0].Delta.Content}, true, nil
	}
	return domain.Fragment{}, false, nil
}

func (s *chatStream) Close() error {
	s.done = true
	return s.body.Close()
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
