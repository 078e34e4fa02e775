package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:  "test-key",
		Model:   "claude-test",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return p
}

func anthropicMessage(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-test",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 30, "output_tokens": 12},
	}
}

func TestAnthropicGenerateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicMessage("Recursion is a function calling itself."))
	})

	req := UserPrompt("Explain recursion", 0.7)
	req.System = "You are a tutor."
	resp, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "Recursion is a function calling itself." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 42 {
		t.Errorf("expected 42 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if resp.Model != "claude-test" {
		t.Errorf("expected model claude-test, got %q", resp.Model)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("expected API key header, got %q", gotKey)
	}
	if gotBody["model"] != "claude-test" {
		t.Errorf("unexpected model in request: %v", gotBody["model"])
	}
	if temp, _ := gotBody["temperature"].(float64); temp < 0.69 || temp > 0.71 {
		t.Errorf("expected temperature 0.7, got %v", gotBody["temperature"])
	}
	if mt, _ := gotBody["max_tokens"].(float64); mt != anthropicDefaultMaxTokens {
		t.Errorf("expected default max_tokens, got %v", gotBody["max_tokens"])
	}
}

func TestAnthropicGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  string
		body    any
		checkFn func(*testing.T, error)
	}{
		{
			name:   "rate limit with retry-after",
			status: http.StatusTooManyRequests,
			header: "30",
			body:   map[string]any{"type": "error", "error": map[string]any{"type": "rate_limit_error", "message": "slow down"}},
			checkFn: func(t *testing.T, err error) {
				var rl *ErrRateLimit
				if !errors.As(err, &rl) {
					t.Fatalf("expected ErrRateLimit, got %T %v", err, err)
				}
				if rl.RetryAfter != 30*time.Second {
					t.Errorf("expected RetryAfter 30s, got %s", rl.RetryAfter)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]any{"type": "error", "error": map[string]any{"type": "api_error", "message": "boom"}},
			checkFn: func(t *testing.T, err error) {
				var un *ErrProviderUnavailable
				if !errors.As(err, &un) {
					t.Errorf("expected ErrProviderUnavailable, got %T %v", err, err)
				}
			},
		},
		{
			name:   "blank content",
			status: http.StatusOK,
			body:   anthropicMessage("  "),
			checkFn: func(t *testing.T, err error) {
				var inv *ErrInvalidResponse
				if !errors.As(err, &inv) {
					t.Errorf("expected ErrInvalidResponse, got %T %v", err, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			})
			_, err := p.Generate(context.Background(), UserPrompt("q", 0.7))
			if err == nil {
				t.Fatal("expected error")
			}
			tt.checkFn(t, err)
			if calls != 1 {
				t.Errorf("expected a single request, got %d", calls)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"missing", "", 0},
		{"seconds", "12", 12 * time.Second},
		{"http date", now.Add(time.Minute).Format(http.TimeFormat), time.Minute},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			if got := parseRetryAfter(h, now); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestRateLimitErrorMessage(t *testing.T) {
	err := &ErrRateLimit{Err: errors.New("429")}
	if got := err.Error(); got != "rate limited: 429" {
		t.Errorf("unexpected message %q", got)
	}
	err.RetryAfter = 5 * time.Second
	if got := err.Error(); got != "rate limited (retry after 5s): 429" {
		t.Errorf("unexpected message %q", got)
	}
}
