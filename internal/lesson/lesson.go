// Package lesson requests natural-language lessons from the text-generation
// provider.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/microlearn/internal/llm"
	"github.com/pavelanni/microlearn/internal/llm/prompts"
)

const (
	// Temperature is the fixed sampling temperature for lessons.
	Temperature = 0.7

	// DefaultTimeout bounds a single lesson request.
	DefaultTimeout = 60 * time.Second
)

// ErrGenerationFailed matches every lesson generation failure.
var ErrGenerationFailed = errors.New("lesson generation failed")

// GenerationError carries the cause of a failed lesson request.
type GenerationError struct {
	Topic string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("lesson generation failed for %q: %v", e.Topic, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

// Config tunes the generator.
type Config struct {
	Timeout   time.Duration
	MaxTokens int
}

// Generator builds the lesson prompt and calls the provider. It never retries.
type Generator struct {
	provider llm.Provider
	cfg      Config
}

// NewGenerator creates a lesson generator. A zero timeout uses DefaultTimeout.
func NewGenerator(p llm.Provider, cfg Config) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{provider: p, cfg: cfg}
}

// Generate returns the trimmed lesson text for topic.
func (g *Generator) Generate(ctx context.Context, topic string) (string, error) {
	prompt, err := prompts.BuildLessonPrompt(topic)
	if err != nil {
		return "", &GenerationError{Topic: topic, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req := llm.UserPrompt(prompt, Temperature)
	req.MaxTokens = g.cfg.MaxTokens

	start := time.Now()
	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", g.cfg.Timeout)
		}
		slog.Warn("lesson generation failed", "topic", topic, "model", g.provider.ModelID(), "error", err)
		return "", &GenerationError{Topic: topic, Err: err}
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", &GenerationError{Topic: topic, Err: errors.New("empty response")}
	}
	slog.Info("generated lesson",
		"topic", topic,
		"model", resp.Model,
		"chars", len(text),
		"tokens", resp.Usage.TotalTokens,
		"elapsed", time.Since(start),
	)
	return text, nil
}
