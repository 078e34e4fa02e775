package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/microlearn/internal/llm"
	"github.com/pavelanni/microlearn/internal/llm/prompts"
)

// GenerationTemperature is the sampling temperature for quiz generation.
const GenerationTemperature = 0.7

// ItemsSchema is the JSON schema the model's quiz output must satisfy.
var ItemsSchema = &llm.Schema{
	Name:        "quiz-items",
	Description: "Multiple-choice questions with four options and one correct answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{"type": "string", "minLength": 1},
						"options": map[string]any{
							"type":     "array",
							"items":    map[string]any{"type": "string"},
							"minItems": OptionsPerItem,
							"maxItems": OptionsPerItem,
						},
						"answer": map[string]any{"type": "string", "minLength": 1},
					},
					"required":             []any{"question", "options", "answer"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"questions"},
		"additionalProperties": false,
	},
}

// GeneratedBank asks the text-generation provider for a fresh quiz.
type GeneratedBank struct {
	provider llm.Provider
	count    int
	timeout  time.Duration
}

// NewGeneratedBank creates a bank issuing count items per quiz. A zero
// timeout leaves the caller's context deadline in charge.
func NewGeneratedBank(p llm.Provider, count int, timeout time.Duration) *GeneratedBank {
	return &GeneratedBank{provider: p, count: count, timeout: timeout}
}

type generatedQuiz struct {
	Questions []Item `json:"questions"`
}

func (b *GeneratedBank) ItemsFor(ctx context.Context, topic string) ([]Item, error) {
	prompt, err := prompts.BuildQuizPrompt(topic, b.count)
	if err != nil {
		return nil, fmt.Errorf("build quiz prompt: %w", err)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req := llm.UserPrompt(prompt, GenerationTemperature)
	req.Schema = ItemsSchema
	resp, err := b.provider.Generate(ctx, req)
	if err != nil {
		slog.Warn("quiz generation failed", "topic", topic, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedItems, err)
	}

	items, err := ParseItems(resp.Content)
	if err != nil {
		slog.Warn("generated quiz rejected", "topic", topic, "error", err)
		return nil, err
	}
	slog.Info("generated quiz", "topic", topic, "items", len(items), "model", resp.Model)
	return items, nil
}

// ParseItems decodes a {"questions": [...]} document strictly and validates
// every item. The text is only ever treated as JSON data.
func ParseItems(raw string) ([]Item, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(llm.StripCodeFence(raw))))
	dec.DisallowUnknownFields()

	var out generatedQuiz
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedItems, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after quiz document", ErrMalformedItems)
	}
	if err := ValidateItems(out.Questions); err != nil {
		return nil, err
	}
	return out.Questions, nil
}
