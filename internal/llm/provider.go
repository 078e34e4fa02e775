package llm

import "context"

// Provider is the boundary to an external text-generation service.
type Provider interface {
	// Generate sends a prompt and returns the model output. When req.Schema
	// is set the output must be JSON conforming to it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Pinger is implemented by providers that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Request describes what to send to the model.
type Request struct {
	// System is the system prompt. Optional.
	System string

	// Messages is the conversation. Single-turn callers pass one user message.
	Messages []Message

	// Schema, when set, asks for JSON output and enables response validation.
	Schema *Schema

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int

	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies the schema, kebab-case (e.g. "quiz-items").
	Name string

	Description string

	// Definition is the JSON Schema document.
	Definition map[string]any
}

// Response holds the model output.
type Response struct {
	// Content is the raw text returned by the model (JSON when a Schema was set).
	Content string
	Usage   Usage
	Model   string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserPrompt builds a single-turn request.
func UserPrompt(prompt string, temperature float64) Request {
	return Request{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: temperature,
	}
}
