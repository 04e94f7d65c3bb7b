// Package ai provides a provider-agnostic AI gateway with task-based routing.
package ai

import "context"

// TaskType defines the kind of AI task for routing purposes.
type TaskType int

const (
	TaskGeneration TaskType = iota
	TaskReview
)

func (t TaskType) String() string {
	switch t {
	case TaskGeneration:
		return "generation"
	case TaskReview:
		return "review"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion. Temperature and TopP
// are pointers so an explicit zero (used by the review task) is distinguishable
// from "use the provider default".
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// Float returns a pointer to v, for use in CompletionRequest sampling fields.
func Float(v float64) *float64 {
	return &v
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
