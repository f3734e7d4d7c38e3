package translator

import (
	"errors"
	"fmt"

	"llmchat-gateway/internal/models"
)

// NoResponseContent is the assistant reply substituted when the provider
// returns no usable choice.
const NoResponseContent = "No response received from the model."

var (
	errEmptyMessages = errors.New("at least one message is required")
	errInvalidRole   = errors.New("invalid role")
)

// InputError reports a malformed client request. It is raised before any
// upstream call is made.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Defaults are substituted for every optional field a client leaves unset.
type Defaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Validate checks the shape of a client request. Sampling parameters and the
// model name are passed through untouched; the LLM server owns their ranges.
func Validate(req models.ChatRequest) error {
	if len(req.Messages) == 0 {
		return &InputError{Err: errEmptyMessages}
	}
	for i, msg := range req.Messages {
		if !msg.Role.Valid() {
			return &InputError{Err: fmt.Errorf("message[%d]: %w: %q", i, errInvalidRole, msg.Role)}
		}
	}
	return nil
}

// ToCompletion resolves every optional field against d and produces the
// provider request. Streaming is always disabled.
func ToCompletion(req models.ChatRequest, d Defaults) models.CompletionRequest {
	msgs := make([]models.Message, len(req.Messages))
	copy(msgs, req.Messages)

	return models.CompletionRequest{
		Model:       valueOr(req.Model, d.Model),
		Messages:    msgs,
		Temperature: valueOr(req.Temperature, d.Temperature),
		MaxTokens:   valueOr(req.MaxTokens, d.MaxTokens),
		Stream:      false,
	}
}

// FromCompletion maps the provider response onto the client schema using the
// first choice, or the no-response fallback when there is none.
func FromCompletion(resp *models.CompletionResponse) models.ChatResponse {
	out := models.ChatResponse{
		Message: models.Message{Role: models.RoleAssistant, Content: NoResponseContent},
	}
	if resp == nil {
		return out
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		out.Message = *resp.Choices[0].Message
	}
	out.Model = resp.Model
	if resp.Usage != nil {
		usage := *resp.Usage
		out.Usage = &usage
	}
	return out
}

// FinishReason returns the finish reason of the first choice, if any.
func FinishReason(resp *models.CompletionResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].FinishReason
}

func valueOr[T any](ptr *T, fallback T) T {
	if ptr == nil {
		return fallback
	}
	return *ptr
}
