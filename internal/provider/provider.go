package provider

import (
	"context"

	"llmchat-gateway/internal/models"
)

// Upstream is the protocol adapter for an OpenAI-compatible completion
// server. Each call is a single blocking request with no retry. Failures are
// reported as *TransportError, *StatusError or *DecodeError.
type Upstream interface {
	PostCompletion(ctx context.Context, req models.CompletionRequest) (*models.CompletionResponse, error)
	GetModels(ctx context.Context) ([]models.Model, error)
}
