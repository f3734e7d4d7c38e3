package translator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmchat-gateway/internal/models"
)

var testDefaults = Defaults{Model: "local-model", Temperature: 0.7, MaxTokens: 2048}

func ptr[T any](v T) *T { return &v }

func userMessages(content string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: content}}
}

func TestToCompletionAppliesDefaults(t *testing.T) {
	req := models.ChatRequest{Messages: userMessages("Hi")}

	got := ToCompletion(req, testDefaults)

	assert.Equal(t, models.CompletionRequest{
		Model:       "local-model",
		Messages:    userMessages("Hi"),
		Temperature: 0.7,
		MaxTokens:   2048,
		Stream:      false,
	}, got)
}

func TestToCompletionPrefersClientValues(t *testing.T) {
	req := models.ChatRequest{
		Messages:    userMessages("Hi"),
		Model:       ptr("mistral-7b"),
		Temperature: ptr(0.0),
		MaxTokens:   ptr(16),
	}

	got := ToCompletion(req, testDefaults)

	assert.Equal(t, "mistral-7b", got.Model)
	assert.Equal(t, 0.0, got.Temperature)
	assert.Equal(t, 16, got.MaxTokens)
}

func TestToCompletionMixedFields(t *testing.T) {
	req := models.ChatRequest{Messages: userMessages("Hi"), MaxTokens: ptr(100)}

	got := ToCompletion(req, testDefaults)

	assert.Equal(t, "local-model", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 100, got.MaxTokens)
}

func TestToCompletionForcesStreamOff(t *testing.T) {
	req := models.ChatRequest{Messages: userMessages("Hi"), Stream: true}

	assert.False(t, ToCompletion(req, testDefaults).Stream)
}

func TestToCompletionDoesNotAliasMessages(t *testing.T) {
	req := models.ChatRequest{Messages: userMessages("Hi")}

	got := ToCompletion(req, testDefaults)
	got.Messages[0].Content = "changed"

	assert.Equal(t, "Hi", req.Messages[0].Content)
}

func TestToCompletionIsDeterministic(t *testing.T) {
	req := models.ChatRequest{Messages: []models.Message{
		{Role: models.RoleSystem, Content: "Be brief."},
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "Hello"},
		{Role: models.RoleUser, Content: "Bye"},
	}}

	assert.Equal(t, ToCompletion(req, testDefaults), ToCompletion(req, testDefaults))
}

func TestFromCompletionFirstChoice(t *testing.T) {
	resp := &models.CompletionResponse{
		Model: "local-model",
		Choices: []models.Choice{
			{Index: 0, Message: &models.Message{Role: models.RoleAssistant, Content: "Hello"}, FinishReason: "stop"},
			{Index: 1, Message: &models.Message{Role: models.RoleAssistant, Content: "Hey"}},
		},
		Usage: &models.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
	}

	got := FromCompletion(resp)

	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "Hello"}, got.Message)
	assert.Equal(t, "local-model", got.Model)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 4, got.Usage.TotalTokens)
	assert.Equal(t, "stop", FinishReason(resp))
}

func TestFromCompletionFallback(t *testing.T) {
	fallback := models.Message{Role: models.RoleAssistant, Content: "No response received from the model."}

	tests := []struct {
		name string
		resp *models.CompletionResponse
	}{
		{name: "nil response", resp: nil},
		{name: "empty choices", resp: &models.CompletionResponse{Model: "m"}},
		{name: "choice without message", resp: &models.CompletionResponse{Choices: []models.Choice{{Index: 0, FinishReason: "length"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromCompletion(tt.resp)
			assert.Equal(t, fallback, got.Message)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.ChatRequest
		wantErr error
	}{
		{name: "valid", req: models.ChatRequest{Messages: userMessages("Hi")}},
		{name: "no messages", req: models.ChatRequest{}, wantErr: errEmptyMessages},
		{name: "bad role", req: models.ChatRequest{Messages: []models.Message{{Role: "tool", Content: "x"}}}, wantErr: errInvalidRole},
		{name: "blank model", req: models.ChatRequest{Messages: userMessages("Hi"), Model: ptr("  ")}},
		{name: "temperature above two", req: models.ChatRequest{Messages: userMessages("Hi"), Temperature: ptr(2.5)}},
		{name: "unlimited max tokens", req: models.ChatRequest{Messages: userMessages("Hi"), MaxTokens: ptr(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
