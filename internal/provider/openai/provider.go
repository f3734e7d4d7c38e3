package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmchat-gateway/internal/models"
	"llmchat-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "llmchat-gateway/0.1"

	opChat   = "chat_completions"
	opModels = "models"

	maxErrorBodyBytes = 64 * 1024
)

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(op, outcome string, elapsed time.Duration)
}

// Provider talks to an OpenAI-compatible server such as llama.cpp or vLLM.
type Provider struct {
	client    *http.Client
	chatURL   string
	modelsURL string
	observer  Observer
}

// New creates a provider for the server at baseURL. observer may be nil.
func New(baseURL string, client *http.Client, observer Observer) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		client:    client,
		chatURL:   baseURL + "/v1/chat/completions",
		modelsURL: baseURL + "/v1/models",
		observer:  observer,
	}, nil
}

// PostCompletion sends one chat completion request.
func (p *Provider) PostCompletion(ctx context.Context, req models.CompletionRequest) (*models.CompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var out models.CompletionResponse
	if err := p.do(ctx, opChat, http.MethodPost, p.chatURL, bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModels lists the models the server currently advertises.
func (p *Provider) GetModels(ctx context.Context) ([]models.Model, error) {
	var out models.ModelList
	if err := p.do(ctx, opModels, http.MethodGet, p.modelsURL, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (p *Provider) do(ctx context.Context, op, method, url string, body io.Reader, target any) (err error) {
	start := time.Now()
	defer func() {
		if p.observer != nil {
			p.observer.ObserveUpstream(op, outcomeOf(err), time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("construct request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return &provider.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &provider.StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &provider.DecodeError{Op: op, Err: err}
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return provider.UnreadableBody
	}
	return strings.TrimSpace(string(data))
}

func outcomeOf(err error) string {
	var (
		transportErr *provider.TransportError
		statusErr    *provider.StatusError
		decodeErr    *provider.DecodeError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.As(err, &statusErr):
		return "status_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	default:
		return "error"
	}
}
