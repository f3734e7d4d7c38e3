package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"llmchat-gateway/internal/config"
	"llmchat-gateway/internal/models"
	"llmchat-gateway/internal/provider"
	"llmchat-gateway/internal/translator"
)

// Recorder receives service-level measurements.
type Recorder interface {
	AddUsage(u *models.Usage)
	ModelListFallback()
	DiagnoseRun(verdict string)
}

type noopRecorder struct{}

func (noopRecorder) AddUsage(*models.Usage) {}
func (noopRecorder) ModelListFallback()     {}
func (noopRecorder) DiagnoseRun(string)     {}

// ModelListFallback produces the model listing served when the upstream
// listing fails. Model listing never propagates upstream errors; chat does.
type ModelListFallback func(err error) []models.Model

// FallbackToDefaultModel answers a failed listing with the configured
// default model. Servers such as llama.cpp only list models while one is
// loaded, so a failed listing is expected.
func FallbackToDefaultModel(defaultModel string) ModelListFallback {
	return func(err error) []models.Model {
		slog.Warn("/v1/models failed, returning configured default", "model", defaultModel, "err", err)
		return []models.Model{{ID: defaultModel}}
	}
}

// Service translates client requests for the upstream and runs diagnostics.
type Service struct {
	upstream   provider.Upstream
	cfg        config.LLMConfig
	defaults   translator.Defaults
	probe      *http.Client
	onListFail ModelListFallback
	recorder   Recorder
}

// New constructs a service. probe is the client used for the reachability
// check; recorder may be nil.
func New(cfg config.LLMConfig, upstream provider.Upstream, probe *http.Client, recorder Recorder) (*Service, error) {
	if upstream == nil {
		return nil, errors.New("upstream must not be nil")
	}
	if probe == nil {
		return nil, errors.New("probe client must not be nil")
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Service{
		upstream: upstream,
		cfg:      cfg,
		defaults: translator.Defaults{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		probe:      probe,
		onListFail: FallbackToDefaultModel(cfg.Model),
		recorder:   recorder,
	}, nil
}

// Config returns the upstream configuration the service was built with.
func (s *Service) Config() config.LLMConfig {
	return s.cfg
}

// Chat forwards one chat request upstream. Failures are returned as
// *translator.InputError or one of the provider error types; nothing is
// retried.
func (s *Service) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if err := translator.Validate(req); err != nil {
		return models.ChatResponse{}, err
	}
	if req.Stream {
		slog.Debug("streaming requested, answering synchronously")
	}

	completion := translator.ToCompletion(req, s.defaults)
	slog.Info("→ POST /v1/chat/completions", "model", completion.Model, "messages", len(completion.Messages))

	resp, err := s.upstream.PostCompletion(ctx, completion)
	if err != nil {
		var statusErr *provider.StatusError
		if errors.As(err, &statusErr) {
			slog.Error("← upstream HTTP error", "status", statusErr.StatusCode, "body", statusErr.Body)
		} else {
			slog.Error("← upstream call failed", "err", err)
		}
		return models.ChatResponse{}, err
	}

	out := translator.FromCompletion(resp)
	s.recorder.AddUsage(out.Usage)
	slog.Info("← OK", "finish", translator.FinishReason(resp), "tokens", totalTokens(out.Usage))
	return out, nil
}

// ListModels returns the upstream model list, or the fallback listing when
// the upstream call fails for any reason.
func (s *Service) ListModels(ctx context.Context) ([]models.Model, error) {
	list, err := s.upstream.GetModels(ctx)
	if err != nil {
		s.recorder.ModelListFallback()
		return s.onListFail(err), nil
	}

	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	slog.Info("← /v1/models", "count", len(list), "ids", ids)
	return list, nil
}

func totalTokens(u *models.Usage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}
