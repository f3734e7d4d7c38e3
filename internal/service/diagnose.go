package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"llmchat-gateway/internal/models"
)

// Report keys, in the order they are written.
const (
	KeyAPIURL            = "llm_api_url"
	KeyAPIModel          = "llm_api_model"
	KeyTargetCompletions = "target_completions"
	KeyTargetModels      = "target_models"
	KeyTCPCheck          = "tcp_check"
	KeyModelsCheck       = "models_check"
	KeyCompletionsCheck  = "completions_check"
	KeyVerdict           = "verdict"
)

const (
	VerdictOK       = "ok"
	VerdictFailures = "has failures"

	outcomeFailedPrefix = "FAILED"
	outcomeSkipped      = "SKIPPED (server unreachable)"

	probePrompt    = "Hi"
	probeMaxTokens = 8
	previewLimit   = 80
)

var checkKeys = []string{KeyTCPCheck, KeyModelsCheck, KeyCompletionsCheck}

// ReportEntry is one line of a diagnostic report.
type ReportEntry struct {
	Key   string
	Value string
}

// Report is an ordered set of diagnostic outcomes. It marshals to a JSON
// object whose keys keep insertion order.
type Report struct {
	entries []ReportEntry
}

// Set records value under key, replacing an earlier value in place.
func (r *Report) Set(key, value string) {
	for i := range r.entries {
		if r.entries[i].Key == key {
			r.entries[i].Value = value
			return
		}
	}
	r.entries = append(r.entries, ReportEntry{Key: key, Value: value})
}

// Get returns the value recorded under key.
func (r Report) Get(key string) (string, bool) {
	for _, e := range r.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Entries returns a copy of the report lines in order.
func (r Report) Entries() []ReportEntry {
	out := make([]ReportEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Failed reports whether any check outcome starts with FAILED.
func (r Report) Failed() bool {
	for _, key := range checkKeys {
		if v, ok := r.Get(key); ok && strings.HasPrefix(v, outcomeFailedPrefix) {
			return true
		}
	}
	return false
}

// MarshalJSON writes the entries as a single JSON object in order.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Diagnose runs the reachability, model-list and completion checks in
// sequence. A failed reachability check skips the other two. Stage failures
// are recorded in the report and never returned.
func (s *Service) Diagnose(ctx context.Context) Report {
	var r Report
	r.Set(KeyAPIURL, s.cfg.BaseURL)
	r.Set(KeyAPIModel, s.cfg.Model)
	r.Set(KeyTargetCompletions, s.cfg.CompletionsURL())
	r.Set(KeyTargetModels, s.cfg.ModelsURL())

	tcp, reachable := s.checkReachable(ctx)
	r.Set(KeyTCPCheck, tcp)

	if reachable {
		r.Set(KeyModelsCheck, s.checkModels(ctx))
		r.Set(KeyCompletionsCheck, s.checkCompletion(ctx))
	} else {
		r.Set(KeyModelsCheck, outcomeSkipped)
		r.Set(KeyCompletionsCheck, outcomeSkipped)
	}

	verdict := VerdictOK
	if r.Failed() {
		verdict = VerdictFailures
	}
	r.Set(KeyVerdict, verdict)
	s.recorder.DiagnoseRun(verdict)
	return r
}

func (s *Service) checkReachable(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL, nil)
	if err != nil {
		return failed(describe(err)), false
	}

	resp, err := s.probe.Do(req)
	if err != nil {
		return failed(describe(err)), false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	return fmt.Sprintf("OK — HTTP %d", resp.StatusCode), true
}

func (s *Service) checkModels(ctx context.Context) string {
	list, err := s.ListModels(ctx)
	if err != nil {
		return failed(err.Error())
	}

	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	return "OK — [" + strings.Join(ids, ", ") + "]"
}

func (s *Service) checkCompletion(ctx context.Context) string {
	model := s.cfg.Model
	temperature := 0.0
	maxTokens := probeMaxTokens

	resp, err := s.Chat(ctx, models.ChatRequest{
		Messages:    []models.Message{{Role: models.RoleUser, Content: probePrompt}},
		Model:       &model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return failed(err.Error())
	}
	return `OK — reply: "` + preview(resp.Message.Content, previewLimit) + `"`
}

func failed(msg string) string {
	return outcomeFailedPrefix + " — " + msg
}

// describe names the innermost transport error the way a stack trace would:
// "OpError: dial tcp 127.0.0.1:1: connect: connection refused".
func describe(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	kind := fmt.Sprintf("%T", err)
	if i := strings.LastIndex(kind, "."); i >= 0 {
		kind = kind[i+1:]
	}
	return kind + ": " + err.Error()
}

func preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
