package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"scoutline.dev/orchestrator/internal/model"
)

// SonarConfig configures the Perplexity Sonar adapter.
type SonarConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type sonarAdapter struct {
	cfg    SonarConfig
	client *http.Client
}

// NewSonarAdapter builds the "sonar" adapter exposing search/overview/answer
// methods against the Perplexity Sonar API. There is no Go SDK for this
// provider in the retrieval pack, so the adapter speaks the REST API
// directly over net/http.
func NewSonarAdapter(cfg SonarConfig) Adapter {
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	return &sonarAdapter{cfg: cfg, client: &http.Client{}}
}

func (a *sonarAdapter) Name() string { return "sonar" }

func (a *sonarAdapter) Methods() map[string]bool {
	return map[string]bool{"search": true, "overview": true, "answer": true}
}

func (a *sonarAdapter) Invoke(ctx context.Context, method string, inputs map[string]any) (Result, error) {
	if a.cfg.APIKey == "" {
		return Result{}, model.NewFatalError(model.ErrConfigError, fmt.Errorf("sonar: missing API key"))
	}

	query, _ := inputs["query"].(string)
	if query == "" {
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("sonar.%s: missing required input %q", method, "query"))
	}

	recency, _ := inputs["search_recency_filter"].(string)

	body, err := json.Marshal(map[string]any{
		"model": a.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": query},
		},
		"search_recency_filter": recency,
	})
	if err != nil {
		return Result{}, fmt.Errorf("sonar: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("sonar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, model.NewRetryableError(model.ErrAdapterRetryable, fmt.Errorf("sonar: request failed: %w", err))
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return Result{}, err
	}

	var parsed sonarResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("sonar: decode response: %w", err)
	}

	return Result{Evidence: parsed.toEvidence(method)}, nil
}

type sonarResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (r sonarResponse) toEvidence(method string) []model.Evidence {
	now := time.Now()

	if len(r.Citations) == 0 {
		content := ""
		if len(r.Choices) > 0 {
			content = r.Choices[0].Message.Content
		}
		return []model.Evidence{{
			Tool:        model.ToolSonarAnswer,
			Snippet:     content,
			PublishedAt: &now,
			Score:       0,
		}}
	}

	out := make([]model.Evidence, 0, len(r.Citations))
	content := ""
	if len(r.Choices) > 0 {
		content = r.Choices[0].Message.Content
	}
	for _, url := range r.Citations {
		out = append(out, model.Evidence{
			URL:         url,
			Snippet:     content,
			Tool:        "sonar." + method,
			PublishedAt: &now,
		})
	}
	return out
}

// classifyStatus translates an HTTP status code into the adapter error
// taxonomy: 402 (credit exhausted) is reported so the caller can skip the
// step and continue the plan, other 4xx are fatal-but-non-retryable, and
// 429/5xx are retryable.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusPaymentRequired:
		return model.NewFatalError(model.ErrProviderExhausted, fmt.Errorf("provider reported exhausted credits (402)"))
	case code == http.StatusTooManyRequests || code >= 500:
		return model.NewRetryableError(model.ErrAdapterRetryable, fmt.Errorf("provider returned retryable status %d", code))
	case code >= 400:
		return model.NewFatalError(model.ErrProviderUnavailable, fmt.Errorf("provider returned non-retryable status %d", code))
	default:
		return nil
	}
}
