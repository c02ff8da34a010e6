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

// ExaConfig configures the Exa search adapter.
type ExaConfig struct {
	APIKey  string
	BaseURL string
}

type exaAdapter struct {
	cfg    ExaConfig
	client *http.Client
}

// NewExaAdapter builds the "exa" adapter exposing search/contents/answer
// methods against the Exa neural search API, again via a plain REST client
// since no Go SDK for the provider appears anywhere in the retrieval pack.
func NewExaAdapter(cfg ExaConfig) Adapter {
	return &exaAdapter{cfg: cfg, client: &http.Client{}}
}

func (a *exaAdapter) Name() string { return "exa" }

func (a *exaAdapter) Methods() map[string]bool {
	return map[string]bool{"search": true, "contents": true, "answer": true}
}

func (a *exaAdapter) Invoke(ctx context.Context, method string, inputs map[string]any) (Result, error) {
	if a.cfg.APIKey == "" {
		return Result{}, model.NewFatalError(model.ErrConfigError, fmt.Errorf("exa: missing API key"))
	}

	switch method {
	case "search", "contents":
		return a.search(ctx, method, inputs)
	case "answer":
		return a.answer(ctx, inputs)
	default:
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("exa: unknown method %q", method))
	}
}

func (a *exaAdapter) search(ctx context.Context, method string, inputs map[string]any) (Result, error) {
	query, _ := inputs["query"].(string)
	if query == "" {
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("exa.%s: missing required input %q", method, "query"))
	}

	payload := map[string]any{
		"query":      query,
		"numResults": 10,
		"contents":   map[string]any{"text": true},
	}
	if startDate, ok := inputs["start_published_date"].(string); ok && startDate != "" {
		payload["startPublishedDate"] = startDate
	}

	resp, err := a.post(ctx, "/search", payload)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return Result{}, err
	}

	var parsed exaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("exa: decode response: %w", err)
	}

	return Result{Evidence: parsed.toEvidence()}, nil
}

func (a *exaAdapter) answer(ctx context.Context, inputs map[string]any) (Result, error) {
	query, _ := inputs["query"].(string)
	if query == "" {
		return Result{}, model.NewFatalError(model.ErrStrategyError, fmt.Errorf("exa.answer: missing required input %q", "query"))
	}

	resp, err := a.post(ctx, "/answer", map[string]any{"query": query})
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return Result{}, err
	}

	var parsed exaAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("exa: decode response: %w", err)
	}

	now := time.Now()
	return Result{Evidence: []model.Evidence{{
		Tool:        model.ToolExaAnswer,
		Snippet:     parsed.Answer,
		PublishedAt: &now,
	}}}, nil
}

func (a *exaAdapter) post(ctx context.Context, path string, payload map[string]any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("exa: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("exa: build request: %w", err)
	}
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, model.NewRetryableError(model.ErrAdapterRetryable, fmt.Errorf("exa: request failed: %w", err))
	}
	return resp, nil
}

type exaSearchResponse struct {
	Results []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		Text          string `json:"text"`
		Author        string `json:"author"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

func (r exaSearchResponse) toEvidence() []model.Evidence {
	out := make([]model.Evidence, 0, len(r.Results))
	for _, res := range r.Results {
		e := model.Evidence{
			URL:       res.URL,
			Title:     res.Title,
			Snippet:   res.Text,
			Publisher: res.Author,
			Tool:      "exa.search",
		}
		if ts, err := time.Parse(time.RFC3339, res.PublishedDate); err == nil {
			e.PublishedAt = &ts
		}
		out = append(out, e)
	}
	return out
}

type exaAnswerResponse struct {
	Answer string `json:"answer"`
}
