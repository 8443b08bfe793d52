package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealzen/deals-cli/internal/config"
	"github.com/dealzen/deals-cli/internal/model"
	"github.com/dealzen/deals-cli/internal/resilience"
	"github.com/dealzen/deals-cli/pkg/anthropic"
	"github.com/dealzen/deals-cli/pkg/weaviate"
)

// emptyStateAnswer is returned when retrieval finds nothing at all.
const emptyStateAnswer = "I'm sorry, I couldn't find any specific deals matching your query."

const answerPromptFormat = `You are a helpful Black Friday shopping assistant.
Your goal is to answer the user's question based *only* on the deals provided in the context.
Do not use any outside knowledge.
If the deals do not contain the answer, say "I'm sorry, I couldn't find any deals for that."
Be friendly, concise, and helpful. Summarize the deals that match the query.

IMPORTANT: After your answer, on a new line, write "RELEVANT_DEALS:" followed by a comma-separated list of deal numbers (1, 2, 3, etc.) that are relevant to the user's query.
Include ALL deals that match the user's intent, even if you don't mention every single one in your answer. Be generous in determining relevance.

Example format:
[Your friendly answer about the deals]
RELEVANT_DEALS: 1, 3

Context:
%s`

// Response is the chat contract returned to callers.
type Response struct {
	Answer      string       `json:"answer"`
	SourceDeals []model.Deal `json:"source_deals"`
}

// Pipeline answers a query by retrieving deals and generating a grounded
// answer over them.
type Pipeline struct {
	search    weaviate.Client
	generator anthropic.Client
	model     string
	maxTokens int64
	reconcile config.ReconcileConfig
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Model     string
	MaxTokens int64
	Reconcile config.ReconcileConfig
}

// NewPipeline creates a query pipeline. The circuit breaker guards the
// search engine so a down index fails fast.
func NewPipeline(search weaviate.Client, generator anthropic.Client, cfg PipelineConfig) *Pipeline {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "answer generation")
	return &Pipeline{
		search:    search,
		generator: generator,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		reconcile: cfg.Reconcile,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("search engine circuit state change",
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		}),
		retry: retryCfg,
	}
}

// Answer runs the full query path: retrieve, generate, reconcile.
func (p *Pipeline) Answer(ctx context.Context, query string) (*Response, error) {
	results, err := resilience.ExecuteVal(p.breaker, func() ([]weaviate.SearchResult, error) {
		return p.search.Hybrid(ctx, query)
	})
	if err != nil {
		return nil, eris.Wrap(err, "rag: hybrid retrieval")
	}

	if len(results) == 0 {
		zap.L().Info("no retrieval results", zap.String("query", query))
		return &Response{Answer: emptyStateAnswer, SourceDeals: []model.Deal{}}, nil
	}

	candidates := make([]model.Deal, 0, len(results))
	for _, r := range results {
		var d model.Deal
		if err := json.Unmarshal([]byte(r.FullJSON), &d); err != nil {
			return nil, eris.Wrap(err, "rag: decode candidate payload")
		}
		candidates = append(candidates, d)
	}

	raw, err := p.generate(ctx, formatContext(results), query)
	if err != nil {
		return nil, eris.Wrap(err, "rag: generate answer")
	}

	answer, shown := Reconcile(candidates, raw, p.reconcile)
	zap.L().Info("query answered",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("shown", len(shown)))
	return &Response{Answer: answer, SourceDeals: shown}, nil
}

// formatContext numbers each candidate so the generator can reference them.
func formatContext(results []weaviate.SearchResult) string {
	var b strings.Builder
	b.WriteString("Available deals (Context):\n")
	for i, r := range results {
		fmt.Fprintf(&b, "--- Deal %d ---\n%s\n\n", i+1, r.FullJSON)
	}
	return b.String()
}

func (p *Pipeline) generate(ctx context.Context, contextText, query string) (string, error) {
	temp := 0.3
	req := anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: fmt.Sprintf(answerPromptFormat, contextText)}},
		Messages:    []anthropic.Message{{Role: "user", Content: query}},
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.generator.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(p.model, "generation")
	return resp.Text(), nil
}
