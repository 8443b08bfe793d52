package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealzen/deals-cli/pkg/anthropic"
	"github.com/dealzen/deals-cli/pkg/weaviate"
)

type fakeSearch struct {
	results []weaviate.SearchResult
	err     error
	queries []string
}

func (f *fakeSearch) EnsureSchema(context.Context) error    { return nil }
func (f *fakeSearch) DeleteCollection(context.Context) error { return nil }

func (f *fakeSearch) BatchInsert(context.Context, []weaviate.Object) (*weaviate.BatchReport, error) {
	return &weaviate.BatchReport{}, nil
}

func (f *fakeSearch) Hybrid(_ context.Context, query string) ([]weaviate.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	reqs   []anthropic.MessageRequest
}

func (f *fakeGenerator) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.answer}},
	}, nil
}

func testPipeline(search *fakeSearch, gen *fakeGenerator) *Pipeline {
	p := NewPipeline(search, gen, PipelineConfig{Reconcile: testReconcileConfig()})
	// Tests should not wait out backoff on injected failures.
	p.retry.MaxAttempts = 1
	return p
}

func TestPipelineEmptyRetrieval(t *testing.T) {
	search := &fakeSearch{}
	gen := &fakeGenerator{}
	p := testPipeline(search, gen)

	resp, err := p.Answer(context.Background(), "any tv deals?")
	require.NoError(t, err)

	assert.Equal(t, emptyStateAnswer, resp.Answer)
	assert.NotNil(t, resp.SourceDeals)
	assert.Empty(t, resp.SourceDeals)
	assert.Empty(t, gen.reqs, "generation must be skipped with nothing retrieved")
}

func TestPipelineFullPath(t *testing.T) {
	search := &fakeSearch{results: []weaviate.SearchResult{
		{FullJSON: `{"product_name":"Sony Bravia 55","store":"Best Buy"}`, Score: 0.9},
		{FullJSON: `{"product_name":"LG C4 OLED","store":"Best Buy"}`, Score: 0.8},
		{FullJSON: `{"product_name":"AirPods Pro","store":"Best Buy"}`, Score: 0.4},
	}}
	gen := &fakeGenerator{answer: "Two TVs stand out.\nRELEVANT_DEALS: 1, 2"}
	p := testPipeline(search, gen)

	resp, err := p.Answer(context.Background(), "best tv deals")
	require.NoError(t, err)

	assert.Equal(t, "Two TVs stand out.", resp.Answer)
	require.Len(t, resp.SourceDeals, 2)
	assert.Equal(t, "Sony Bravia 55", resp.SourceDeals[0].ProductName)
	assert.Equal(t, "LG C4 OLED", resp.SourceDeals[1].ProductName)

	require.Len(t, gen.reqs, 1)
	req := gen.reqs[0]
	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0].Text, "--- Deal 1 ---")
	assert.Contains(t, req.System[0].Text, "Sony Bravia 55")
	assert.Contains(t, req.System[0].Text, RelevanceMarker)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "best tv deals", req.Messages[0].Content)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
}

func TestPipelineRetrievalError(t *testing.T) {
	search := &fakeSearch{err: eris.New("connection refused")}
	gen := &fakeGenerator{}
	p := testPipeline(search, gen)

	_, err := p.Answer(context.Background(), "deals?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hybrid retrieval")
	assert.Empty(t, gen.reqs)
}

func TestPipelineBadCandidatePayload(t *testing.T) {
	search := &fakeSearch{results: []weaviate.SearchResult{{FullJSON: "{not json"}}}
	p := testPipeline(search, &fakeGenerator{})

	_, err := p.Answer(context.Background(), "deals?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode candidate payload")
}

func TestPipelineGenerationError(t *testing.T) {
	search := &fakeSearch{results: []weaviate.SearchResult{
		{FullJSON: `{"product_name":"Sony Bravia 55"}`},
	}}
	gen := &fakeGenerator{err: eris.New("overloaded")}
	p := testPipeline(search, gen)

	_, err := p.Answer(context.Background(), "deals?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate answer")
}

func TestPipelineNoDealsAnswerHidesSources(t *testing.T) {
	search := &fakeSearch{results: []weaviate.SearchResult{
		{FullJSON: `{"product_name":"Sony Bravia 55"}`},
		{FullJSON: `{"product_name":"LG C4 OLED"}`},
	}}
	gen := &fakeGenerator{answer: "Sorry, I couldn't find any deals.\nRELEVANT_DEALS: 1,2"}
	p := testPipeline(search, gen)

	resp, err := p.Answer(context.Background(), "fridge deals")
	require.NoError(t, err)
	assert.Empty(t, resp.SourceDeals)
	assert.Equal(t, "Sorry, I couldn't find any deals.", resp.Answer)
}

func TestFormatContextNumbersCandidates(t *testing.T) {
	ctx := formatContext([]weaviate.SearchResult{
		{FullJSON: `{"a":1}`},
		{FullJSON: `{"b":2}`},
	})

	assert.True(t, strings.HasPrefix(ctx, "Available deals (Context):\n"))
	assert.Contains(t, ctx, "--- Deal 1 ---\n{\"a\":1}")
	assert.Contains(t, ctx, "--- Deal 2 ---\n{\"b\":2}")
}
