// Package weaviate is a REST/GraphQL client for the Weaviate search engine,
// covering the operations the deals index needs: schema management, batch
// object insert, and hybrid (vector + keyword) search.
package weaviate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL    = "http://localhost:8080"
	defaultCollection = "Deal"
	defaultAlpha      = 0.5
	defaultLimit      = 20
)

// hybridProperties are the fields targeted by hybrid search. vector_text is
// boosted because it carries the composite embedding text.
var hybridProperties = []string{"vector_text^2", "product_name", "sku", "product_category"}

// Client defines the search engine operations used by the pipeline.
type Client interface {
	EnsureSchema(ctx context.Context) error
	DeleteCollection(ctx context.Context) error
	BatchInsert(ctx context.Context, objects []Object) (*BatchReport, error)
	Hybrid(ctx context.Context, query string) ([]SearchResult, error)
}

// Object is a single document to index.
type Object struct {
	ProductName     string
	SKU             string
	ProductCategory string
	Store           string
	ValidTo         string // RFC3339; empty when open-ended
	VectorText      string
	FullJSON        string // serialized source record, returned verbatim on search
}

// BatchReport summarizes a batch insert.
type BatchReport struct {
	Inserted int
	Failed   int
	Errors   []string // first few failure messages
}

// SearchResult is one hybrid search hit.
type SearchResult struct {
	FullJSON string
	Score    float64
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default instance URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithCollection overrides the default collection name.
func WithCollection(name string) Option {
	return func(c *httpClient) {
		c.collection = name
	}
}

// WithAPIKey sets the Weaviate API key.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithVectorizerKey sets the key forwarded to the model provider that
// computes embeddings server-side.
func WithVectorizerKey(key string) Option {
	return func(c *httpClient) {
		c.vectorizerKey = key
	}
}

// WithAlpha sets the hybrid vector/keyword balance (0 = pure keyword,
// 1 = pure vector).
func WithAlpha(alpha float64) Option {
	return func(c *httpClient) {
		c.alpha = alpha
	}
}

// WithLimit sets the maximum results per query.
func WithLimit(limit int) Option {
	return func(c *httpClient) {
		c.limit = limit
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL       string
	apiKey        string
	vectorizerKey string
	collection    string
	alpha         float64
	limit         int
	http          *http.Client
}

// NewClient creates a search engine client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:    defaultBaseURL,
		collection: defaultCollection,
		alpha:      defaultAlpha,
		limit:      defaultLimit,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// classDef is the collection schema. vector_text is the only vectorized
// property; everything else is stored for keyword search and display.
func (c *httpClient) classDef() map[string]any {
	textProp := func(name string, vectorize bool) map[string]any {
		p := map[string]any{
			"name":     name,
			"dataType": []string{"text"},
		}
		if !vectorize {
			p["moduleConfig"] = map[string]any{
				"text2vec-openai": map[string]any{"skip": true},
			}
		}
		return p
	}
	return map[string]any{
		"class":      c.collection,
		"vectorizer": "text2vec-openai",
		"properties": []map[string]any{
			textProp("vector_text", true),
			textProp("product_name", false),
			textProp("sku", false),
			textProp("product_category", false),
			textProp("store", false),
			textProp("valid_to", false),
			textProp("full_json", false),
		},
	}
}

func (c *httpClient) EnsureSchema(ctx context.Context) error {
	// Probe first so repeated ingests are idempotent.
	status, _, err := c.do(ctx, http.MethodGet, "/v1/schema/"+c.collection, nil)
	if err != nil {
		return eris.Wrap(err, "weaviate: check schema")
	}
	if status == http.StatusOK {
		return nil
	}

	status, body, err := c.do(ctx, http.MethodPost, "/v1/schema", c.classDef())
	if err != nil {
		return eris.Wrap(err, "weaviate: create schema")
	}
	if status != http.StatusOK {
		return eris.Errorf("weaviate: create schema status %d: %s", status, string(body))
	}
	return nil
}

func (c *httpClient) DeleteCollection(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/v1/schema/"+c.collection, nil)
	if err != nil {
		return eris.Wrap(err, "weaviate: delete collection")
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return eris.Errorf("weaviate: delete collection status %d: %s", status, string(body))
	}
	return nil
}

// batchObject is the wire form for POST /v1/batch/objects.
type batchObject struct {
	Class      string         `json:"class"`
	Properties map[string]any `json:"properties"`
}

type batchResultItem struct {
	Result struct {
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

const maxBatchErrorDetails = 3

func (c *httpClient) BatchInsert(ctx context.Context, objects []Object) (*BatchReport, error) {
	if len(objects) == 0 {
		return &BatchReport{}, nil
	}

	wire := make([]batchObject, len(objects))
	for i, o := range objects {
		wire[i] = batchObject{
			Class: c.collection,
			Properties: map[string]any{
				"vector_text":      o.VectorText,
				"product_name":     o.ProductName,
				"sku":              o.SKU,
				"product_category": o.ProductCategory,
				"store":            o.Store,
				"valid_to":         o.ValidTo,
				"full_json":        o.FullJSON,
			},
		}
	}

	status, body, err := c.do(ctx, http.MethodPost, "/v1/batch/objects", map[string]any{"objects": wire})
	if err != nil {
		return nil, eris.Wrap(err, "weaviate: batch insert")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("weaviate: batch insert status %d: %s", status, string(body))
	}

	var items []batchResultItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, eris.Wrap(err, "weaviate: decode batch response")
	}

	report := &BatchReport{}
	for _, item := range items {
		if item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			report.Failed++
			if len(report.Errors) < maxBatchErrorDetails {
				report.Errors = append(report.Errors, item.Result.Errors.Error[0].Message)
			}
			continue
		}
		report.Inserted++
	}
	return report, nil
}

// hybridQuery builds the GraphQL hybrid search. Expired deals are filtered
// out server-side on valid_to.
func (c *httpClient) hybridQuery(query string, now time.Time) string {
	props, _ := json.Marshal(hybridProperties)
	escaped, _ := json.Marshal(query)
	nowStr, _ := json.Marshal(now.UTC().Format(time.RFC3339))
	return fmt.Sprintf(`{
  Get {
    %s(
      hybrid: {query: %s, alpha: %g, properties: %s}
      where: {operator: Or, operands: [
        {path: ["valid_to"], operator: GreaterThanEqual, valueText: %s},
        {path: ["valid_to"], operator: Equal, valueText: ""}
      ]}
      limit: %d
    ) {
      full_json
      _additional { score }
    }
  }
}`, c.collection, string(escaped), c.alpha, string(props), string(nowStr), c.limit)
}

type graphqlResponse struct {
	Data   map[string]map[string][]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type hybridHit struct {
	FullJSON   string `json:"full_json"`
	Additional struct {
		Score string `json:"score"`
	} `json:"_additional"`
}

func (c *httpClient) Hybrid(ctx context.Context, query string) ([]SearchResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/graphql", map[string]any{
		"query": c.hybridQuery(query, time.Now()),
	})
	if err != nil {
		return nil, eris.Wrap(err, "weaviate: hybrid search")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("weaviate: hybrid search status %d: %s", status, string(body))
	}

	var resp graphqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "weaviate: decode hybrid response")
	}
	if len(resp.Errors) > 0 {
		return nil, eris.Errorf("weaviate: hybrid search error: %s", resp.Errors[0].Message)
	}

	raws := resp.Data["Get"][c.collection]
	results := make([]SearchResult, 0, len(raws))
	for _, raw := range raws {
		var hit hybridHit
		if err := json.Unmarshal(raw, &hit); err != nil {
			return nil, eris.Wrap(err, "weaviate: decode hit")
		}
		r := SearchResult{FullJSON: hit.FullJSON}
		// Weaviate reports hybrid scores as strings.
		fmt.Sscanf(hit.Additional.Score, "%f", &r.Score)
		results = append(results, r)
	}
	return results, nil
}

// do sends a JSON request and returns status plus raw body. A nil payload
// sends no body.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, eris.Wrap(err, "weaviate: marshal request")
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, eris.Wrap(err, "weaviate: create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.vectorizerKey != "" {
		req.Header.Set("X-OpenAI-Api-Key", c.vectorizerKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "weaviate: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, eris.Wrap(err, "weaviate: read response")
	}
	return resp.StatusCode, respBody, nil
}
