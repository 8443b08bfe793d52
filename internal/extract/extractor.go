// Package extract turns retail flyer images into structured deal batches
// using the Anthropic vision API.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealzen/deals-cli/internal/model"
	"github.com/dealzen/deals-cli/internal/resilience"
	"github.com/dealzen/deals-cli/pkg/anthropic"
)

// systemPrompt defines the extraction task. The schema here must stay in
// lockstep with model.Deal.
const systemPrompt = `You are a precision data extraction engine. Your task is to analyze an image of a retail flyer and extract every single deal or product promotion you see.

You MUST return your answer *only* as a valid JSON list (an array) of JSON objects.

Do not include any other text, pre-amble, or explanations. Your entire response must be the JSON list.

Each object in the list must conform to the following schema:

{
  "product_name": "string (The full product name, e.g., 'Samsung 55\" QLED TV (QN55Q80C)')",
  "sku": "string or null (The product SKU or model number, e.g., 'QN55Q80CBUXA')",
  "product_category": "string or null (The product category, e.g., 'Electronics > Televisions > QLED TVs')",
  "price": "float (The sale price, e.g., 499.99. Use numbers only)",
  "original_price": "float or null (The original/regular price, e.g., 799.99)",
  "store": "string (The store name, e.g., 'Best Buy', 'Walmart')",
  "valid_from": "string or null (The ISO 8601 date the deal starts, e.g., '2025-11-27T08:00:00')",
  "valid_to": "string or null (The ISO 8601 date the deal ends, e.g., '2025-11-28T23:59:59')",
  "deal_type": "string (A short description of the deal, e.g., 'Black Friday Door Crasher', 'Online Special')",
  "in_store_only": "boolean (true if the deal is in-store only, otherwise false)",
  "deal_conditions": "list[string] (A list of fine-print conditions, e.g., ['Limit 1 per customer', 'While supplies last'])",
  "attributes": "list[string] (A list of key product features, e.g., ['QLED', '55-inch', '4K', 'Smart TV'])"
}

--- INSTRUCTIONS ---

1.  **Be Thorough:** Find ALL deals on the page.
2.  **Be Accurate:** Extract prices and names exactly as written.
3.  **Use null:** If a non-required field (like sku or original_price) is not present, use null.
4.  **Infer Booleans:** in_store_only should be true if it's specified, otherwise false.
5.  **Infer Dates:** If specific dates/times are mentioned, use them. If it's just "Black Friday," you can infer the dates. If no date is given, use null.
6.  **Store Name:** Infer the store from the flyer's branding. You must include this in *every* deal object.
7.  **JSON ONLY:** Your output must start with [ and end with ].`

// Extractor runs vision extraction over flyer images.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// Config controls a new Extractor.
type Config struct {
	Model      string
	MaxTokens  int64
	RatePerMin float64
	Retry      *resilience.RetryConfig
}

// New creates an Extractor.
func New(client anthropic.Client, cfg Config) *Extractor {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMin/60.0), 1)
	}
	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger("anthropic", "vision extraction")
	}
	return &Extractor{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limiter:   limiter,
		retry:     retryCfg,
	}
}

// ExtractFile reads a flyer image from disk and extracts its deals.
func (e *Extractor) ExtractFile(ctx context.Context, imagePath string) ([]model.Deal, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read image %s", imagePath)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath)))
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, eris.Errorf("extract: %s is not an image", imagePath)
	}

	return e.Extract(ctx, data, mimeType, filepath.Base(imagePath))
}

// Extract sends one image to the vision model and parses the deal batch.
func (e *Extractor) Extract(ctx context.Context, image []byte, mimeType, filename string) ([]model.Deal, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limit wait")
	}

	temp := 0.1
	req := anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: systemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}}},
		Messages: []anthropic.Message{{
			Role: "user",
			Image: &anthropic.ImageBlock{
				MediaType: mimeType,
				Data:      base64.StdEncoding.EncodeToString(image),
			},
			Content: fmt.Sprintf("Extract all deals from this flyer image. The store appears to be %s. Please be precise.", storeHint(filename)),
		}},
	}

	zap.L().Info("sending flyer to vision model",
		zap.String("image", filename),
		zap.String("model", e.model),
		zap.Int("bytes", len(image)))

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: vision call for %s", filename)
	}
	resp.Usage.LogCost(e.model, "extraction")

	deals, err := ParseResponse(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse response for %s", filename)
	}

	zap.L().Info("extraction complete",
		zap.String("image", filename),
		zap.Int("deals", len(deals)))
	return deals, nil
}

// storeHint guesses the store from a filename like "bestbuy_page1.png".
func storeHint(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if i := strings.IndexAny(stem, "_-"); i > 0 {
		return stem[:i]
	}
	return stem
}

// ParseResponse extracts the JSON deal array from model output. Code fences
// and surrounding prose are tolerated; the array is taken from the first
// '[' to the last ']'.
func ParseResponse(text string) ([]model.Deal, error) {
	cleaned := strings.TrimSpace(text)
	if i := strings.Index(cleaned, "```json"); i >= 0 {
		cleaned = cleaned[i+len("```json"):]
		if j := strings.LastIndex(cleaned, "```"); j >= 0 {
			cleaned = cleaned[:j]
		}
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end < start {
		return nil, eris.New("extract: no JSON array in response")
	}

	deals, err := model.ParseBatch([]byte(cleaned[start : end+1]))
	if err != nil {
		return nil, eris.Wrap(err, "extract: decode deal batch")
	}
	return deals, nil
}
