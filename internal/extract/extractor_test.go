package extract

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealzen/deals-cli/internal/resilience"
	"github.com/dealzen/deals-cli/pkg/anthropic"
)

type fakeVision struct {
	text string
	err  error
	reqs []anthropic.MessageRequest
}

func (f *fakeVision) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}},
	}, nil
}

func noRetry() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 1
	return &cfg
}

const dealJSON = `[{"product_name":"Sony Bravia 55","price":499.99,"store":"Best Buy"}]`

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{"bare_array", dealJSON, 1, false},
		{"json_fence", "```json\n" + dealJSON + "\n```", 1, false},
		{"surrounding_prose", "Here are the deals:\n" + dealJSON + "\nLet me know if you need more.", 1, false},
		{"empty_array", "[]", 0, false},
		{"no_array", "I could not find any deals in this image.", 0, true},
		{"malformed_array", `[{"product_name": }]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deals, err := ParseResponse(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, deals, tt.want)
		})
	}
}

func TestStoreHint(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"bestbuy_page1.png", "bestbuy"},
		{"walmart-bf-2025.jpg", "walmart"},
		{"costco.jpeg", "costco"},
		{"flyer.png", "flyer"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, storeHint(tt.filename), tt.filename)
	}
}

func TestExtractBuildsVisionRequest(t *testing.T) {
	vision := &fakeVision{text: dealJSON}
	e := New(vision, Config{Retry: noRetry()})

	image := []byte("fake png bytes")
	deals, err := e.Extract(context.Background(), image, "image/png", "bestbuy_page1.png")
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "Sony Bravia 55", deals[0].ProductName)

	require.Len(t, vision.reqs, 1)
	req := vision.reqs[0]
	assert.Equal(t, "claude-sonnet-4-5-20250929", req.Model)

	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0].Text, "precision data extraction engine")
	require.NotNil(t, req.System[0].CacheControl)
	assert.Equal(t, "5m", req.System[0].CacheControl.TTL)

	require.Len(t, req.Messages, 1)
	msg := req.Messages[0]
	require.NotNil(t, msg.Image)
	assert.Equal(t, "image/png", msg.Image.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), msg.Image.Data)
	assert.Contains(t, msg.Content, "bestbuy")

	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.1, *req.Temperature, 1e-9)
}

func TestExtractWrapsVisionError(t *testing.T) {
	vision := &fakeVision{err: eris.New("overloaded")}
	e := New(vision, Config{Retry: noRetry()})

	_, err := e.Extract(context.Background(), []byte("x"), "image/png", "bestbuy_page1.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision call for bestbuy_page1.png")
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "target_doorbusters.png")
	require.NoError(t, os.WriteFile(imagePath, []byte("fake png bytes"), 0o644))

	vision := &fakeVision{text: dealJSON}
	e := New(vision, Config{Retry: noRetry()})

	deals, err := e.ExtractFile(context.Background(), imagePath)
	require.NoError(t, err)
	assert.Len(t, deals, 1)

	require.Len(t, vision.reqs, 1)
	assert.Equal(t, "image/png", vision.reqs[0].Messages[0].Image.MediaType)
}

func TestExtractFileRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	notImage := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("hello"), 0o644))

	e := New(&fakeVision{text: dealJSON}, Config{Retry: noRetry()})
	_, err := e.ExtractFile(context.Background(), notImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
}

func TestExtractFileMissing(t *testing.T) {
	e := New(&fakeVision{}, Config{Retry: noRetry()})
	_, err := e.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "absent.png"))
	require.Error(t, err)
}
