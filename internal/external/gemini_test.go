package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/types"
)

func newTestGemini(serverURL string) *GeminiClient {
	base := NewBaseClient(&http.Client{Timeout: time.Second}, "gemini-test",
		RetryPolicy{MaxRetries: 0}, "BugSpotter-Test/1.0", WithSleepFunc(noopSleep))
	return NewGeminiClientWithBase(base, GeminiConfig{APIKey: "g-key", BaseURL: serverURL})
}

func TestGemini_GenerateContent(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &captured))

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"name\":"},{"text":"\"Ladybug\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	text, err := newTestGemini(server.URL).GenerateContent(context.Background(), GenerateRequest{
		Images: []InlineImage{{MimeType: "image/jpeg", Data: "AAAA"}, {MimeType: "image/jpeg", Data: "BBBB"}},
		Prompt: "identify",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ladybug"}`, text)

	require.Len(t, captured.Contents, 1)
	parts := captured.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "AAAA", parts[0].InlineData.Data)
	assert.Equal(t, "BBBB", parts[1].InlineData.Data)
	assert.Equal(t, "identify", parts[2].Text)
	assert.Equal(t, 0.2, captured.GenerationConfig.Temperature)
	assert.Equal(t, 40, captured.GenerationConfig.TopK)
	assert.Equal(t, 2048, captured.GenerationConfig.MaxOutputTokens)
	assert.Len(t, captured.SafetySettings, 4)
}

func TestGemini_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode types.ErrorCode
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad image"}}`, types.ErrCodeUpstreamVision},
		{"blocked prompt", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, types.ErrCodeUpstreamVision},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, types.ErrCodeUpstreamInvalidResponse},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`, types.ErrCodeUpstreamInvalidResponse},
		{"garbage", http.StatusOK, `not json`, types.ErrCodeUpstreamInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestGemini(server.URL).GenerateContent(context.Background(), GenerateRequest{Prompt: "x"})
			require.Error(t, err)
			assert.True(t, types.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}
