package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bugspotter/internal/types"
)

const (
	geminiAPIBase      = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel = "gemini-1.5-flash"
)

// GeminiConfig configures the generative vision client.
type GeminiConfig struct {
	APIKey  string
	Model   string // defaults to DefaultGeminiModel
	BaseURL string // defaults to geminiAPIBase
	Logger  *slog.Logger
}

// InlineImage is one base64-encoded image part.
type InlineImage struct {
	MimeType string
	Data     string
}

// GenerateRequest is a single-turn multimodal prompt: images first, then text.
type GenerateRequest struct {
	Images []InlineImage
	Prompt string
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Low temperature keeps identifications stable across retries.
var identificationGenerationConfig = geminiGenerationConfig{
	Temperature:     0.2,
	TopP:            0.8,
	TopK:            40,
	MaxOutputTokens: 2048,
}

var defaultSafetySettings = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	base    *BaseClient
	apiKey  string
	model   string
	baseURL string
	logger  *slog.Logger
}

// NewGeminiClient creates a client. Image requests are slow, so the caller's
// http.Client should allow at least 30 seconds.
func NewGeminiClient(httpClient *http.Client, cfg GeminiConfig) *GeminiClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"gemini",
		RetryPolicy{MaxRetries: 2, MinWait: time.Second, MaxWait: 8 * time.Second},
		"BugSpotter/1.0",
		WithLogger(logger),
	)
	return NewGeminiClientWithBase(base, cfg)
}

// NewGeminiClientWithBase creates a client around a pre-built BaseClient.
func NewGeminiClientWithBase(base *BaseClient, cfg GeminiConfig) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		base:    base,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// GenerateContent sends the prompt and returns the concatenated text of the
// first candidate.
func (c *GeminiClient) GenerateContent(ctx context.Context, in GenerateRequest) (string, error) {
	parts := make([]geminiPart, 0, len(in.Images)+1)
	for _, img := range in.Images {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Data}})
	}
	parts = append(parts, geminiPart{Text: in.Prompt})

	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		SafetySettings:   defaultSafetySettings,
		GenerationConfig: identificationGenerationConfig,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode vision request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build vision request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamVision, "failed to read vision response", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "vision API returned error",
			"status", resp.StatusCode, "body", truncate(string(respBody), 512))
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamVision,
			fmt.Sprintf("vision API returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode})
	}

	var out geminiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamInvalidResponse, "failed to decode vision response", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamVision, "prompt was blocked", nil,
			map[string]any{"block_reason": out.PromptFeedback.BlockReason})
	}
	if len(out.Candidates) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamInvalidResponse, "vision response has no candidates", nil)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamInvalidResponse, "vision response has no text", nil,
			map[string]any{"finish_reason": out.Candidates[0].FinishReason})
	}
	return sb.String(), nil
}
