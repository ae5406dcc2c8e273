package llm

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

	"github.com/comigor/chatwidget-go/internal/config"
	"github.com/comigor/chatwidget-go/internal/history"
	"github.com/comigor/chatwidget-go/internal/logger"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-1.5-flash"
	maxGeminiBody        = 4 << 20
)

// Gemini calls the generateContent REST endpoint directly.
type Gemini struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewGemini creates a new Gemini client.
func NewGemini(cfg config.LLMConfig, log *slog.Logger) *Gemini {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.L
	}
	return &Gemini{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		model:        model,
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       log,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

// Every level is a pointer or slice so a missing field decodes to nil instead of
// failing.
type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r geminiResponse) reply() string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

func (c *Gemini) endpoint() string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	return fmt.Sprintf("%s/models/%s:generateContent?%s", c.baseURL, url.PathEscape(c.model), q.Encode())
}

// Generate implements Client.
func (c *Gemini) Generate(ctx context.Context, messages []history.Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: set llm.api_key or GEMINI_API_KEY", ErrMissingAPIKey)
	}

	payload := geminiRequest{Contents: toGeminiContents(messages)}
	if c.systemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.systemPrompt}}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gemini request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, maxGeminiBody))
	if err != nil {
		return "", fmt.Errorf("%w: read gemini response: %w", ErrNetwork, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Error("gemini generateContent failed", "status", res.StatusCode, "body", strings.TrimSpace(string(respBody)))
		return "", &HTTPStatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var response geminiResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("%w: decode gemini response: %w", ErrMalformedResponse, err)
	}
	reply := response.reply()
	if reply == "" {
		c.logger.Warn("gemini response carried no reply text", "model", c.model)
		return FallbackReply, nil
	}
	return reply, nil
}

func toGeminiContents(messages []history.Message) []geminiContent {
	out := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == history.RoleAssistant {
			role = "model"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text}}})
	}
	return out
}
