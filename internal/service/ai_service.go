package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fitcoach_backend/internal/config"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// GenerateOptions 单次文本生成的参数
type GenerateOptions struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	JSONResponse bool
}

// TextGenerator 外部文本生成服务
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string, opts GenerateOptions) (string, error)
}

type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Generate 调用 chat/completions，返回第一个 choice 的内容
func (s *AIService) Generate(ctx context.Context, system, prompt string, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = s.config.Model
	}

	reqBody := ChatCompletionRequest{
		Model: model,
		Messages: []AIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONResponse {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(s.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, msg.String())
		}
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("AI returned no choices")
	}
	return content.String(), nil
}
