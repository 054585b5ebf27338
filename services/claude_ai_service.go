package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LovationAdmin/finance-tracker/models"
	"github.com/LovationAdmin/finance-tracker/utils"
)

var ErrAIUnavailable = errors.New("AI provider not configured")

// ChatProvider is a chat completion backend.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, system string, history []models.ChatMessage, maxTokens int) (string, error)
}

// ============================================================================
// CLAUDE AI SERVICE
// ============================================================================

const defaultAnthropicURL = "https://api.anthropic.com"

type ClaudeAIService struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type ClaudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []ClaudeMessage `json:"messages"`
}

type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClaudeAIService targets the Anthropic messages API. baseURL may be
// empty to use the public endpoint.
func NewClaudeAIService(apiKey, model, baseURL string) *ClaudeAIService {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &ClaudeAIService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *ClaudeAIService) Name() string { return "anthropic" }

func (s *ClaudeAIService) Complete(ctx context.Context, system string, history []models.ChatMessage, maxTokens int) (string, error) {
	if s.apiKey == "" {
		return "", ErrAIUnavailable
	}

	messages := make([]ClaudeMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, ClaudeMessage{Role: m.Role, Content: m.Content})
	}

	return s.executeRequest(ctx, ClaudeRequest{
		Model:     s.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	})
}

// ============================================================================
// HELPER: EXECUTE REQUEST
// ============================================================================

func (s *ClaudeAIService) executeRequest(ctx context.Context, requestBody ClaudeRequest) (string, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var claudeResp ClaudeResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &claudeResp) == nil && claudeResp.Error != nil {
			return "", fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, claudeResp.Error.Message)
		}
		return "", fmt.Errorf("anthropic returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("empty response from Claude")
	}

	utils.LogAIRequest(s.Name(), claudeResp.Model, claudeResp.Usage.InputTokens, claudeResp.Usage.OutputTokens)
	utils.SafeDebug("[Claude AI] estimated cost $%.5f", s.EstimateCost(claudeResp.Usage.InputTokens, claudeResp.Usage.OutputTokens))

	return text.String(), nil
}

// ============================================================================
// COST ESTIMATE
// ============================================================================

// Approximate Haiku pricing per token.
const (
	InputTokenPrice  = 0.0000008
	OutputTokenPrice = 0.000004
)

func (s *ClaudeAIService) EstimateCost(inputTokens int, outputTokens int) float64 {
	return float64(inputTokens)*InputTokenPrice + float64(outputTokens)*OutputTokenPrice
}
