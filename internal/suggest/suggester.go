// Package suggest asks an OpenAI-compatible chat model for a GL code when no
// rule is decisive.
package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sashabaranov/go-openai"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/model"
)

// ErrEmptySuggestion is returned when the model answers without a GL code.
var ErrEmptySuggestion = errors.New("model returned no GL code")

const systemPrompt = "You assign general ledger codes to accounts payable line items. " +
	"Respond with ONLY a JSON object of the form " +
	`{"gl_code": "<code>", "confidence": <0..1>, "reason": "<short reason>"}.`

// Config holds configuration for the suggester.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	CacheTTL      time.Duration
	MaxRetries    int
	MaxTokens     int
	Temperature   float32
}

// Suggester implements rules.AISuggester on top of the chat completions API.
type Suggester struct {
	client    *openai.Client
	cache     *gocache.Cache
	cfg       Config
	retryOpts common.RetryOptions
}

// New creates a suggester. An API key is required.
func New(cfg Config) (*Suggester, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: suggester API key is required", common.ErrMissingConfig)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Suggester{
		client: openai.NewClientWithConfig(clientConfig),
		cache:  gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:    cfg,
		retryOpts: common.RetryOptions{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     cfg.MaxRetryDelay,
			Multiplier:   2.0,
		},
	}, nil
}

// Suggest returns the model's GL code for the line item. Identical items are
// answered from cache.
func (s *Suggester) Suggest(ctx context.Context, item model.LineItem) (*model.AISuggestion, error) {
	key := cacheKey(item)
	if cached, found := s.cache.Get(key); found {
		suggestion := cached.(model.AISuggestion)
		return &suggestion, nil
	}

	var suggestion model.AISuggestion
	err := common.WithRetry(ctx, func() error {
		content, err := s.complete(ctx, BuildPrompt(item))
		if err != nil {
			return err
		}
		suggestion, err = parseSuggestion(content)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		return nil
	}, s.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to get AI suggestion: %w", err)
	}

	s.cache.SetDefault(key, suggestion)
	slog.Debug("AI suggestion received",
		"model", s.cfg.Model,
		"gl_code", suggestion.GLCode,
		"confidence", suggestion.Confidence)

	return &suggestion, nil
}

func (s *Suggester) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyError marks client errors as final and rate limits as ErrRateLimit.
func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case status >= 400 && status < 500:
		return &common.RetryableError{Err: fmt.Errorf("chat completion rejected (status %d): %w", status, err), Retryable: false}
	default:
		return fmt.Errorf("chat completion failed: %w", err)
	}
}

// BuildPrompt renders the user message for a line item.
func BuildPrompt(item model.LineItem) string {
	var b strings.Builder
	b.WriteString("Suggest a GL code for this line item.\n")
	if item.VendorName != nil && strings.TrimSpace(*item.VendorName) != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", strings.TrimSpace(*item.VendorName))
	}
	fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(item.Description))
	if item.Amount != nil {
		fmt.Fprintf(&b, "Amount: %s\n", strconv.FormatFloat(*item.Amount, 'f', 2, 64))
	}
	if item.Date != nil {
		fmt.Fprintf(&b, "Date: %s\n", item.Date.String())
	}
	return b.String()
}

func parseSuggestion(content string) (model.AISuggestion, error) {
	var resp struct {
		GLCode     string  `json:"gl_code"`
		Reason     string  `json:"reason"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &resp); err != nil {
		return model.AISuggestion{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	code := strings.TrimSpace(resp.GLCode)
	if code == "" {
		return model.AISuggestion{}, ErrEmptySuggestion
	}

	confidence := resp.Confidence
	switch {
	case math.IsNaN(confidence) || confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}

	return model.AISuggestion{
		GLCode:     code,
		Confidence: confidence,
		Reason:     strings.TrimSpace(resp.Reason),
	}, nil
}

// stripCodeFence removes a surrounding ```json fence some models add.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func cacheKey(item model.LineItem) string {
	h := sha256.New()
	if item.VendorName != nil {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(*item.VendorName))))
	}
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(item.Description))))
	h.Write([]byte{0})
	if item.Amount != nil {
		h.Write([]byte(strconv.FormatFloat(*item.Amount, 'f', -1, 64)))
	}
	h.Write([]byte{0})
	if item.Date != nil {
		h.Write([]byte(item.Date.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
