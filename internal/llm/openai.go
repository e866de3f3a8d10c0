package llm

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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
	"github.com/ewfx/sradg-ai-innovators/internal/retry"
)

const (
	openaiChatURL = "https://api.openai.com/v1/chat/completions"

	categorizeMaxTokens = 8
	summarizeMaxTokens  = 100
)

var (
	errRateLimited   = errors.New("llm rate limited")
	errQuotaExceeded = errors.New("llm quota exceeded")
	errAPIFailure    = errors.New("llm api failure")
)

// taxonomy is the fixed category set the model is prompted with.
var taxonomy = []string{
	domain.CategoryRoundingError,
	domain.CategoryTimingIssue,
	domain.CategoryDataEntryError,
	domain.CategorySystemError,
	domain.CategoryNewIssue,
}

// OpenAIConfig configures the chat-completions client. The API key comes
// from the environment.
type OpenAIConfig struct {
	APIKey            string        `yaml:"-"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	MaxAttempts       uint64        `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:             "gpt-4o-mini",
		BaseURL:           openaiChatURL,
		RequestsPerMinute: 60,
		Burst:             10,
		MaxAttempts:       5,
		BaseDelay:         time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// OpenAIClient implements Capability against the OpenAI chat-completions
// API. Transient transport failures are retried with exponential backoff; a
// circuit breaker sheds calls when the API is persistently down; a rate
// limiter bounds request throughput.
type OpenAIClient struct {
	cfg     OpenAIConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openaiChatURL
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &OpenAIClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
		breaker: breaker,
	}
}

// Categorize buckets the comment into the taxonomy. API-level failures map
// to the spec's terminal sentinel labels rather than errors; only transport
// failures that exhaust the retry budget surface as errors.
func (c *OpenAIClient) Categorize(ctx context.Context, comment string) (string, error) {
	prompt := fmt.Sprintf(
		"Categorize the following reconciliation anomaly reason into predefined buckets "+
			"such as [%s]. If the reason does not fit in given categories, use '%s' category.\n\n%s\n\nCategory:",
		strings.Join(taxonomy, ", "), domain.CategoryNewIssue, comment,
	)

	answer, err := c.chat(ctx, prompt, categorizeMaxTokens, 0.7)
	switch {
	case errors.Is(err, errRateLimited):
		log.Warn().Msg("categorization rate limited")
		return domain.CategoryRateLimited, nil
	case errors.Is(err, errQuotaExceeded):
		log.Error().Msg("llm quota exceeded")
		return domain.CategoryQuotaExceeded, nil
	case errors.Is(err, errAPIFailure):
		log.Error().Err(err).Msg("llm api error during categorization")
		return domain.CategoryAPIError, nil
	case err != nil:
		return "", err
	}

	category := strings.TrimSpace(answer)
	for _, known := range taxonomy {
		if strings.EqualFold(category, known) {
			return known, nil
		}
	}
	log.Warn().Str("answer", category).Msg("categorization outside taxonomy, using New Issue")
	return domain.CategoryNewIssue, nil
}

// Summarize asks for a concise resolution proposal for the anomaly row. Any
// failure is an error; the pipeline substitutes the unavailability sentinel
// for that row only.
func (c *OpenAIClient) Summarize(ctx context.Context, rec domain.AnomalyRecord) (string, error) {
	details, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode anomaly details: %w", err)
	}
	prompt := fmt.Sprintf(
		"Given the following anomaly details: %s, provide a concise summary of the potential resolution.",
		details,
	)

	summary, err := c.chat(ctx, prompt, summarizeMaxTokens, 0.6)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *OpenAIClient) chat(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var content string
	op := func() error {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doChat(ctx, prompt, maxTokens, temperature)
		})
		if err != nil {
			// Sentinel-mapped API failures must not burn retry attempts.
			if errors.Is(err, errRateLimited) || errors.Is(err, errQuotaExceeded) || errors.Is(err, errAPIFailure) {
				return backoff.Permanent(err)
			}
			return err
		}
		content = result.(string)
		return nil
	}

	if err := retry.Do(ctx, "openai-chat", op, c.cfg.MaxAttempts, c.cfg.BaseDelay); err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) doChat(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", errRateLimited
		case apiErr.Error.Code == "insufficient_quota":
			return "", errQuotaExceeded
		case resp.StatusCode >= 500:
			// Retryable server-side failure.
			return "", fmt.Errorf("llm server error %d: %s", resp.StatusCode, apiErr.Error.Message)
		default:
			return "", fmt.Errorf("%w: status %d: %s", errAPIFailure, resp.StatusCode, apiErr.Error.Message)
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", errAPIFailure)
	}
	return chat.Choices[0].Message.Content, nil
}
