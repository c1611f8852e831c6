// Package llm is the language-model collaborator: it submits a
// system+user prompt pair to an OpenAI-compatible chat-completions
// endpoint and returns the raw text payload. JSON validation of the
// payload belongs to the summary package, not here.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/praxisgate/go-handover/internal/observability/metrics"
	"github.com/praxisgate/go-handover/pkg/circuitbreaker"
)

// Caller is the narrow contract the orchestrator depends on.
type Caller interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one chat-completion invocation.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	HTTPTimeout time.Duration
}

// DefaultConfig returns defaults for the hosted OpenAI endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		HTTPTimeout: 60 * time.Second,
	}
}

// Client calls the chat-completions endpoint behind a circuit breaker.
type Client struct {
	config  Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewClient creates a client. The breaker keeps a flapping or
// quota-exhausted endpoint from being hammered by background
// generation.
func NewClient(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultConfig().HTTPTimeout
	}

	var onState circuitbreaker.StateChangeFunc
	if m != nil {
		onState = func(name string, to circuitbreaker.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(to.GaugeValue())
		}
	}

	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("llm"), logger, onState),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("llm-client"),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete submits the prompt pair with a JSON response-format hint and
// returns the model's text payload. Transport, auth, and quota failures
// surface as errors; the caller degrades them into an error-shaped
// summary. An in-flight call is never cancelled once issued beyond the
// HTTP timeout.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("language model API not configured")
	}

	ctx, span := c.tracer.Start(ctx, "llm_complete",
		trace.WithAttributes(attribute.String("model", c.config.Model)))
	defer span.End()

	start := time.Now()
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.doRequest(ctx, req)
	})
	if c.metrics != nil {
		c.metrics.LLMDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doRequest(ctx context.Context, req Request) (string, error) {
	payload := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	payload.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("chat completion failed: %s", msg)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion contained no message content")
	}

	c.logger.Debug("chat completion ok",
		zap.Int("prompt_chars", len(req.UserPrompt)),
		zap.Int("response_chars", len(parsed.Choices[0].Message.Content)))

	return parsed.Choices[0].Message.Content, nil
}
