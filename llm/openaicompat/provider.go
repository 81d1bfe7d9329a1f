package openaicompat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/internal/httpjson"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/retry"
	"github.com/BaSui01/crewflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName identifies the provider in logs and errors.
	ProviderName string

	APIKey string

	// BaseURL includes the version prefix, e.g. "https://api.openai.com/v1".
	BaseURL string

	// Model is sent with every request.
	Model string

	Temperature float32
	MaxTokens   int

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath defaults to "/chat/completions".
	EndpointPath string

	// Retry overrides the default retry policy.
	Retry *retry.RetryPolicy
}

// Provider calls the chat completions endpoint.
type Provider struct {
	cfg     Config
	client  *http.Client
	retryer retry.Retryer
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New creates a provider with cfg.
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	logger = logger.With(zap.String("component", "llm"), zap.String("provider", cfg.ProviderName))
	return &Provider{
		cfg:     cfg,
		client:  httpjson.SecureHTTPClient(cfg.Timeout),
		retryer: retry.NewBackoffRetryer(cfg.Retry, logger),
		tracer:  otel.Tracer("github.com/BaSui01/crewflow/llm"),
		logger:  logger,
	}
}

// WithHTTPClient replaces the HTTP client; used by tests.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.client = c
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.ProviderName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements llm.Generator.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	ctx, span := p.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", p.cfg.ProviderName),
		attribute.String("llm.model", p.cfg.Model),
		attribute.String("agent.role", req.Role),
	))
	defer span.End()

	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: llm.SystemPrompt(req)},
			{Role: "user", Content: llm.UserPrompt(req)},
		},
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	url := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}

	var resp chatResponse
	err := p.retryer.Do(ctx, func() error {
		resp = chatResponse{}
		return httpjson.PostJSON(ctx, p.client, url, headers, body, &resp, p.cfg.ProviderName)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := types.NewError(types.ErrUpstreamError, p.cfg.ProviderName+": response contained no choices")
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
	p.logger.Debug("completion received",
		zap.String("role", req.Role),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies the models endpoint is reachable.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpjson.JoinURL(p.cfg.BaseURL, "models"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstreamError, err.Error()).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return httpjson.MapHTTPError(resp.StatusCode, httpjson.ReadErrorMessage(resp.Body), p.cfg.ProviderName)
	}
	return nil
}
