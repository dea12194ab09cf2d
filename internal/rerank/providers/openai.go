package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/candidatemesh/searchcore/internal/observability"
	"github.com/candidatemesh/searchcore/internal/rerank"
	"github.com/candidatemesh/searchcore/internal/resilience"
)

// OpenAIProvider implements rerank.Provider against the OpenAI Chat
// Completions API, used as the fallback provider per spec §4.5 stage (e).
type OpenAIProvider struct {
	sdk     openai.Client
	model   string
	cfg     Config
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
	logger  observability.Logger
}

// NewOpenAIProvider constructs the fallback provider client.
func NewOpenAIProvider(cfg Config, logger observability.Logger) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutMs+50) * time.Millisecond}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}

	return &OpenAIProvider{
		sdk:   openai.NewClient(opts...),
		model: model,
		cfg:   cfg,
		breaker: resilience.NewCircuitBreaker("openai", resilience.BreakerConfig{
			FailureThreshold: cfg.CircuitFailureThreshold,
			CooldownPeriod:   time.Duration(cfg.CircuitCooldownMs) * time.Millisecond,
		}),
		retry:  resilience.DefaultRetryPolicy(),
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string { return "fallback" }

// Rerank mirrors AnthropicProvider.Rerank's budget-aware, circuit-gated
// call shape from spec §4.4, against the OpenAI chat completions API.
func (p *OpenAIProvider) Rerank(ctx context.Context, req rerank.Request, remainingBudgetMs int64) (*rerank.ProviderResponse, error) {
	if !p.cfg.Enabled {
		return nil, nil
	}
	remaining := time.Duration(remainingBudgetMs) * time.Millisecond
	if resilience.ShouldAbort(remaining) {
		return nil, nil
	}
	if !p.breaker.Allow() {
		return nil, nil
	}

	configuredTimeout := time.Duration(p.cfg.TimeoutMs) * time.Millisecond
	effective := resilience.BudgetedTimeout(remaining, configuredTimeout)
	suppressRetries := resilience.SuppressRetries(remaining, configuredTimeout)

	policy := p.retry
	if suppressRetries {
		policy.MaxAttempts = 1
	}

	callCtx, cancel := context.WithTimeout(ctx, effective+50*time.Millisecond)
	defer cancel()

	prompt := rerank.BuildPrompt(req.JobDescription, req.Candidates, rerank.DefaultPromptLimits()) + rerank.ResponseInstructions

	var parsed *rerank.ProviderResponse
	err := policy.Execute(callCtx, classifyOpenAIError, func(ctx context.Context) error {
		resp, err := p.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(p.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errEmptyResponse
		}
		text := resp.Choices[0].Message.Content
		result, decodeErr := rerank.DecodeResponse(rerank.ExtractJSONObject(text))
		if decodeErr != nil {
			return decodeErr
		}
		parsed = result
		return nil
	})

	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Warn("openai rerank call failed", map[string]interface{}{"error": err.Error()})
		return nil, nil
	}
	p.breaker.RecordSuccess()
	return parsed, nil
}

var errEmptyResponse = errors.New("openai: empty choices in response")

// classifyOpenAIError mirrors classifyAnthropicError's retry taxonomy for
// the OpenAI SDK's error type.
func classifyOpenAIError(err error) resilience.RetryClass {
	if err == nil {
		return resilience.NotRetryable
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return resilience.Retryable
		}
		return resilience.NotRetryable
	}
	if strings.Contains(err.Error(), "connection reset") {
		return resilience.Retryable
	}
	return resilience.NotRetryable
}
