// Package providers holds the two concrete Provider implementations,
// grounded on the teacher's provider-client pattern
// (pkg/embedding/provider_openai.go, pkg/embedding/router.go) generalized
// from embeddings to rerank calls, and on intelligencedev-manifold's
// anthropic/openai SDK wiring (internal/llm/anthropic/client.go,
// internal/llm/openai/client.go) for the concrete SDK call shape.
package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/candidatemesh/searchcore/internal/observability"
	"github.com/candidatemesh/searchcore/internal/rerank"
	"github.com/candidatemesh/searchcore/internal/resilience"
)

// Config is the per-provider configuration from spec §4.4.
type Config struct {
	APIKey              string
	BaseURL             string
	Model               string
	TimeoutMs           int64
	Retries             int
	RetryDelayMs        int64
	CircuitFailureThreshold int
	CircuitCooldownMs   int64
	Enabled             bool
}

// AnthropicProvider implements rerank.Provider against the Anthropic
// Messages API.
type AnthropicProvider struct {
	sdk     anthropic.Client
	model   string
	cfg     Config
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy
	logger  observability.Logger
}

// NewAnthropicProvider constructs the primary provider client.
func NewAnthropicProvider(cfg Config, logger observability.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutMs+50) * time.Millisecond}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	return &AnthropicProvider{
		sdk:   anthropic.NewClient(opts...),
		model: model,
		cfg:   cfg,
		breaker: resilience.NewCircuitBreaker("anthropic", resilience.BreakerConfig{
			FailureThreshold: cfg.CircuitFailureThreshold,
			CooldownPeriod:   time.Duration(cfg.CircuitCooldownMs) * time.Millisecond,
		}),
		retry:  resilience.DefaultRetryPolicy(),
		logger: logger,
	}
}

func (p *AnthropicProvider) Name() string { return "primary" }

// Rerank implements the budget-aware call from spec §4.4: effective
// timeout clamped to the remaining budget, abort at or below 50ms, retries
// suppressed when the budget is tighter than the configured timeout, and
// circuit-breaker gating around the whole attempt.
func (p *AnthropicProvider) Rerank(ctx context.Context, req rerank.Request, remainingBudgetMs int64) (*rerank.ProviderResponse, error) {
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
	err := policy.Execute(callCtx, classifyAnthropicError, func(ctx context.Context) error {
		msg, err := p.sdk.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: 2048,
			Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		})
		if err != nil {
			return err
		}
		text := extractText(msg)
		result, decodeErr := rerank.DecodeResponse(rerank.ExtractJSONObject(text))
		if decodeErr != nil {
			return decodeErr
		}
		parsed = result
		return nil
	})

	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Warn("anthropic rerank call failed", map[string]interface{}{"error": err.Error()})
		return nil, nil
	}
	p.breaker.RecordSuccess()
	return parsed, nil
}

func extractText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// classifyAnthropicError implements spec §4.4's retry taxonomy: only
// 5xx/connection-reset transport failures are retryable; timeouts,
// JSON-decode failures (rerank.DecodeResponse errors), and 4xx are not.
func classifyAnthropicError(err error) resilience.RetryClass {
	if err == nil {
		return resilience.NotRetryable
	}
	var apiErr *anthropic.Error
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
