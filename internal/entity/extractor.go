// Package entity asks Claude for the client names mentioned in a document's
// text and in its embedded images.
package entity

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/resilience"
	"github.com/sells-group/doc-intake/pkg/anthropic"
)

// Defaults applied by New for zero Config values.
const (
	DefaultModel             = "claude-haiku-4-5-20251001"
	DefaultMaxTokens         = 1024
	DefaultCallTimeout       = 120 * time.Second
	DefaultMaxImageEdge      = 1568
	DefaultVisionConcurrency = 4
)

// Config controls model selection and call limits.
type Config struct {
	Model             string
	VisionModel       string
	MaxTokens         int64
	CallTimeout       time.Duration
	MaxImageEdge      int
	VisionConcurrency int
	Retry             resilience.RetryConfig
}

// Extractor runs name-extraction prompts against an anthropic.Client. All
// calls share one rate limiter and one circuit breaker.
type Extractor struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLimiter sets the limiter every call waits on. Nil disables limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Extractor) { e.limiter = l }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Extractor) { e.breaker = cb }
}

// New creates an Extractor.
func New(client anthropic.Client, cfg Config, opts ...Option) *Extractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxImageEdge <= 0 {
		cfg.MaxImageEdge = DefaultMaxImageEdge
	}
	if cfg.VisionConcurrency <= 0 {
		cfg.VisionConcurrency = DefaultVisionConcurrency
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.Name = "anthropic"
	e := &Extractor{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// call sends one request through the limiter, breaker, per-call timeout and
// transient-only retry.
func (e *Extractor) call(ctx context.Context, op string, req anthropic.MessageRequest) (*anthropic.MessageResponse, model.TokenUsage, error) {
	retry := e.cfg.Retry
	retry.ShouldRetry = shouldRetry
	retry.OnRetry = resilience.RetryLogger("anthropic", op)

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "entity: rate limit wait")
			}
		}
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()
			return e.client.CreateMessage(callCtx, req)
		})
	})
	if err != nil {
		return nil, model.TokenUsage{}, eris.Wrapf(err, "entity: %s", op)
	}
	if resp == nil {
		return nil, model.TokenUsage{}, eris.Errorf("entity: %s: empty response", op)
	}

	if resp.Truncated() {
		zap.L().Warn("entity: answer cut off at max tokens",
			zap.String("op", op),
			zap.Int64("max_tokens", req.MaxTokens),
		)
	}
	resp.Usage.LogCost(req.Model, op)
	return resp, toUsage(resp.Usage, req.Model), nil
}

// shouldRetry retries API errors by status code and everything else by the
// generic transient check. An open circuit is never retried.
func shouldRetry(err error) bool {
	if eris.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	if code := anthropic.StatusCode(err); code != 0 {
		return resilience.IsTransientHTTPStatus(code)
	}
	retry := resilience.IsTransient(err)
	if !retry {
		zap.L().Debug("entity: not retrying", zap.Error(err))
	}
	return retry
}

func toUsage(u anthropic.TokenUsage, modelID string) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Cost:                u.EstimateCost(modelID),
	}
}
