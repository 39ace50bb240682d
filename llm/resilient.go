package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/convodesk/convodesk/llm/retry"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientConfig configures the resilience wrapper.
type ResilientConfig struct {
	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration

	// RetryPolicy governs bounded retry with exponential backoff.
	// Only errors marked retryable (rate limits, upstream timeouts) are
	// retried; malformed output and invalid requests fail fast.
	RetryPolicy *retry.Policy

	// RequestsPerSecond caps the provider call rate. Zero disables the
	// limiter.
	RequestsPerSecond float64

	// Burst is the limiter burst size; defaults to 1 when a rate is set.
	Burst int
}

// DefaultResilientConfig returns settings suitable for hosted providers.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		CallTimeout: 30 * time.Second,
		RetryPolicy: retry.DefaultPolicy(),
	}
}

// ResilientProvider decorates a Provider with per-call timeouts, bounded
// retry, and rate-limit backpressure. Backpressure lives here at the call
// site, never in the orchestration state machine. After retries are
// exhausted the failure surfaces as PROVIDER_ERROR.
type ResilientProvider struct {
	provider Provider
	retryer  retry.Retryer
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewResilientProvider wraps provider with the given resilience config.
func NewResilientProvider(provider Provider, cfg ResilientConfig, logger *zap.Logger) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.RetryPolicy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	if policy.Retryable == nil {
		policy.Retryable = types.IsRetryable
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ResilientProvider{
		provider: provider,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		limiter:  limiter,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "resilient_provider")),
	}
}

// Completion implements Provider.Completion with resilience applied.
func (rp *ResilientProvider) Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var resp *CompletionResponse
	err := rp.call(ctx, "completion", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = rp.provider.Completion(callCtx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Classify implements Provider.Classify with resilience applied.
func (rp *ResilientProvider) Classify(ctx context.Context, text string, contextMsgs []types.Message) (*Classification, error) {
	var cls *Classification
	err := rp.call(ctx, "classify", func(callCtx context.Context) error {
		var callErr error
		cls, callErr = rp.provider.Classify(callCtx, text, contextMsgs)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return cls, nil
}

// HealthCheck delegates to the wrapped provider without retry.
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name returns the wrapped provider's name.
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// call runs fn under the limiter, per-call timeout and retry policy,
// normalizing exhausted failures to PROVIDER_ERROR.
func (rp *ResilientProvider) call(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := func() error {
		if rp.limiter != nil {
			if err := rp.limiter.Wait(ctx); err != nil {
				return types.NewError(types.ErrTimeout, "rate limiter wait aborted").WithCause(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, rp.timeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && callCtx.Err() == context.DeadlineExceeded {
			return types.NewError(types.ErrTimeout,
				fmt.Sprintf("%s call exceeded %s", op, rp.timeout)).
				WithCause(err).
				WithRetryable(true)
		}
		return err
	}

	if err := rp.retryer.Do(ctx, attempt); err != nil {
		rp.logger.Warn("provider call failed",
			zap.String("operation", op),
			zap.String("provider", rp.provider.Name()),
			zap.Error(err),
		)
		return types.NewError(types.ErrProvider,
			fmt.Sprintf("%s %s failed", rp.provider.Name(), op)).
			WithCause(err).
			WithHTTPStatus(502)
	}
	return nil
}
