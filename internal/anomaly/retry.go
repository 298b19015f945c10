package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/metrics"
)

// BackoffFunc returns the wait before the next attempt, given the number of
// attempts made so far.
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits attempt*step between attempts.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// RetryPolicy bounds how a predictor call is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
}

// RetryingPredictor retries transport failures of the wrapped predictor.
// A successful answer is returned as is, anomalous or not.
type RetryingPredictor struct {
	next    Predictor
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps next with policy.
func WithRetry(next Predictor, policy RetryPolicy, logger *zap.Logger, m *metrics.Metrics) *RetryingPredictor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff == nil {
		policy.Backoff = LinearBackoff(time.Second)
	}
	return &RetryingPredictor{
		next:    next,
		policy:  policy,
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
	}
}

func (r *RetryingPredictor) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		prediction, err := r.next.Predict(ctx, req)
		if err == nil {
			prediction.Attempt = attempt
			r.metrics.IncPrediction("success")
			return prediction, nil
		}
		lastErr = err

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			return nil, err
		}

		r.logger.Warn("ML prediction attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Float64("lat", req.Lat),
			zap.Float64("lon", req.Lon),
			zap.Error(err))
		r.metrics.IncPrediction("retry")

		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, r.policy.Backoff(attempt)); err != nil {
			return nil, fmt.Errorf("prediction retry aborted: %w", err)
		}
	}

	return nil, fmt.Errorf("all %d prediction attempts failed: %w", r.policy.MaxAttempts, lastErr)
}

// FallbackPredictor answers from fallback whenever primary fails.
type FallbackPredictor struct {
	primary  Predictor
	fallback Predictor
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// WithFallback combines a primary predictor with a local fallback.
func WithFallback(primary, fallback Predictor, logger *zap.Logger, m *metrics.Metrics) *FallbackPredictor {
	return &FallbackPredictor{primary: primary, fallback: fallback, logger: logger, metrics: m}
}

func (f *FallbackPredictor) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	prediction, err := f.primary.Predict(ctx, req)
	if err == nil {
		return prediction, nil
	}

	f.logger.Error("ML predictor unavailable, using basic validation", zap.Error(err))
	f.metrics.IncPrediction("fallback")

	prediction, ferr := f.fallback.Predict(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("fallback prediction failed: %w", ferr)
	}
	prediction.Fallback = true
	return prediction, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
