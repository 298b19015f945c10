package anomaly

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/pkg/config"
)

type stubPredictor struct {
	mu         sync.Mutex
	prediction *Prediction
	err        error
	calls      int
	requests   []PredictRequest
}

func (s *stubPredictor) Predict(_ context.Context, req PredictRequest) (*Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	p := *s.prediction
	return &p, nil
}

func mlConfig(url string) config.MLConfig {
	cfg := config.DefaultML()
	cfg.URL = url
	cfg.Timeout = time.Second
	return cfg
}

func TestRemotePredictor_RiskAboveMediumIsAnomalous(t *testing.T) {
	var got PredictRequest
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"anomaly": false, "confidence": 0.8, "risk_score": 0.7}`))
	}))
	defer srv.Close()

	p := NewRemotePredictor(mlConfig(srv.URL), 0.6)
	pred, err := p.Predict(context.Background(), PredictRequest{Lat: 12.97, Lon: 77.59, Speed: 4.5})
	require.NoError(t, err)

	assert.True(t, pred.IsAnomaly)
	assert.Equal(t, 0.8, pred.Confidence)
	assert.Equal(t, 0.7, pred.RiskScore)
	assert.Equal(t, ServiceAIModel, pred.ServiceUsed)
	assert.False(t, pred.Fallback)
	assert.Equal(t, PredictRequest{Lat: 12.97, Lon: 77.59, Speed: 4.5}, got)
	assert.Equal(t, config.DefaultML().UserAgent, userAgent)
}

func TestRemotePredictor_NormalResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"anomaly": false}`))
	}))
	defer srv.Close()

	pred, err := NewRemotePredictor(mlConfig(srv.URL), 0.6).Predict(context.Background(), PredictRequest{Lat: 1, Lon: 1})
	require.NoError(t, err)
	assert.False(t, pred.IsAnomaly)
	assert.Equal(t, "Location pattern normal", pred.Message)
}

func TestRemotePredictor_ServerErrorIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemotePredictor(mlConfig(srv.URL), 0.6).Predict(context.Background(), PredictRequest{})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestRemotePredictor_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"anomaly": false}`))
	}))
	p := NewRemotePredictor(mlConfig(srv.URL), 0.6)

	assert.True(t, p.HealthCheck(context.Background()).Healthy)

	srv.Close()
	status := p.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.Error)
}

func TestBasicPredictor(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{91, 10, true},
		{-91, 10, true},
		{10, 181, true},
		{10, -181, true},
		{12.97, 77.59, false},
		{0, 10, false},
	}
	for _, c := range cases {
		pred, err := BasicPredictor{}.Predict(context.Background(), PredictRequest{Lat: c.lat, Lon: c.lon})
		require.NoError(t, err)
		assert.Equal(t, c.want, pred.IsAnomaly, "lat=%v lon=%v", c.lat, c.lon)
		assert.True(t, pred.Fallback)
		if c.want {
			assert.Equal(t, 0.9, pred.Confidence)
			assert.Equal(t, 0.8, pred.RiskScore)
		} else {
			assert.Equal(t, 0.1, pred.Confidence)
			assert.Equal(t, 0.1, pred.RiskScore)
		}
	}
}

func TestRetryThenFallback_NullIsland(t *testing.T) {
	remote := &stubPredictor{err: &TransportError{Op: "post", Err: errors.New("connection refused")}}
	retrying := WithRetry(remote, RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(0)}, zap.NewNop(), nil)
	p := WithFallback(retrying, BasicPredictor{}, zap.NewNop(), nil)

	pred, err := p.Predict(context.Background(), PredictRequest{Lat: 0, Lon: 0})
	require.NoError(t, err)

	assert.Equal(t, 3, remote.calls)
	assert.True(t, pred.Fallback)
	assert.True(t, pred.IsAnomaly)
	assert.Equal(t, 0.9, pred.Confidence)
	assert.Equal(t, ServiceBasicCheck, pred.ServiceUsed)
}

func TestRetry_LinearBackoffSchedule(t *testing.T) {
	remote := &stubPredictor{err: &TransportError{Op: "post", Err: errors.New("timeout")}}
	r := WithRetry(remote, RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Second)}, zap.NewNop(), nil)

	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := r.Predict(context.Background(), PredictRequest{})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)

	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestRetry_SuccessIsNotRetried(t *testing.T) {
	remote := &stubPredictor{prediction: &Prediction{IsAnomaly: false, ServiceUsed: ServiceAIModel}}
	r := WithRetry(remote, RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(0)}, zap.NewNop(), nil)

	pred, err := r.Predict(context.Background(), PredictRequest{Lat: 1, Lon: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, 1, pred.Attempt)
	assert.False(t, pred.IsAnomaly)
}

func TestRetry_NonTransportErrorNotRetried(t *testing.T) {
	remote := &stubPredictor{err: errors.New("bad request body")}
	r := WithRetry(remote, RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(0)}, zap.NewNop(), nil)

	_, err := r.Predict(context.Background(), PredictRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, remote.calls)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	remote := &stubPredictor{err: &TransportError{Op: "post", Err: errors.New("timeout")}}
	r := WithRetry(remote, RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(time.Hour)}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Predict(ctx, PredictRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, remote.calls)
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff(time.Second)
	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 3*time.Second, b(3))
}
