package anomaly

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/smukkama/tourist-safety/pkg/config"
)

const (
	ServiceAIModel    = "AI_MODEL"
	ServiceBasicCheck = "BASIC_VALIDATION"
)

// PredictRequest is the body posted to the ML endpoint.
type PredictRequest struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Speed float64 `json:"speed"`
}

// PredictResponse is the raw ML endpoint reply.
type PredictResponse struct {
	Anomaly    bool     `json:"anomaly"`
	Confidence *float64 `json:"confidence,omitempty"`
	RiskScore  *float64 `json:"risk_score,omitempty"`
}

// Prediction is a predictor's verdict on a coordinate. It doubles as the
// details payload of a COORDINATE_ANOMALY.
type Prediction struct {
	IsAnomaly   bool             `json:"isAnomaly"`
	Confidence  float64          `json:"confidence"`
	RiskScore   float64          `json:"riskScore"`
	Message     string           `json:"message"`
	ServiceUsed string           `json:"serviceUsed"`
	Attempt     int              `json:"attemptNumber,omitempty"`
	Fallback    bool             `json:"fallback,omitempty"`
	Raw         *PredictResponse `json:"aiResponse,omitempty"`
}

// Predictor scores a coordinate.
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) (*Prediction, error)
}

// TransportError is a failure to obtain any answer from the ML endpoint.
// Only these are retried.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ml %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("ml %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemotePredictor calls the external ML model over HTTP.
type RemotePredictor struct {
	url             string
	userAgent       string
	client          *http.Client
	mediumThreshold float64
}

// NewRemotePredictor creates a client for the ML endpoint. A response is
// anomalous when the model says so or its risk score exceeds mediumThreshold.
func NewRemotePredictor(cfg config.MLConfig, mediumThreshold float64) *RemotePredictor {
	return &RemotePredictor{
		url:             cfg.URL,
		userAgent:       cfg.UserAgent,
		client:          &http.Client{Timeout: cfg.Timeout},
		mediumThreshold: mediumThreshold,
	}
}

func (p *RemotePredictor) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	raw, err := p.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var confidence, risk float64
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	if raw.RiskScore != nil {
		risk = *raw.RiskScore
	}

	isAnomaly := raw.Anomaly || risk > p.mediumThreshold
	message := "Location pattern normal"
	if isAnomaly {
		message = "Unusual location pattern detected by AI"
	}

	return &Prediction{
		IsAnomaly:   isAnomaly,
		Confidence:  confidence,
		RiskScore:   risk,
		Message:     message,
		ServiceUsed: ServiceAIModel,
		Raw:         raw,
	}, nil
}

func (p *RemotePredictor) post(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build prediction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Op: "post", StatusCode: resp.StatusCode}
	}

	var raw PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	return &raw, nil
}

// HealthStatus is the result of probing the ML endpoint.
type HealthStatus struct {
	Healthy      bool   `json:"healthy"`
	Status       string `json:"status"`
	ResponseTime string `json:"responseTime,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HealthCheck posts a fixed probe coordinate and reports whether the model
// answered within three seconds.
func (p *RemotePredictor) HealthCheck(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := p.post(ctx, PredictRequest{Lat: 12.9716, Lon: 77.5946}); err != nil {
		return HealthStatus{Healthy: false, Status: "AI service unavailable", Error: err.Error()}
	}
	return HealthStatus{
		Healthy:      true,
		Status:       "AI service responding normally",
		ResponseTime: time.Since(start).String(),
	}
}

// BasicPredictor validates coordinates locally. It flags out-of-range
// values and the (0,0) null-island sentinel.
type BasicPredictor struct{}

func (BasicPredictor) Predict(_ context.Context, req PredictRequest) (*Prediction, error) {
	isAnomaly := req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 ||
		(req.Lat == 0 && req.Lon == 0)

	if isAnomaly {
		return &Prediction{
			IsAnomaly:   true,
			Confidence:  0.9,
			RiskScore:   0.8,
			Message:     "Invalid coordinates detected",
			ServiceUsed: ServiceBasicCheck,
			Fallback:    true,
		}, nil
	}
	return &Prediction{
		IsAnomaly:   false,
		Confidence:  0.1,
		RiskScore:   0.1,
		Message:     "Coordinates valid",
		ServiceUsed: ServiceBasicCheck,
		Fallback:    true,
	}, nil
}
