package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/tracking"
)

// Headers set by the upstream auth gateway
const (
	HeaderUserID    = "X-User-ID"
	HeaderTouristID = "X-Tourist-ID"
)

type identityKey struct{}

// identityFrom returns the caller attached by requireIdentity
func identityFrom(ctx context.Context) tracking.Identity {
	id, _ := ctx.Value(identityKey{}).(tracking.Identity)
	return id
}

// requireIdentity rejects requests the gateway did not authenticate
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := tracking.Identity{
			UserID:    r.Header.Get(HeaderUserID),
			TouristID: r.Header.Get(HeaderTouristID),
		}
		if id.UserID == "" {
			writeFailure(w, http.StatusUnauthorized, "Authentication required", CodeUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Upgraded connections must keep the original writer's Hijacker
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}

func recoveryMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path))
					writeFailure(w, http.StatusInternalServerError, "Something went wrong", CodeInternal)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
