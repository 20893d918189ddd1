package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/logger"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionCookie = "shop_session"
	SessionHeader = "X-Session-ID"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	requestIDKey
)

// SessionMiddleware resolves the shopper session from the session cookie or
// header, starting a new one when neither is present. The id is echoed in
// both so clients without cookies can keep it.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
			sessionID = c.Value
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.Header().Set(SessionHeader, sessionID)

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(m *metrics.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(statusOf(ww))).Inc()
			m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
		})
	}
}

// LoggingMiddleware writes one structured line per request.
func LoggingMiddleware(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.FromContext(r.Context(), l).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", routePattern(r)),
				zap.Int("status", statusOf(ww)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", getRequestID(r.Context())),
			)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
