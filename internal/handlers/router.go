package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// NewRouter registers the API on a bunrouter. rate uses the limiter
// format ("10-S", "100-M") and applies per client IP to POST endpoints.
func NewRouter(h *Handler, rate string) (*bunrouter.CompatRouter, error) {
	lim, err := newLimiter(rate)
	if err != nil {
		return nil, err
	}

	router := bunrouter.New(
		bunrouter.Use(loggingMiddleware(h.logger)),
		bunrouter.Use(corsMiddleware),
		bunrouter.Use(limitMiddleware(lim)),
	).Compat()

	router.GET("/health", h.Health)
	router.GET("/catalog", h.Catalog)
	router.POST("/analyze", h.Analyze)
	router.POST("/classify", h.Classify)
	router.OPTIONS("/analyze", preflight)
	router.OPTIONS("/classify", preflight)
	return router, nil
}

func newLimiter(rate string) (*stdlib.Middleware, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}
	return stdlib.NewMiddleware(limiter.New(memory.NewStore(), r)), nil
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func corsMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return nil
		}
		return next(w, req)
	}
}

func limitMiddleware(m *stdlib.Middleware) bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			if req.Method != http.MethodPost {
				return next(w, req)
			}
			r := req.Request
			key := m.KeyGetter(r)
			lctx, err := m.Limiter.Get(r.Context(), key)
			if err != nil {
				m.OnError(w, r, err)
				return nil
			}

			w.Header().Add("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			w.Header().Add("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			w.Header().Add("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				m.OnLimitReached(w, r)
				return nil
			}
			return next(w, req)
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func loggingMiddleware(logger *zap.Logger) bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			err := next(sw, req)
			logger.Info("request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", sw.status),
				zap.String("remote", req.RemoteAddr),
				zap.Duration("took", time.Since(start)))
			return err
		}
	}
}
