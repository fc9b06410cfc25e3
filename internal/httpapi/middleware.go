package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/safar/order-engine/internal/auth"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/logger"
)

// requestLogger attaches a request-scoped zap logger to the context and
// logs one line per request.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLogger := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ctx := logger.WithContext(r.Context(), reqLogger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			reqLogger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	FromRequest(r *http.Request) (auth.Principal, error)
}

func authenticate(a Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.FromRequest(r)
			if err != nil {
				respondServiceError(w, r, log, err)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx, log).With(zap.Int64("caller_id", p.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAdmin(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				respondServiceError(w, r, log, auth.ErrMissingToken)
				return
			}
			if !p.IsAdmin() {
				respondServiceError(w, r, log, database.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
