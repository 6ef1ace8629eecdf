// Package middleware provides the Recovery and Logging wrappers
// applied to the health/metrics/status router. Grounded on
// internal/api/middleware/recovery.go and logging.go, completed here
// against the zap-backed logger instead of the teacher's plain log.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

// Recovery converts a panic in any handler into a 500 instead of
// crashing the process.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("httpapi: panic recovered",
					utils.String("path", r.URL.Path),
					utils.String("panic", toString(err)),
					utils.String("stack", string(debug.Stack())))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Logging records method, path, status and duration for every request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		utils.Info("httpapi: request",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.status),
			utils.String("duration", time.Since(start).String()))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return http.StatusText(http.StatusInternalServerError)
}
