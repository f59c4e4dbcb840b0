// Package middleware holds adapters and in house middlewares
package middleware

import (
	"net/http"
	"time"

	"backscroll/internal/platform/logger"
)

// AccessLogOptions configures the zerolog access log
type AccessLogOptions struct {
	// Slow promotes requests taking >= Slow to warn level, 0 disables it
	Slow time.Duration
}

// statusTap records what the handler actually sent so the log line can
// carry status and size. The first WriteHeader wins, as net/http does
type statusTap struct {
	http.ResponseWriter
	code  int
	wrote bool
	bytes int
}

func (s *statusTap) WriteHeader(code int) {
	if !s.wrote {
		s.code = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusTap) Write(b []byte) (int, error) {
	if !s.wrote {
		s.code = http.StatusOK
		s.wrote = true
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// AccessLogZerolog emits one line per request off the request scoped
// logger: method, path, status, bytes, elapsed
func AccessLogZerolog(opt AccessLogOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tap := &statusTap{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(tap, r)

			elapsed := time.Since(start)
			log := logger.C(r.Context())
			evt := log.Info()
			if opt.Slow > 0 && elapsed >= opt.Slow {
				evt = log.Warn()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", tap.code).
				Int("bytes", tap.bytes).
				Dur("elapsed", elapsed).
				Msg("request served")
		})
	}
}
