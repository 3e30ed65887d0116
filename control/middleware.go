package control

import (
	"log/slog"
	"net/http"

	"github.com/jmrcs97/FlowCapture-sub000/idgen"
)

const maxBodyBytes = 64 * 1024

// middleware is the stack applied to the control API, outermost first.
func middleware(logger *slog.Logger, ids idgen.Generator) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		headToGet,
		apiHeaders,
		maxBody(maxBodyBytes),
		requestID(logger, ids),
	}
}

// headToGet lets GET routes answer HEAD probes.
func headToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// apiHeaders sets the security headers of a JSON-only API.
func apiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// maxBody caps request bodies. Oversized JSON fails to decode and gets a 400.
func maxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestID tags each request with an id, echoed in X-Request-ID and in
// the request log line.
func requestID(logger *slog.Logger, ids idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = ids()
			}
			w.Header().Set("X-Request-ID", id)
			logger.Debug("control: request", "request_id", id, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
