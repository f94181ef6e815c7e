package httpmiddleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures cross-origin access for the storefront frontend.
type CORSConfig struct {
	// Origins allowed to call the API. Empty or "*" allows any origin.
	Origins []string
	// Headers the browser may send, in addition to the session and
	// idempotency headers the storefront always accepts.
	Headers []string
	// Credentials allows cookies on cross-origin requests. The concrete
	// origin is echoed instead of "*" when set.
	Credentials bool
	// MaxAge caches preflight results. Zero omits the header.
	MaxAge time.Duration
}

var (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = []string{"Content-Type", "Authorization", "X-Session-ID", "X-Request-ID", "Idempotency-Key"}
	corsExpose  = "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After"
)

// CORS answers preflight requests and annotates responses for allowed
// origins. Disallowed origins get no CORS headers and the browser blocks
// the response.
func CORS(cfg CORSConfig) Middleware {
	wildcard := len(cfg.Origins) == 0 || slices.Contains(cfg.Origins, "*")
	origins := make(map[string]string, len(cfg.Origins))
	for _, o := range cfg.Origins {
		origins[strings.ToLower(o)] = o
	}

	headers := strings.Join(append(slices.Clone(corsHeaders), cfg.Headers...), ", ")
	var maxAge string
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}

	allow := func(origin string) string {
		switch {
		case wildcard && !cfg.Credentials:
			return "*"
		case wildcard:
			return origin
		default:
			return origins[strings.ToLower(origin)]
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard || cfg.Credentials {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := allow(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", headers)
					if cfg.Credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", corsExpose)
				if cfg.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
