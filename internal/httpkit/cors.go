package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// CORS answers preflight requests and decorates responses for allowed
// origins. "*" allows every origin.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	or := func(v, def []string) []string {
		if len(v) == 0 {
			return def
		}
		return v
	}
	maxAge := opt.MaxAgeSeconds
	if maxAge == 0 {
		maxAge = 600
	}

	// Headers every allowed response gets, except the origin itself.
	grant := http.Header{}
	grant.Set("Access-Control-Allow-Methods", strings.Join(or(opt.AllowedMethods, []string{"GET", "POST", "OPTIONS"}), ", "))
	grant.Set("Access-Control-Allow-Headers", strings.Join(or(opt.AllowedHeaders, []string{"Content-Type", "Authorization", "Accept"}), ", "))
	grant.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	if len(opt.ExposedHeaders) > 0 {
		grant.Set("Access-Control-Expose-Headers", strings.Join(opt.ExposedHeaders, ", "))
	}
	if opt.AllowCredentials {
		grant.Set("Access-Control-Allow-Credentials", "true")
	}

	origins := make(map[string]struct{}, len(opt.AllowedOrigins))
	for _, o := range opt.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	_, anyOrigin := origins["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := origins[origin]; ok || anyOrigin {
					h.Set("Access-Control-Allow-Origin", origin)
					for k, v := range grant {
						h[k] = v
					}
				}
			}

			// Preflight never reaches the handlers.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
