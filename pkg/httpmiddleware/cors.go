package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access for browser storefronts.
type CORSConfig struct {
	// AllowOrigins lists storefront origins allowed to call the API.
	// Empty, or the single entry "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists the methods clients may use. Empty defaults to
	// "GET, POST, PUT, DELETE, OPTIONS", which covers the whole API
	// surface including cart PUT/DELETE.
	AllowMethods []string

	// AllowHeaders lists request headers clients may send, typically
	// Content-Type plus the X-Api-Key and X-Buyer-ID headers the API
	// authenticates with. Empty echoes the preflight's requested headers.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers on
	// cross-origin requests. Incompatible with a wildcard origin; when
	// both are set, the specific origin is echoed instead.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0" to disable caching.
	MaxAge int
}

// corsPolicy is a CORSConfig compiled once at middleware construction.
type corsPolicy struct {
	allowAll    bool
	origins     map[string]string // lowercased -> configured form
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func compileCORS(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		allowAll:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.allowAll = true
			break
		}
		p.origins[strings.ToLower(o)] = o
	}
	// The Fetch spec forbids credentials with a wildcard origin; echo the
	// specific origin instead.
	if p.credentials {
		p.allowAll = false
	}
	if p.methods == "" {
		p.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// allowOrigin resolves the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed. Matching is
// case-insensitive but the configured form is echoed back.
func (p corsPolicy) allowOrigin(origin string) string {
	if p.allowAll {
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

// CORS returns the middleware that lets browser storefronts on other
// origins call the API. Preflights (OPTIONS carrying
// Access-Control-Request-Method) are answered with 204 and never reach the
// routing layer; actual requests get the allow/expose headers attached and
// pass through. Vary is set on everything origin-dependent so CDN caches
// cannot serve one origin's response to another.
func CORS(cfg CORSConfig) Middleware {
	p := compileCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin traffic: still vary on Origin so caches keep
			// CORS and non-CORS responses apart.
			if origin == "" {
				if !p.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, origin)
				return
			}

			p.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

func (p corsPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allowed := p.allowOrigin(origin)
	if allowed == "" {
		// Disallowed origins get a bare 204: no CORS headers, so the
		// browser blocks the actual request.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Access-Control-Allow-Methods", p.methods)
	if p.headers != "" {
		h.Set("Access-Control-Allow-Headers", p.headers)
	} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p corsPolicy) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if !p.allowAll {
		h.Add("Vary", "Origin")
	}
	allowed := p.allowOrigin(origin)
	if allowed == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.expose != "" {
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
}
