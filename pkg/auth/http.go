package auth

import (
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// HeaderAuthorization is the request header carrying the bearer token.
const HeaderAuthorization = "Authorization"

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token from an "Authorization: Bearer x"
// header value, or "" when the header is absent or uses another scheme.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// FailureHook observes rejected requests. err is an AUTH_xxx error.
type FailureHook func(r *http.Request, err error)

// MiddlewareOption configures [HTTPMiddleware].
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	onFailure FailureHook
	skip      func(r *http.Request) bool
}

// WithFailureHook registers a hook called for every rejected request.
func WithFailureHook(hook FailureHook) MiddlewareOption {
	return func(c *middlewareConfig) { c.onFailure = hook }
}

// WithSkipper lets matching requests through without authentication.
func WithSkipper(skip func(r *http.Request) bool) MiddlewareOption {
	return func(c *middlewareConfig) { c.skip = skip }
}

// HTTPMiddleware returns middleware that validates the bearer token on each
// request and stores the resulting [Identity] in the request context.
// Missing or invalid tokens get 401 Unauthorized.
func HTTPMiddleware(validator TokenValidator, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skip != nil && cfg.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if token == "" {
				reject(w, r, cfg, sserr.New(sserr.CodeAuthentication, "auth: missing bearer token"))
				return
			}

			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				reject(w, r, cfg, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, cfg *middlewareConfig, err error) {
	if cfg.onFailure != nil {
		cfg.onFailure(r, err)
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="contentflow"`)
	if sserr.HasCode(err, sserr.CodeAuthenticationExpired) {
		http.Error(w, "token has expired", http.StatusUnauthorized)
		return
	}
	http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
}

// RequireAction returns middleware that rejects authenticated requests
// whose identity cannot perform action with 403 Forbidden. Requests with no
// identity in context get 401.
func RequireAction(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !identity.Can(action) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
