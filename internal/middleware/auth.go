// Package middleware contains HTTP middleware for the Velura entitlement API.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/velurapp/velura/internal/auth"
	"github.com/velurapp/velura/internal/handler"
)

// TenantHeader carries the tenant identity on service-to-service API calls.
// The public booking product terminates end-user authentication upstream;
// this API trusts the header from inside the perimeter.
const TenantHeader = "X-Velura-Tenant"

// Stack composes middleware so the first listed runs outermost.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// TenantAuth resolves the tenant identity header into the request context.
type TenantAuth struct {
	logger *slog.Logger
}

// NewTenantAuth creates tenant auth middleware.
func NewTenantAuth(logger *slog.Logger) *TenantAuth {
	return &TenantAuth{logger: logger}
}

// RequireTenant rejects requests without a well-formed tenant header.
func (m *TenantAuth) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			m.logger.Info("malformed tenant header", "path", r.URL.Path, "ip", getClientIP(r))
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetTenantID(r.Context(), tenantID)))
	})
}

// AdminAuth guards the elevated-privilege write path: administrator-initiated
// subscription mutations and the manual sweep trigger.
type AdminAuth struct {
	token   string
	logger  *slog.Logger
	enabled bool
}

// NewAdminAuth creates admin auth middleware. An empty token disables the
// admin surface entirely rather than leaving it open.
func NewAdminAuth(token string, logger *slog.Logger) *AdminAuth {
	return &AdminAuth{
		token:   token,
		logger:  logger,
		enabled: token != "",
	}
}

// RequireAdmin rejects requests without the admin bearer token.
func (m *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			m.logger.Warn("admin endpoint hit but no admin token is configured", "path", r.URL.Path)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		// Constant-time comparison to prevent timing attacks.
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
			m.logger.Warn("invalid admin token", "path", r.URL.Path, "ip", getClientIP(r))
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2.
		// The first one is the original client.
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if clientIP != "" {
				return clientIP
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
