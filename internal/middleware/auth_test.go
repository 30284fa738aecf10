package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/velurapp/velura/internal/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireTenant(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantTenant uuid.UUID
	}{
		{
			name:       "valid tenant header",
			header:     tenantID.String(),
			wantStatus: http.StatusOK,
			wantTenant: tenantID,
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			header:     "not-a-uuid",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "nil uuid rejected",
			header:     uuid.Nil.String(),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTenant uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTenant = auth.GetTenantID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			mw := NewTenantAuth(testLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
			if tt.header != "" {
				req.Header.Set(TenantHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			mw.RequireTenant(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantTenant, gotTenant)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid token",
			configured: "s3cret",
			authHeader: "Bearer s3cret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong token",
			configured: "s3cret",
			authHeader: "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing bearer prefix",
			configured: "s3cret",
			authHeader: "s3cret",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no header",
			configured: "s3cret",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unconfigured token disables the admin surface",
			configured: "",
			authHeader: "Bearer anything",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			mw := NewAdminAuth(tt.configured, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/admin/sweep", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			mw.RequireAdmin(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestStackOrdersMiddleware(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	stacked := Stack(tag("outer"), tag("inner"))
	stacked(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
