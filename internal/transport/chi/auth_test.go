package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func identityEcho() (http.Handler, *string) {
	var got string
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), &got
}

func TestBearerAuth_ValidTokenSetsIdentity(t *testing.T) {
	inner, got := identityEcho()
	h := BearerAuthMiddleware(map[string]string{"secret-token": "tenant-a"})(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if *got != "tenant-a" {
		t.Errorf("identity = %q, want tenant-a", *got)
	}
}

func TestBearerAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"unknown token", "Bearer wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner, _ := identityEcho()
			h := BearerAuthMiddleware(map[string]string{"secret-token": "tenant-a"})(inner)

			req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestBearerAuth_ExemptPaths(t *testing.T) {
	inner, _ := identityEcho()
	h := BearerAuthMiddleware(map[string]string{"secret-token": "tenant-a"})(inner)

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without auth", path, rec.Code)
		}
	}
}

func TestBearerAuth_DisabledUsesCallerHeader(t *testing.T) {
	inner, got := identityEcho()
	h := BearerAuthMiddleware(nil)(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	req.Header.Set("X-Caller-Id", "dev-laptop")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *got != "dev-laptop" {
		t.Errorf("identity = %q, want dev-laptop", *got)
	}
}

func TestBearerAuth_DisabledDefaultsToAnonymous(t *testing.T) {
	inner, got := identityEcho()
	h := BearerAuthMiddleware(nil)(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *got != AnonymousIdentity {
		t.Errorf("identity = %q, want %q", *got, AnonymousIdentity)
	}
}
