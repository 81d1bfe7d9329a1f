package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Chain(ok, Recovery(logger), JWTAuth(JWTConfig{Secret: "s3cret", Issuer: "ops"}, []string{"/health"}, logger))

	valid := sign(t, "s3cret", jwt.MapClaims{"iss": "ops", "exp": time.Now().Add(time.Hour).Unix()})
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"skip path", "/health", "", http.StatusNoContent},
		{"missing header", "/metrics", "", http.StatusUnauthorized},
		{"not bearer", "/metrics", "Basic abc", http.StatusUnauthorized},
		{"valid", "/metrics", "Bearer " + valid, http.StatusNoContent},
		{"wrong secret", "/metrics", "Bearer " + sign(t, "other", jwt.MapClaims{"iss": "ops", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized},
		{"wrong issuer", "/metrics", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"iss": "api", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized},
		{"expired", "/metrics", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"iss": "ops", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"no expiry", "/metrics", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"iss": "ops"}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	logger := zaptest.NewLogger(t)
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), Recovery(logger), RequestLogger(logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
