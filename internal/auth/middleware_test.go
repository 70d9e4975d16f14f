package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to build authenticator: %v", err)
	}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", a.Middleware(), func(c *gin.Context) {
		subject, _ := SubjectFrom(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func TestMiddleware(t *testing.T) {
	valid := jwt.RegisteredClaims{
		Subject:   "collector-7",
		Audience:  jwt.ClaimStrings{"recycle"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = ""

	tests := []struct {
		name     string
		header   string
		audience string
		status   int
		body     string
	}{
		{"valid token", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, valid), "recycle", http.StatusOK, "collector-7"},
		{"hs512 token", "bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, valid), "", http.StatusOK, "collector-7"},
		{"missing header", "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized, ""},
		{"extra fields", "Bearer a b", "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", valid), "", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, expired), "", http.StatusUnauthorized, ""},
		{"wrong audience", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, valid), "billing", http.StatusUnauthorized, ""},
		{"missing subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, noSubject), "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			newRouter(t, Config{Secret: testSecret, Audience: tt.audience}).ServeHTTP(resp, req)

			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.Code)
			}
			if tt.body != "" && resp.Body.String() != tt.body {
				t.Fatalf("expected subject %q, got %q", tt.body, resp.Body.String())
			}
			if tt.status == http.StatusUnauthorized && resp.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("expected a WWW-Authenticate challenge")
			}
		})
	}
}

func TestNewRequiresSecretUnlessDisabled(t *testing.T) {
	for _, secret := range []string{"", "   "} {
		if _, err := New(Config{Secret: secret}); !errors.Is(err, ErrSecretRequired) {
			t.Fatalf("expected ErrSecretRequired for secret %q, got %v", secret, err)
		}
	}

	a, err := New(Config{Disabled: true})
	if err != nil {
		t.Fatalf("expected disabled authenticator, got error: %v", err)
	}
	if !a.Disabled() {
		t.Fatal("expected authenticator to report disabled")
	}
}

func TestMiddlewareDisabledLetsRequestsThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp := httptest.NewRecorder()
	newRouter(t, Config{Disabled: true}).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if resp.Body.Len() != 0 {
		t.Fatalf("expected no subject, got %q", resp.Body.String())
	}
}

func TestMiddlewareRejectsUnsignedTokens(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "collector-7"}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+unsigned)
	resp := httptest.NewRecorder()
	newRouter(t, Config{Secret: testSecret}).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}
