// Package auth guards scan submission with HMAC-signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSecretRequired is returned by New when checks are enabled without a key.
	ErrSecretRequired = errors.New("JWT secret is required unless auth is disabled")

	ErrMissingToken = errors.New("bearer token required")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token has no subject")
)

// Config selects how requests are authenticated. Disabled must be set
// explicitly; an empty Secret never turns checks off.
type Config struct {
	Secret   string
	Audience string
	Disabled bool
}

// Authenticator validates bearer tokens signed with a shared HMAC key.
type Authenticator struct {
	key      []byte
	parser   *jwt.Parser
	disabled bool
}

func New(cfg Config) (*Authenticator, error) {
	if cfg.Disabled {
		return &Authenticator{disabled: true}, nil
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrSecretRequired
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	return &Authenticator{key: []byte(secret), parser: jwt.NewParser(opts...)}, nil
}

// Disabled reports whether requests pass without a token.
func (a *Authenticator) Disabled() bool { return a.disabled }

// Subject validates an Authorization header value and returns the token's
// subject claim.
func (a *Authenticator) Subject(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}

	var claims jwt.RegisteredClaims
	_, err := a.parser.ParseWithClaims(parts[1], &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid token and stores the subject
// on the request context for SubjectFrom.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	if a.disabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		subject, err := a.Subject(c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="recycle-points"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": publicReason(err)})
			return
		}
		c.Request = c.Request.WithContext(withSubject(c.Request.Context(), subject))
		c.Next()
	}
}

// publicReason drops parser detail such as which claim failed.
func publicReason(err error) string {
	for _, known := range []error{ErrMissingToken, ErrInvalidToken, ErrNoSubject} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInvalidToken.Error()
}

type subjectKey struct{}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the subject set by Middleware.
func SubjectFrom(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok && subject != ""
}
