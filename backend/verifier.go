package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-campus"
)

// TokenVerifier checks the signature of a stored access token before the
// session is trusted again.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) error
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, accessToken string) error

func (f TokenVerifierFunc) Verify(ctx context.Context, accessToken string) error {
	return f(ctx, accessToken)
}

// TokenExpiry reads the exp claim without verifying the signature.
func TokenExpiry(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// HMACVerifier verifies HS256 tokens signed with the project JWT secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for secret.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

func (v *HMACVerifier) Verify(_ context.Context, accessToken string) error {
	return verifyToken(accessToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
}

// JWKSVerifier verifies tokens against a remote JSON Web Key Set, refreshed
// in the background.
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	logger campus.Logger
}

// NewJWKSVerifier fetches the key set at jwksURL.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger campus.Logger) (*JWKSVerifier, error) {
	_, logger = campus.ResolveLogger("backend.jwks", nil, logger)

	jwks, err := keyfunc.Get(jwksURL, jwksOptions(ctx, logger))
	if err != nil {
		return nil, campus.WrapError(campus.ErrNetwork, err, map[string]any{
			"jwks_url": jwksURL,
		})
	}

	return &JWKSVerifier{jwks: jwks, logger: logger}, nil
}

func (v *JWKSVerifier) Verify(_ context.Context, accessToken string) error {
	return verifyToken(accessToken, v.jwks.Keyfunc)
}

// Close stops the background refresh.
func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}

func jwksOptions(ctx context.Context, logger campus.Logger) keyfunc.Options {
	return keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			logger.Warn("failed to refresh JWKS", "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

func verifyToken(accessToken string, keyFunc jwt.Keyfunc) error {
	token, err := jwt.Parse(accessToken, keyFunc)
	if err != nil {
		return campus.WrapError(campus.ErrNotAuthenticated, err, map[string]any{
			"reason": "token verification failed",
		})
	}
	if !token.Valid {
		return campus.WrapError(campus.ErrNotAuthenticated, nil, map[string]any{
			"reason": "token invalid",
		})
	}
	return nil
}
