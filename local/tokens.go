package local

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

var (
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
			WithTextCode("TOKEN_EXPIRED").
			WithCode(goerrors.CodeUnauthorized)

	// ErrTokenMalformed is returned for tokens that fail to parse or verify.
	ErrTokenMalformed = goerrors.New("malformed token", goerrors.CategoryAuth).
				WithTextCode("TOKEN_MALFORMED").
				WithCode(goerrors.CodeUnauthorized)

	// ErrWrongTokenKind is returned when a refresh token is used as an access
	// token or the other way around.
	ErrWrongTokenKind = goerrors.New("unexpected token kind", goerrors.CategoryAuth).
				WithTextCode("TOKEN_KIND_MISMATCH").
				WithCode(goerrors.CodeUnauthorized)
)

// Claims are the claims carried by locally minted tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Kind      string `json:"kind"`
}

// TokenIssuer mints and validates HS256 tokens.
type TokenIssuer struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (ti *TokenIssuer) now() time.Time {
	if ti.Now != nil {
		return ti.Now()
	}
	return time.Now()
}

// Issue mints an access token and a refresh token bound to sessionID.
func (ti *TokenIssuer) Issue(account *Account, role, sessionID string) (access, refresh string, expiresAt time.Time, err error) {
	now := ti.now()
	expiresAt = now.Add(ti.AccessTTL)

	access, err = ti.sign(&Claims{
		RegisteredClaims: ti.registered(account.ID.String(), now, expiresAt),
		Email:            account.Email,
		Role:             role,
		SessionID:        sessionID,
		Kind:             TokenKindAccess,
	})
	if err != nil {
		return "", "", time.Time{}, err
	}

	refresh, err = ti.sign(&Claims{
		RegisteredClaims: ti.registered(account.ID.String(), now, now.Add(ti.RefreshTTL)),
		SessionID:        sessionID,
		Kind:             TokenKindRefresh,
	})
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expiresAt, nil
}

func (ti *TokenIssuer) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    ti.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (ti *TokenIssuer) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.SigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate parses tokenString and checks it is of the expected kind.
func (ti *TokenIssuer) Validate(tokenString, kind string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ti.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ti.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ti.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.SigningKey, nil
	}, parserOptions...)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired.Clone()
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed.Clone()
	}
	if claims.Kind != kind {
		return nil, ErrWrongTokenKind.Clone()
	}
	return claims, nil
}
