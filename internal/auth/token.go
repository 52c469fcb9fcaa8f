// ABOUTME: JWT session tokens for the embedded backend and expiry reads for hosted tokens
// ABOUTME: Uses HS256 signing with a configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims are the fields a session token carries.
type Claims struct {
	Subject   string
	Email     string
	SessionID string
	ExpiresAt time.Time
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (Claims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret, now: time.Now}
}

// Verify validates the token and returns its claims. The "sub" and "jti"
// claims are required.
func (v *JWTVerifier) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	claims := claimsFromMap(mc)
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.SessionID == "" {
		return Claims{}, fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	return claims, nil
}

// Generate signs a token for the given user and session. It returns the token
// and its expiry.
func (v *JWTVerifier) Generate(userID, email, sessionID string, expiresIn time.Duration) (string, time.Time, error) {
	now := v.now()
	exp := now.Add(expiresIn)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"jti":   sessionID,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, time.Unix(exp.Unix(), 0).UTC(), nil
}

// ParseUnverified reads the claims of a token without checking its signature.
// Hosted tokens are signed by the backend, so the client only needs their
// expiry and subject to decide when to refresh.
func ParseUnverified(tokenString string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsFromMap(mc), nil
}

func claimsFromMap(mc jwt.MapClaims) Claims {
	var c Claims
	c.Subject, _ = mc["sub"].(string)
	c.Email, _ = mc["email"].(string)
	c.SessionID, _ = mc["jti"].(string)
	if c.SessionID == "" {
		c.SessionID, _ = mc["session_id"].(string)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.UTC()
	}
	return c
}
