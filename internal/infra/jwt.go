// README: HS256 bearer token verifier for service-to-service and local use.
package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type jwtVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier accepts HS256 tokens signed with secret. The subject claim
// becomes the caller UID. An empty issuer skips the issuer check.
func NewJWTVerifier(secret, issuer string) (TokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &jwtVerifier{secret: []byte(secret), issuer: issuer}, nil
}

func (v *jwtVerifier) VerifyIDToken(_ context.Context, raw string) (*FirebaseToken, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &FirebaseToken{UID: sub, Claims: claims, Issuer: "jwt"}, nil
}

// SignJWT issues an HS256 token for uid carrying extra claims.
func SignJWT(secret, issuer, uid string, extra map[string]interface{}, ttlSeconds int64, now int64) (string, error) {
	claims := jwt.MapClaims{
		"sub": uid,
		"iat": now,
		"exp": now + ttlSeconds,
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	for k, v := range extra {
		claims[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
