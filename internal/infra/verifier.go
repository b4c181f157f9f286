// README: Bearer token contract shared by the Firebase and HS256 verifiers.
package infra

import (
	"context"
	"errors"
)

// FirebaseToken holds the verified token data used by downstream middleware.
// JWT-issued tokens are normalised into the same shape.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
	Issuer string
}

// TokenVerifier verifies a raw bearer token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

type chainVerifier []TokenVerifier

// ChainVerifiers tries each verifier in order and returns the first success.
// Nil entries are skipped.
func ChainVerifiers(vs ...TokenVerifier) TokenVerifier {
	var out chainVerifier
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (c chainVerifier) VerifyIDToken(ctx context.Context, raw string) (*FirebaseToken, error) {
	if len(c) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	var errs []error
	for _, v := range c {
		tok, err := v.VerifyIDToken(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
