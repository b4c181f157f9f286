// README: Tests for the HS256 token verifier.
package infra

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "waykel")
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	now := time.Now().Unix()
	raw, err := SignJWT("s3cret", "waykel", "user-1", map[string]interface{}{"role": "driver", "is_self_driver": true}, 300, now)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	tok, err := v.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if tok.UID != "user-1" {
		t.Errorf("uid = %q", tok.UID)
	}
	if tok.Claims["role"] != "driver" || tok.Claims["is_self_driver"] != true {
		t.Errorf("unexpected claims %v", tok.Claims)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	v, _ := NewJWTVerifier("s3cret", "waykel")
	now := time.Now().Unix()
	cases := map[string]func() string{
		"wrong secret": func() string {
			s, _ := SignJWT("other", "waykel", "u", nil, 300, now)
			return s
		},
		"expired": func() string {
			s, _ := SignJWT("s3cret", "waykel", "u", nil, 60, now-3600)
			return s
		},
		"wrong issuer": func() string {
			s, _ := SignJWT("s3cret", "someone-else", "u", nil, 300, now)
			return s
		},
		"no subject": func() string {
			s, _ := SignJWT("s3cret", "waykel", "", nil, 300, now)
			return s
		},
		"garbage": func() string { return "not.a.token" },
	}
	for name, mk := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyIDToken(context.Background(), mk())
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier("", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

type failingVerifier struct{}

func (failingVerifier) VerifyIDToken(context.Context, string) (*FirebaseToken, error) {
	return nil, errors.New("not mine")
}

func TestChainVerifiersFallsThrough(t *testing.T) {
	jv, _ := NewJWTVerifier("s3cret", "")
	chain := ChainVerifiers(nil, failingVerifier{}, jv)
	raw, _ := SignJWT("s3cret", "", "user-2", nil, 300, time.Now().Unix())
	tok, err := chain.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if tok.UID != "user-2" || tok.Issuer != "jwt" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if _, err := chain.VerifyIDToken(context.Background(), "junk"); err == nil {
		t.Fatal("expected error for junk token")
	}
	if _, err := ChainVerifiers().VerifyIDToken(context.Background(), raw); err == nil {
		t.Fatal("expected error from empty chain")
	}
}
