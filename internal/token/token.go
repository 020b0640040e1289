// Package token issues and verifies the stateless bearer tokens that
// authenticate account requests.
//
// Tokens are HS256 JWTs carrying the account id as subject. Nothing is
// stored server side: a token stays valid until it expires, even if the
// account is deleted or its password changes.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jjudge-oj/accountserver/internal/apperr"
)

// Lifetime is how long an issued token is accepted.
const Lifetime = 90 * 24 * time.Hour

var errEmptySecret = errors.New("token signing secret is required")

// Claims is the signed token payload.
type Claims = jwt.RegisteredClaims

// Option configures an Issuer or Verifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs tokens with the process-wide secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer constructs an Issuer. The secret must be the one given to the
// Verifier.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	o := buildOptions(opts)
	return &Issuer{secret: secret, now: o.now}, nil
}

// Issue returns a token for subject, valid for Lifetime.
func (i *Issuer) Issue(subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", apperr.New(apperr.KindInternal, "token subject is required")
	}
	now := i.now()
	claims := Claims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return signed, nil
}

// Verifier validates tokens produced by an Issuer sharing its secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret []byte, opts ...Option) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	o := buildOptions(opts)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(o.now),
	)
	return &Verifier{secret: secret, parser: parser}, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// subject. Failures are KindMalformedToken, KindInvalidSignature or
// KindExpired.
func (v *Verifier) Verify(tokenString string) (string, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", classify(tokenString, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.New(apperr.KindMalformedToken, "token has no subject")
	}
	return claims.Subject, nil
}

func classify(tokenString string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		if signatureOnlyCorrupt(tokenString) {
			return apperr.Wrap(apperr.KindInvalidSignature, "invalid token signature", err)
		}
		return apperr.Wrap(apperr.KindMalformedToken, "malformed token", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.KindExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return apperr.Wrap(apperr.KindMalformedToken, "malformed token", err)
	default:
		// bad signature, disallowed alg, unverifiable
		return apperr.Wrap(apperr.KindInvalidSignature, "invalid token signature", err)
	}
}

// signatureOnlyCorrupt reports whether header and claims decode cleanly, so
// the malformed segment must be the signature.
func signatureOnlyCorrupt(tokenString string) bool {
	var claims Claims
	_, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(tokenString, &claims)
	return err == nil
}
