package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jjudge-oj/accountserver/internal/apperr"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("super-secret")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newPair(t *testing.T, clock *fakeClock) (*Issuer, *Verifier) {
	t.Helper()
	issuer, err := NewIssuer(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	verifier, err := NewVerifier(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return issuer, verifier
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	issuer, verifier := newPair(t, clock)

	tok, err := issuer.Issue("6f1c2a9e-user")
	require.NoError(t, err)

	subject, err := verifier.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "6f1c2a9e-user", subject)
}

func TestIssueSetsNinetyDayExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	issuer, _ := newPair(t, clock)

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)

	var claims Claims
	_, _, err = jwt.NewParser().ParseUnverified(tok, &claims)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.True(t, claims.IssuedAt.Time.Equal(clock.now))
	require.True(t, claims.ExpiresAt.Time.Equal(clock.now.Add(90*24*time.Hour)))
}

func TestTokensForSameSubjectDiffer(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer, verifier := newPair(t, clock)

	first, err := issuer.Issue("u1")
	require.NoError(t, err)
	second, err := issuer.Issue("u1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	for _, tok := range []string{first, second} {
		subject, err := verifier.Verify(tok)
		require.NoError(t, err)
		require.Equal(t, "u1", subject)
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	issuer, verifier := newPair(t, clock)

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)

	clock.now = clock.now.Add(Lifetime - time.Second)
	_, err = verifier.Verify(tok)
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Second)
	_, err = verifier.Verify(tok)
	require.Error(t, err)
	require.Equal(t, apperr.KindExpired, apperr.KindOf(err))
}

func TestVerifyTamperedSignature(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer, verifier := newPair(t, clock)

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'A' {
		sig[mid] = 'B'
	} else {
		sig[mid] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = verifier.Verify(tampered)
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestVerifyRejectsAnyChangeToLastSignatureChar(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer, verifier := newPair(t, clock)

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)

	last := strings.IndexByte(base64URLAlphabet, tok[len(tok)-1])
	require.GreaterOrEqual(t, last, 0)

	// The low bits of the final character are padding for a 32 byte MAC;
	// flipping them must be caught as well as flipping data bits.
	for _, flip := range []int{1, 2, 3, 4, 16, 32} {
		swapped := base64URLAlphabet[last^flip]
		tampered := tok[:len(tok)-1] + string(swapped)

		_, err := verifier.Verify(tampered)
		require.Error(t, err, "last char %q -> %q", tok[len(tok)-1], swapped)
		require.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
	}
}

func TestVerifyRejectsUndecodableSignature(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer, verifier := newPair(t, clock)

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)
	parts := strings.Split(tok, ".")

	_, err = verifier.Verify(parts[0] + "." + parts[1] + ".!!not-base64!!")
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

func TestVerifyRejectsTokensFromTheFuture(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	_, verifier := newPair(t, clock)

	notYet, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Subject:   "u1",
		NotBefore: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(2 * time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = verifier.Verify(notYet)
	require.Error(t, err)
	require.Equal(t, apperr.KindMalformedToken, apperr.KindOf(err))

	issuedLater, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Subject:   "u1",
		IssuedAt:  jwt.NewNumericDate(clock.now.Add(time.Hour)),
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(2 * time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = verifier.Verify(issuedLater)
	require.Error(t, err)
	require.Equal(t, apperr.KindMalformedToken, apperr.KindOf(err))
}

func TestVerifyTamperedPayload(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer, verifier := newPair(t, clock)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Subject:   "someone-else",
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	tok, err := issuer.Issue("u1")
	require.NoError(t, err)

	// Graft the forged payload onto a genuine signature.
	genuine := strings.Split(tok, ".")
	fake := strings.Split(forged, ".")
	_, err = verifier.Verify(genuine[0] + "." + fake[1] + "." + genuine[2])
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

func TestVerifyWrongSecret(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer, err := NewIssuer([]byte("right-secret"), WithClock(clock.Now))
	require.NoError(t, err)
	verifier, err := NewVerifier([]byte("wrong-secret"), WithClock(clock.Now))
	require.NoError(t, err)

	tok, err := issuer.Issue("u2")
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	require.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	_, verifier := newPair(t, clock)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	require.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Verify(unsigned)
	require.Error(t, err)
	require.Equal(t, apperr.StatusUnauthorized, apperr.StatusOf(err))
}

func TestVerifyMalformed(t *testing.T) {
	_, verifier := newPair(t, &fakeClock{now: time.Now()})

	for _, tok := range []string{"", "not.a.jwt", "abc", "a.b"} {
		_, err := verifier.Verify(tok)
		require.Error(t, err)
		require.Equal(t, apperr.KindMalformedToken, apperr.KindOf(err), "token %q", tok)
	}
}

func TestVerifyRequiresExpiryAndSubject(t *testing.T) {
	_, verifier := newPair(t, &fakeClock{now: time.Now()})

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Subject: "u1"}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = verifier.Verify(noExp)
	require.Equal(t, apperr.KindMalformedToken, apperr.KindOf(err))

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = verifier.Verify(noSub)
	require.Equal(t, apperr.KindMalformedToken, apperr.KindOf(err))
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := NewIssuer(nil)
	require.Error(t, err)
	_, err = NewVerifier([]byte{})
	require.Error(t, err)
}
