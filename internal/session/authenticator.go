// Package session implements challenge-response identity proof and the
// session leases gating write access to shared elements.
//
// A client proves control of an ed25519 key pair by signing a short-lived
// server challenge. Valid proofs yield a lease token the client attaches
// to action envelopes, which is much cheaper than signing every mutation.
package session

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pagemesh/pagemesh/internal/platform/errors"
	"github.com/pagemesh/pagemesh/internal/platform/id"
)

const (
	// ChallengeTTL bounds how long a signed challenge stays redeemable.
	ChallengeTTL = 5 * time.Minute
	// LeaseTTL is the lifetime of an issued session lease.
	LeaseTTL = 24 * time.Hour
)

// Challenge is a single-use server nonce a client must sign.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SigningPayload is the canonical byte sequence a client signs. Both
// sides must derive it identically or verification fails.
func (c Challenge) SigningPayload() []byte {
	return []byte(fmt.Sprintf("%s\n%s\n%d", c.Nonce, c.Domain, c.Timestamp.UnixMilli()))
}

// ChallengeResponse is the client's proof for an outstanding challenge.
type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	Signature []byte `json:"signature"`
	PublicKey []byte `json:"publicKey"`
}

// Lease is an issued session. Token carries the same claims in signed
// form for stateless verification.
type Lease struct {
	SessionID string    `json:"sessionId"`
	PublicKey []byte    `json:"publicKey"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"token"`
}

type leaseClaims struct {
	SessionID string `json:"sid"`
	PublicKey string `json:"pk"`
	jwt.RegisteredClaims
}

// Authenticator issues challenges and exchanges valid proofs for leases.
type Authenticator struct {
	mu         sync.Mutex
	challenges map[string]Challenge

	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	now        func() time.Time
}

// AuthenticatorOption configures optional authenticator collaborators.
type AuthenticatorOption func(*Authenticator)

// WithNow overrides the authenticator clock.
func WithNow(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator creates an authenticator that signs leases with the
// given ed25519 key.
func NewAuthenticator(signingKey ed25519.PrivateKey, opts ...AuthenticatorOption) (*Authenticator, error) {
	if len(signingKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(signingKey))
	}

	a := &Authenticator{
		challenges: make(map[string]Challenge),
		signingKey: signingKey,
		verifyKey:  signingKey.Public().(ed25519.PublicKey),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// IssueChallenge creates a new single-use challenge for a domain.
func (a *Authenticator) IssueChallenge(domain string) Challenge {
	now := a.now()
	challenge := Challenge{
		Nonce:     id.MustNewID(),
		Domain:    domain,
		Timestamp: now,
		ExpiresAt: now.Add(ChallengeTTL),
	}

	a.mu.Lock()
	a.pruneExpiredLocked(now)
	a.challenges[challenge.Nonce] = challenge
	a.mu.Unlock()

	return challenge
}

// pruneExpiredLocked drops challenges past their expiry. Caller holds mu.
func (a *Authenticator) pruneExpiredLocked(now time.Time) {
	for nonce, challenge := range a.challenges {
		if now.After(challenge.ExpiresAt) {
			delete(a.challenges, nonce)
		}
	}
}

// VerifyChallenge checks a signed challenge and issues a lease. The
// challenge is consumed whether or not the proof verifies, so a stolen
// response cannot be replayed.
func (a *Authenticator) VerifyChallenge(response ChallengeResponse) (Lease, error) {
	a.mu.Lock()
	challenge, ok := a.challenges[response.Nonce]
	delete(a.challenges, response.Nonce)
	a.mu.Unlock()

	now := a.now()
	if !ok || now.After(challenge.ExpiresAt) {
		return Lease{}, errors.New(errors.CodeSessionChallengeExpired, "challenge is unknown or expired")
	}
	if len(response.PublicKey) != ed25519.PublicKeySize {
		return Lease{}, errors.WithMetadata(errors.CodeSessionInvalidPublicKey, "public key must be 32 bytes", map[string]string{
			"length": fmt.Sprintf("%d", len(response.PublicKey)),
		})
	}
	if !ed25519.Verify(response.PublicKey, challenge.SigningPayload(), response.Signature) {
		return Lease{}, errors.New(errors.CodeSessionInvalidSignature, "challenge signature does not verify")
	}

	return a.issueLease(response.PublicKey, now)
}

func (a *Authenticator) issueLease(publicKey []byte, now time.Time) (Lease, error) {
	sessionID := id.MustNewID()
	expiresAt := now.Add(LeaseTTL)

	claims := leaseClaims{
		SessionID: sessionID,
		PublicKey: base64.RawStdEncoding.EncodeToString(publicKey),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(a.signingKey)
	if err != nil {
		return Lease{}, fmt.Errorf("sign lease token: %w", err)
	}

	return Lease{
		SessionID: sessionID,
		PublicKey: append([]byte(nil), publicKey...),
		ExpiresAt: expiresAt,
		Token:     token,
	}, nil
}

// VerifyLease validates a lease token and returns its session identity.
func (a *Authenticator) VerifyLease(token string) (Lease, error) {
	var claims leaseClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.verifyKey, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return Lease{}, errors.Wrap(errors.CodeSessionLeaseExpired, "lease token is invalid or expired", err)
	}

	publicKey, err := base64.RawStdEncoding.DecodeString(claims.PublicKey)
	if err != nil {
		return Lease{}, errors.Wrap(errors.CodeSessionInvalidPublicKey, "lease public key is malformed", err)
	}

	return Lease{
		SessionID: claims.SessionID,
		PublicKey: publicKey,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     token,
	}, nil
}
