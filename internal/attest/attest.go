// Package attest signs and verifies approval signals. The signal body
// travels as plain JSON; a detached Ed25519 JWT binds a hash of that
// body to the issuer and the issuance time, so the receiving side can
// reject forged, replayed, or stale signals without sharing any secret
// with the sender.
package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ppiankov/sanctum/internal/model"
)

// DefaultStaleness is the acceptance window for a signal's issuance time.
const DefaultStaleness = 5 * time.Minute

// Header carries the token on signal delivery requests.
const Header = "X-Sanctum-Attestation"

// clockSkew tolerates small clock drift between the two roles.
const clockSkew = 60 * time.Second

// Claims is the attestation payload. SignalHash is the hex SHA-256 of
// the exact signal body bytes the token accompanies.
type Claims struct {
	SignalHash string `json:"signalHash"`
	jwt.RegisteredClaims
}

// HashBody returns the hex digest a token binds to.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// GenerateKey creates a fresh keypair and returns the hex seed and hex
// public key.
func GenerateKey() (seedHex, publicHex string, err error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate attestation key: %w", err)
	}
	return hex.EncodeToString(private.Seed()), hex.EncodeToString(public), nil
}

// Signer issues attestations for one issuer identity.
type Signer struct {
	issuer string
	key    ed25519.PrivateKey
}

// NewSigner builds a signer from a hex-encoded Ed25519 seed.
func NewSigner(issuer, seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode attestation seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("attestation seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return &Signer{issuer: issuer, key: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKeyHex returns the verifying key for distribution to the peer.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign issues a token over the given signal body.
func (s *Signer) Sign(body []byte) (string, error) {
	return s.signAt(body, time.Now())
}

func (s *Signer) signAt(body []byte, at time.Time) (string, error) {
	claims := Claims{
		SignalHash: HashBody(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(at),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign attestation: %w", err)
	}
	return token, nil
}

// Verifier checks attestations against a single trusted issuer key.
type Verifier struct {
	issuer    string
	key       ed25519.PublicKey
	staleness time.Duration
}

// NewVerifier builds a verifier from a hex-encoded Ed25519 public key.
// staleness <= 0 uses DefaultStaleness.
func NewVerifier(issuer, publicHex string, staleness time.Duration) (*Verifier, error) {
	raw, err := hex.DecodeString(publicHex)
	if err != nil {
		return nil, fmt.Errorf("decode attestation public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("attestation public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Verifier{issuer: issuer, key: ed25519.PublicKey(raw), staleness: staleness}, nil
}

// Verify checks that token is a valid attestation over body: signed by
// the trusted key, from the expected issuer, issued within the staleness
// window, and bound to exactly these body bytes. All failures wrap
// model.ErrAttestationInvalid.
func (v *Verifier) Verify(token string, body []byte) error {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrAttestationInvalid, err)
	}

	if claims.IssuedAt == nil {
		return fmt.Errorf("%w: missing issuance time", model.ErrAttestationInvalid)
	}
	age := time.Since(claims.IssuedAt.Time)
	if age > v.staleness {
		return fmt.Errorf("%w: issued %s ago, window is %s", model.ErrAttestationInvalid, age.Round(time.Second), v.staleness)
	}
	if age < -clockSkew {
		return fmt.Errorf("%w: issued in the future", model.ErrAttestationInvalid)
	}

	if claims.SignalHash != HashBody(body) {
		return fmt.Errorf("%w: signal hash mismatch", model.ErrAttestationInvalid)
	}
	return nil
}
