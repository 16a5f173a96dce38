// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs and verifies session tokens. "sub" carries the wallet address.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// expire of 0 means tokens carry no exp claim.
	expire time.Duration
	now    func() time.Time
}

// NewIssuer generates a fresh ed25519 key pair at runtime. Tokens do not survive a restart.
func NewIssuer(expire time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, expire: expire, now: time.Now}, nil
}

// NewIssuerFromFile reads a 32-byte ed25519 seed from path.
func NewIssuerFromFile(path string, expire time.Duration) (*Issuer, error) {
	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s: want %d byte seed, got %d", path, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Issuer{privateKey: priv, publicKey: priv.Public().(ed25519.PublicKey), expire: expire, now: time.Now}, nil
}

// CreateJWT creates a signed JWT token with "sub" = address.
func (is *Issuer) CreateJWT(address string) (string, error) {
	now := is.now()
	claims := jwt.MapClaims{
		"sub": address,
		"iat": now.Unix(),
	}
	if is.expire > 0 {
		claims["exp"] = now.Add(is.expire).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(is.privateKey)
}

// AuthenticateJWT verifies a JWT string, returns the "sub" field if valid, else an error.
func (is *Issuer) AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return is.publicKey, nil
	}, jwt.WithTimeFunc(is.now))

	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}

	address, ok := claims["sub"].(string)
	if !ok || address == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}

	return address, nil
}
