// internal/auth/wallet.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

// ErrWalletProof is returned when a signed challenge does not prove ownership of an address.
var ErrWalletProof = errors.New("wallet proof rejected")

// singleKeyScheme is the authentication key scheme byte of a single ed25519 account.
const singleKeyScheme = 0x00

type challenge struct {
	message string
	expires time.Time
}

// Challenges hands out one-time login messages that a wallet signs to prove ownership.
type Challenges struct {
	mu      sync.Mutex
	pending map[string]challenge
	ttl     time.Duration
	now     func() time.Time
}

func NewChallenges(ttl time.Duration) *Challenges {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Challenges{pending: make(map[string]challenge), ttl: ttl, now: time.Now}
}

// NormalizeAddress lowercases a hex account address and pads it to 32 bytes.
func NormalizeAddress(address string) (string, error) {
	a := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(address)), "0x")
	if a == "" || len(a) > 64 {
		return "", fmt.Errorf("%w: bad address %q", ErrWalletProof, address)
	}
	if _, err := hex.DecodeString(strings.Repeat("0", len(a)%2) + a); err != nil {
		return "", fmt.Errorf("%w: bad address %q", ErrWalletProof, address)
	}
	return "0x" + strings.Repeat("0", 64-len(a)) + a, nil
}

// AddressFromPublicKey derives the account address of a single ed25519 key.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{singleKeyScheme})
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Issue creates the login message for address, replacing any pending one.
func (c *Challenges) Issue(address string) (string, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	msg := fmt.Sprintf("nightstake login\naddress: %s\nnonce: %s", addr, hex.EncodeToString(nonce))

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for a, ch := range c.pending {
		if now.After(ch.expires) {
			delete(c.pending, a)
		}
	}
	c.pending[addr] = challenge{message: msg, expires: now.Add(c.ttl)}
	return msg, nil
}

// Verify checks that publicKeyHex owns address and signed its pending message. The
// challenge is consumed whether or not the proof holds.
func (c *Challenges) Verify(address, publicKeyHex, signatureHex string) (string, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	ch, ok := c.pending[addr]
	delete(c.pending, addr)
	c.mu.Unlock()
	if !ok || c.now().After(ch.expires) {
		return "", fmt.Errorf("%w: no pending challenge for %s", ErrWalletProof, addr)
	}

	pub, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: bad public key", ErrWalletProof)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", fmt.Errorf("%w: bad signature encoding", ErrWalletProof)
	}
	if AddressFromPublicKey(pub) != addr {
		return "", fmt.Errorf("%w: key does not own %s", ErrWalletProof, addr)
	}
	if !ed25519.Verify(pub, []byte(ch.message), sig) {
		return "", fmt.Errorf("%w: signature mismatch", ErrWalletProof)
	}
	return addr, nil
}
