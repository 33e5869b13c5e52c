package id

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Generator creates opaque IDs suitable for external references.
type Generator interface {
	NewID() (string, error)
}

type RandomGenerator struct{}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

func (g *RandomGenerator) NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// Nonce is a single-use replay-protection value for identity-provider
// exchanges. Raw is handed to the provider; Digest (SHA-256 hex of Raw) is
// what the provider embeds in the returned credential.
type Nonce struct {
	Raw    string
	Digest string
}

func NewNonce() (Nonce, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Nonce{}, fmt.Errorf("read random bytes: %w", err)
	}

	raw := hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(raw))
	return Nonce{
		Raw:    raw,
		Digest: hex.EncodeToString(sum[:]),
	}, nil
}

// Matches verifies a credential nonce against the digest without assuming
// which form the provider echoed back.
func (n Nonce) Matches(candidate string) bool {
	if candidate == "" {
		return false
	}
	if candidate == n.Digest {
		return true
	}
	sum := sha256.Sum256([]byte(candidate))
	return hex.EncodeToString(sum[:]) == n.Digest
}
