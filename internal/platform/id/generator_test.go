package id

import "testing"

func TestRandomGenerator_NewID(t *testing.T) {
	gen := NewRandomGenerator()

	first, err := gen.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	second, err := gen.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}

	if len(first) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(first))
	}
	if first == second {
		t.Fatalf("ids must not repeat")
	}
}

func TestNonce_Matches(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatalf("new nonce: %v", err)
	}

	if !nonce.Matches(nonce.Digest) {
		t.Fatalf("digest echo must match")
	}
	if !nonce.Matches(nonce.Raw) {
		t.Fatalf("raw echo must match via hashing")
	}
	if nonce.Matches("") {
		t.Fatalf("empty candidate must not match")
	}
	if nonce.Matches("something-else") {
		t.Fatalf("foreign candidate must not match")
	}

	other, err := NewNonce()
	if err != nil {
		t.Fatalf("new nonce: %v", err)
	}
	if nonce.Matches(other.Digest) {
		t.Fatalf("nonces are single-use and unique per attempt")
	}
}
