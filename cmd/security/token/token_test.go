package token

import (
	"strings"
	"testing"
)

func TestHasher_SHA256Mode(t *testing.T) {
	h := NewHasher(nil)
	if h.HMAC() {
		t.Fatalf("expected sha256 mode")
	}

	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := h.Hash("abc"); got != want {
		t.Fatalf("Hash(abc)=%s want=%s", got, want)
	}
}

func TestHasher_HMACModeDiffersFromSHA(t *testing.T) {
	plain := NewHasher(nil)
	keyed := NewHasher([]byte(strings.Repeat("k", 32)))

	if !keyed.HMAC() {
		t.Fatalf("expected hmac mode")
	}
	a := plain.Hash("refresh-token")
	b := keyed.Hash("refresh-token")
	if a == b {
		t.Fatalf("hmac digest must differ from sha256 digest")
	}
	if len(b) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(b))
	}
}

func TestHasher_Matches(t *testing.T) {
	h := NewHasher([]byte(strings.Repeat("x", 40)))
	stored := h.Hash("tok-1")

	if !h.Matches("tok-1", stored) {
		t.Fatalf("expected match")
	}
	if h.Matches("tok-2", stored) {
		t.Fatalf("expected mismatch")
	}
	if h.Matches("tok-1", "") {
		t.Fatalf("empty stored digest must never match")
	}
}

func TestHasherFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HasherFromEnv(true); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	h, err := HasherFromEnv(false)
	if err != nil || h.HMAC() {
		t.Fatalf("expected sha256 fallback, got hmac=%v err=%v", h.HMAC(), err)
	}

	t.Setenv(HMACEnvKey, "too-short")
	if _, err := HasherFromEnv(true); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, strings.Repeat("s", 48))
	h, err = HasherFromEnv(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.HMAC() {
		t.Fatalf("expected hmac mode")
	}
}
