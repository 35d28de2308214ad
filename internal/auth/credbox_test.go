package auth

import (
	"bytes"
	"testing"
)

func newTestBox(t *testing.T, secret string) *CredentialBox {
	t.Helper()
	b, err := NewCredentialBox(secret)
	if err != nil {
		t.Fatalf("NewCredentialBox: %v", err)
	}
	return b
}

func TestCredentialBox_RoundTrip(t *testing.T) {
	b := newTestBox(t, "box-secret-at-least-16-chars")

	sealed, err := b.Seal([]byte("ghp_token"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("ghp_token")) {
		t.Fatal("sealed value contains the plaintext")
	}

	plain, err := b.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(plain) != "ghp_token" {
		t.Errorf("Open() = %q, want ghp_token", plain)
	}
}

func TestCredentialBox_FreshNonceEverySeal(t *testing.T) {
	b := newTestBox(t, "box-secret-at-least-16-chars")

	s1, _ := b.Seal([]byte("same"))
	s2, _ := b.Seal([]byte("same"))
	if bytes.Equal(s1, s2) {
		t.Error("two seals of the same token should differ")
	}
}

func TestCredentialBox_Rejects(t *testing.T) {
	b := newTestBox(t, "box-secret-at-least-16-chars")
	other := newTestBox(t, "another-secret-16-chars-long")

	sealed, _ := b.Seal([]byte("ghp_token"))
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := map[string][]byte{
		"wrong key": nil,
		"tampered":  tampered,
		"too short": sealed[:10],
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			box := b
			if in == nil {
				box, in = other, sealed
			}
			if _, err := box.Open(in); err == nil {
				t.Fatal("Open() should fail")
			}
		})
	}

	if _, err := NewCredentialBox("short"); err == nil {
		t.Error("NewCredentialBox() should reject short secrets")
	}
}
