package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errSealedTooShort = errors.New("auth: sealed credential is too short")

// CredentialBox seals GitHub tokens before they are written to the database.
//
// WHY NOT STORE THE TOKEN AS IS?
// A token with the "repo" scope reads every private repository of the user.
// A copied database file must not hand those out.
//
// The box key is derived from the server secret with HKDF so the JWT
// signing key and the encryption key are never the same bytes.
// Layout of a sealed value: nonce (24 bytes) || secretbox output.
type CredentialBox struct {
	key [32]byte
}

// NewCredentialBox derives the box key from secret.
func NewCredentialBox(secret string) (*CredentialBox, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: credential secret must be at least 16 characters")
	}
	b := &CredentialBox{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("commit-streak credential box v1"))
	if _, err := io.ReadFull(kdf, b.key[:]); err != nil {
		return nil, fmt.Errorf("auth: deriving credential key: %w", err)
	}
	return b, nil
}

func (b *CredentialBox) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("auth: generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

func (b *CredentialBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errSealedTooShort
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, errors.New("auth: credential cannot be opened with this key")
	}
	return plain, nil
}
