package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrInvalidKey = errors.New("secrets: key must be 32 bytes of hex")

// Box seals and opens mailbox credentials stored at rest. Account passwords
// must come back in the clear for protocol login, so a one-way hash cannot
// serve here.
type Box struct {
	key [32]byte
}

func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts the plaintext and returns a base64 token of nonce||ciphertext.
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal.
func (b *Box) Open(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed credential: %w", err)
	}
	if len(raw) < 24 {
		return "", errors.New("sealed credential too short")
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", errors.New("failed to open sealed credential")
	}
	return string(plain), nil
}
