package secrets

import (
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}

	token, err := box.Seal("imap-password-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if token == "imap-password-123" {
		t.Fatal("Seal returned the plaintext")
	}

	plain, err := box.Open(token)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "imap-password-123" {
		t.Errorf("Open = %q, want original plaintext", plain)
	}
}

func TestSealProducesFreshNonce(t *testing.T) {
	box, _ := NewBox(testKey)

	a, _ := box.Seal("same input")
	b, _ := box.Seal("same input")
	if a == b {
		t.Error("two Seal calls produced identical tokens")
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	box, _ := NewBox(testKey)
	token, _ := box.Seal("secret")

	other, err := NewBox(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	if _, err := other.Open(token); err == nil {
		t.Error("Open with a different key succeeded")
	}
}

func TestNewBoxRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "zz", "abcd", strings.Repeat("a", 63)} {
		if _, err := NewBox(key); err == nil {
			t.Errorf("NewBox(%q) accepted an invalid key", key)
		}
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	box, _ := NewBox(testKey)

	if _, err := box.Open("not base64 !!!"); err == nil {
		t.Error("Open accepted invalid base64")
	}
	if _, err := box.Open("YWJj"); err == nil {
		t.Error("Open accepted a token shorter than a nonce")
	}
}
