package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// ErrDecrypt marks ciphertext that cannot be opened with the derived
// key: corrupted data or a rotated secret. Treat it as permanent, the
// credentials can only be re-entered by the user.
var ErrDecrypt = errors.New("invalid key or corrupted ciphertext")

const keySize = 32

// DeriveKey produces the per-user encryption key from the service
// secret and the user's chat id. Deterministic, so the key itself is
// never stored anywhere.
func DeriveKey(secret string, chatID int64) []byte {
	kdf := hkdf.New(
		sha256.New,
		[]byte(secret),
		nil,
		[]byte(strconv.FormatInt(chatID, 10)),
	)
	key := make([]byte, keySize)
	_, err := io.ReadFull(kdf, key)
	if err != nil {
		// hkdf over sha256 always yields 32 bytes
		panic(err)
	}
	return key
}

// Encrypt seals plaintext with AES-256-GCM, returning a single base64
// string of nonce followed by ciphertext.
func Encrypt(key []byte, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	_, err = rand.Read(nonce)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampering, truncation
// and key mismatch all surface as ErrDecrypt.
func Decrypt(key []byte, ciphertext string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", ErrDecrypt)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: too short", ErrDecrypt)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecrypt, err.Error())
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
