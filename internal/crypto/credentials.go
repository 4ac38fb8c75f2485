// Package crypto encrypts and decrypts Repository credentials at rest.
// Each ciphertext is salt(16) || iv(12) || ciphertext+tag, base64-encoded,
// with the AES-256-GCM key derived per-ciphertext by
// PBKDF2-SHA256(100000 iterations) from the configured master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	ivSize     = 12
	keySize    = 32
	iterations = 100_000
)

var ErrDecrypt = errors.New("crypto: decryption failed")

// padKey pads or truncates the master key to exactly 32 bytes, matching the
// "master key padded to 32 bytes" requirement for keys of any input length.
func padKey(masterKey string) []byte {
	padded := make([]byte, keySize)
	copy(padded, masterKey)
	return padded
}

// Encrypt encrypts plaintext with a key derived from masterKey and a fresh
// random salt/IV. Two calls with identical plaintext and key produce
// different ciphertexts because the IV (and salt) are random per call.
func Encrypt(masterKey string, plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: generate iv: %w", err)
	}

	key := pbkdf2.Key([]byte(padKey(masterKey)), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("crypto: new gcm: %w", err)
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	out := make([]byte, 0, saltSize+ivSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Decryption with a different masterKey than the
// one used at encryption time fails deterministically (authentication tag
// mismatch), returning ErrDecrypt.
func Decrypt(masterKey string, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < saltSize+ivSize {
		return nil, ErrDecrypt
	}

	salt := raw[:saltSize]
	iv := raw[saltSize : saltSize+ivSize]
	ciphertext := raw[saltSize+ivSize:]

	key := pbkdf2.Key([]byte(padKey(masterKey)), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
