// Package secrets encrypts VIM credentials at rest using NaCl secretbox
// (XSalsa20-Poly1305). Ciphertexts are base64-encoded with the random
// nonce prepended.
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

const keySize = 32

var ErrDecrypt = errors.New("decrypt: ciphertext invalid or wrong key")

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a hex-encoded 32-byte key, as supplied via VIM_AUTH_KEY.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("parse key: expected %d bytes, got %d", keySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext with the given key and returns a base64 string.
func Encrypt(plaintext, key []byte) (string, error) {
	if len(key) != keySize {
		return "", fmt.Errorf("encrypt: expected %d-byte key, got %d", keySize, len(key))
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("encrypt: generate nonce: %w", err)
	}

	var k [keySize]byte
	copy(k[:], key)

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &k)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 ciphertext produced by Encrypt.
func Decrypt(encoded string, key []byte) ([]byte, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("decrypt: expected %d-byte key, got %d", keySize, len(key))
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decrypt: decode base64: %w", err)
	}
	if len(data) < 24+secretbox.Overhead {
		return nil, ErrDecrypt
	}

	var nonce [24]byte
	copy(nonce[:], data[:24])

	var k [keySize]byte
	copy(k[:], key)

	plaintext, ok := secretbox.Open(nil, data[24:], &nonce, &k)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
