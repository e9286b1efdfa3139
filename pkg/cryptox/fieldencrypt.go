package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// EncryptField encrypts a sensitive column value with AES-256-GCM under the
// derived field key. Output layout before encoding:
// [12-byte nonce][ciphertext][16-byte auth tag], base64url encoded for
// storage in a TEXT column. A fresh random nonce is used per call, so equal
// plaintexts produce different ciphertexts.
func (c *Context) EncryptField(plaintext string) (string, error) {
	gcm, err := c.fieldCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField. Any tampering with the ciphertext or
// its tag, and any value that is not valid output of EncryptField, fails with
// ErrIntegrity.
func (c *Context) DecryptField(encoded string) (string, error) {
	gcm, err := c.fieldCipher()
	if err != nil {
		return "", err
	}

	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrIntegrity
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize+gcm.Overhead() {
		return "", ErrIntegrity
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}

func (c *Context) fieldCipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
