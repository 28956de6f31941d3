package core

import (
	"fmt"

	"trackflow-backend/internal/crypto"
)

// noteCipher implements NoteCipher with the AES-256-GCM helpers in internal/crypto.
type noteCipher struct {
	key []byte
}

// NewNoteCipher decodes the base64 ENCRYPTION_KEY and returns a NoteCipher.
func NewNoteCipher(keyBase64 string) (NoteCipher, error) {
	key, err := crypto.DecodeKey(keyBase64)
	if err != nil {
		return nil, err
	}
	return &noteCipher{key: key}, nil
}

// Seal delegates the encryption task to the crypto package.
func (c *noteCipher) Seal(plainText string) (string, error) {
	sealed, err := crypto.Encrypt(plainText, c.key)
	if err != nil {
		return "", fmt.Errorf("note_cipher: failed to encrypt: %w", err)
	}
	return sealed, nil
}

// Open delegates the decryption task to the crypto package.
func (c *noteCipher) Open(sealed string) (string, error) {
	plain, err := crypto.Decrypt(sealed, c.key)
	if err != nil {
		return "", fmt.Errorf("note_cipher: failed to decrypt: %w", err)
	}
	return plain, nil
}
