package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := Encrypt("felt anxious before the exam", testKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "anxious")

	plain, err := Decrypt(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "felt anxious before the exam", plain)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	a, err := Encrypt("same", testKey)
	require.NoError(t, err)
	b, err := Encrypt("same", testKey)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTampering(t *testing.T) {
	sealed, err := Encrypt("note", testKey)
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = Decrypt(base64.StdEncoding.EncodeToString(raw), testKey)
	assert.True(t, errors.Is(err, ErrInvalidCiphertext))

	_, err = Decrypt("not base64!", testKey)
	assert.True(t, errors.Is(err, ErrInvalidCiphertext))

	_, err = Decrypt(base64.StdEncoding.EncodeToString([]byte("x")), testKey)
	assert.True(t, errors.Is(err, ErrInvalidCiphertext))

	otherKey := []byte(strings.Repeat("k", 32))
	_, err = Decrypt(sealed, otherKey)
	assert.True(t, errors.Is(err, ErrInvalidCiphertext))
}

func TestDecodeKey(t *testing.T) {
	key, err := DecodeKey(base64.StdEncoding.EncodeToString(testKey))
	require.NoError(t, err)
	assert.Equal(t, testKey, key)

	_, err = DecodeKey("")
	assert.Error(t, err)
	_, err = DecodeKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
	_, err = DecodeKey("%%%")
	assert.Error(t, err)
}
