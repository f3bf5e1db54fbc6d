package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawKey = "0123456789abcdef0123456789abcdef" // 32 bytes

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(rawKey)
	require.NoError(t, err)

	enc, err := c.Encrypt("smtp-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "smtp-password-123", enc)

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "smtp-password-123", dec)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	c, err := New(rawKey)
	require.NoError(t, err)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHexKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	c, err := New(hexKey)
	require.NoError(t, err)

	enc, err := c.Encrypt("secret")
	require.NoError(t, err)
	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "secret", dec)
}

func TestBadKeyLength(t *testing.T) {
	_, err := New("too-short")
	assert.Error(t, err)
}

func TestDecryptGarbage(t *testing.T) {
	c, err := New(rawKey)
	require.NoError(t, err)

	_, err = c.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = c.Decrypt("YWJj") // valid base64, too short for a nonce
	assert.Error(t, err)
}

func TestDecryptWrongKey(t *testing.T) {
	c1, err := New(rawKey)
	require.NoError(t, err)
	c2, err := New("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)

	enc, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(enc)
	assert.Error(t, err)
}
