package protect_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-platform/sponsorships/pkg/protect"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, protect.KeySize)
}

func TestDataProtector(t *testing.T) {
	p, err := protect.NewDataProtector(testKey(1), "purpose-a")
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		sealed, err := p.Protect("hello world")
		require.NoError(t, err)
		plain, err := p.Unprotect(sealed)
		require.NoError(t, err)
		assert.Equal(t, "hello world", plain)
	})

	t.Run("output is url safe", func(t *testing.T) {
		sealed, err := p.Protect("some payload with spaces")
		require.NoError(t, err)
		assert.NotContains(t, sealed, "+")
		assert.NotContains(t, sealed, "/")
		assert.NotContains(t, sealed, "=")
	})

	t.Run("different purpose cannot unprotect", func(t *testing.T) {
		other, err := protect.NewDataProtector(testKey(1), "purpose-b")
		require.NoError(t, err)
		sealed, err := p.Protect("secret")
		require.NoError(t, err)
		_, err = other.Unprotect(sealed)
		assert.ErrorIs(t, err, protect.ErrUnprotect)
	})

	t.Run("different key cannot unprotect", func(t *testing.T) {
		other, err := protect.NewDataProtector(testKey(2), "purpose-a")
		require.NoError(t, err)
		sealed, err := p.Protect("secret")
		require.NoError(t, err)
		_, err = other.Unprotect(sealed)
		assert.ErrorIs(t, err, protect.ErrUnprotect)
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		_, err := p.Unprotect("not base64 !!")
		assert.ErrorIs(t, err, protect.ErrMalformed)
		_, err = p.Unprotect("")
		assert.ErrorIs(t, err, protect.ErrMalformed)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := protect.NewDataProtector([]byte("short"), "purpose")
		assert.Error(t, err)
	})
}

func TestInstallationCipher(t *testing.T) {
	var c protect.InstallationCipher

	t.Run("round trip", func(t *testing.T) {
		sealed, err := c.Encrypt("payload", "api-key-1")
		require.NoError(t, err)
		plain, err := c.Decrypt(sealed, "api-key-1")
		require.NoError(t, err)
		assert.Equal(t, "payload", plain)
	})

	t.Run("wrong api key fails", func(t *testing.T) {
		sealed, err := c.Encrypt("payload", "api-key-1")
		require.NoError(t, err)
		_, err = c.Decrypt(sealed, "api-key-2")
		assert.ErrorIs(t, err, protect.ErrUnprotect)
	})

	t.Run("empty api key is rejected", func(t *testing.T) {
		_, err := c.Encrypt("payload", "")
		assert.Error(t, err)
		_, err = c.Decrypt("abc", "")
		assert.Error(t, err)
	})
}

func TestKeyEncoding(t *testing.T) {
	encoded, err := protect.GenerateKey()
	require.NoError(t, err)
	key, err := protect.DecodeKey(encoded)
	require.NoError(t, err)
	assert.Len(t, key, protect.KeySize)

	_, err = protect.DecodeKey("c2hvcnQ=")
	assert.Error(t, err)
}
