package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNew(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, uint32(1), v.CurrentVersion())
	assert.Equal(t, []uint32{1}, v.KeyVersions())
}

func TestNew_InvalidMasterKeySize(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "too short", size: 16},
		{name: "too long", size: 64},
		{name: "off by one", size: 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(make([]byte, tt.size))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMasterKey))
		})
	}
}

func TestVault_EncryptDecrypt_RoundTrip(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	creds := map[string]string{
		"api_key":    "sk_test_abc123",
		"api_secret": "whsec_xyz789",
	}

	blob, err := v.Encrypt(creds)
	require.NoError(t, err)

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestVault_Encrypt_EmptyMap(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]string{})
	require.NoError(t, err)

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestVault_Encrypt_DistinctBlobs verifies that encrypting the same map
// twice produces different blobs, since each call draws a fresh nonce.
func TestVault_Encrypt_DistinctBlobs(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	creds := map[string]string{"api_key": "sk_test_abc123"}

	first, err := v.Encrypt(creds)
	require.NoError(t, err)
	second, err := v.Encrypt(creds)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second))

	// Both still decrypt to the same map.
	gotFirst, err := v.Decrypt(first)
	require.NoError(t, err)
	gotSecond, err := v.Decrypt(second)
	require.NoError(t, err)
	assert.Equal(t, gotFirst, gotSecond)
}

func TestVault_Encrypt_BlobLayout(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]string{"api_key": "value"})
	require.NoError(t, err)

	require.Greater(t, len(blob), headerLen)
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(blob[:versionLen]))
}

// TestVault_Decrypt_Corruption flips one bit at every position of the
// blob and verifies that decryption always fails authentication rather
// than returning wrong plaintext.
func TestVault_Decrypt_Corruption(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]string{"api_key": "sk_test_abc123"})
	require.NoError(t, err)

	for i := range blob {
		corrupted := make([]byte, len(blob))
		copy(corrupted, blob)
		corrupted[i] ^= 0x01

		_, err := v.Decrypt(corrupted)
		assert.Error(t, err, "bit flip at offset %d must not decrypt", i)
	}
}

func TestVault_Decrypt_TruncatedBlob(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	for _, size := range []int{0, 1, versionLen, headerLen - 1} {
		_, err := v.Decrypt(make([]byte, size))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedBlob), "size %d", size)
	}
}

func TestVault_Decrypt_UnknownVersion(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	blob, err := v.Encrypt(map[string]string{"api_key": "value"})
	require.NoError(t, err)

	binary.BigEndian.PutUint32(blob[:versionLen], 42)

	_, err = v.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyVersionUnknown))
}

func TestVault_Decrypt_WrongMasterKey(t *testing.T) {
	first, err := New(testMasterKey(t))
	require.NoError(t, err)
	second, err := New(testMasterKey(t))
	require.NoError(t, err)

	blob, err := first.Encrypt(map[string]string{"api_key": "value"})
	require.NoError(t, err)

	_, err = second.Decrypt(blob)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVault_Rotate(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	// Blob sealed under version 1.
	oldBlob, err := v.Encrypt(map[string]string{"api_key": "old"})
	require.NoError(t, err)

	newVersion, err := v.Rotate()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), newVersion)
	assert.Equal(t, uint32(2), v.CurrentVersion())
	assert.Equal(t, []uint32{1, 2}, v.KeyVersions())

	// Old blob still decrypts under the retained version-1 key.
	got, err := v.Decrypt(oldBlob)
	require.NoError(t, err)
	assert.Equal(t, "old", got["api_key"])

	// New encryptions carry the new version.
	newBlob, err := v.Encrypt(map[string]string{"api_key": "new"})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(newBlob[:versionLen]))

	got, err = v.Decrypt(newBlob)
	require.NoError(t, err)
	assert.Equal(t, "new", got["api_key"])
}

func TestVault_CleanupOldKeys(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	v1Blob, err := v.Encrypt(map[string]string{"api_key": "v1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := v.Rotate()
		require.NoError(t, err)
	}
	require.Equal(t, []uint32{1, 2, 3, 4}, v.KeyVersions())

	removed := v.CleanupOldKeys(2)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []uint32{3, 4}, v.KeyVersions())

	// The version-1 blob is now unreadable.
	_, err = v.Decrypt(v1Blob)
	assert.ErrorIs(t, err, ErrKeyVersionUnknown)
}

func TestVault_CleanupOldKeys_KeepsCurrent(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	removed := v.CleanupOldKeys(0)
	assert.Zero(t, removed)
	assert.Equal(t, []uint32{1}, v.KeyVersions())
	assert.Equal(t, uint32(1), v.CurrentVersion())
}

func TestVault_CleanupOldKeys_NothingToRemove(t *testing.T) {
	v, err := New(testMasterKey(t))
	require.NoError(t, err)

	_, err = v.Rotate()
	require.NoError(t, err)

	removed := v.CleanupOldKeys(5)
	assert.Zero(t, removed)
	assert.Equal(t, []uint32{1, 2}, v.KeyVersions())
}

// TestVault_SameMasterKey_SameDerivedKey verifies deterministic key
// derivation: a vault rebuilt from the same master key reads blobs the
// previous instance wrote.
func TestVault_SameMasterKey_SameDerivedKey(t *testing.T) {
	masterKey := testMasterKey(t)

	first, err := New(masterKey)
	require.NoError(t, err)
	blob, err := first.Encrypt(map[string]string{"api_key": "persisted"})
	require.NoError(t, err)

	second, err := New(masterKey)
	require.NoError(t, err)
	got, err := second.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got["api_key"])
}
