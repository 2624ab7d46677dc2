// Package vault implements the encrypted credential vault: a versioned
// AES-256-GCM cipher over provider credential maps, with key rotation
// and pruning of retired key versions.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/gatewaylabs/unigw/internal/observability"
)

const (
	// versionLen is the length of the big-endian key version prefix.
	versionLen = 4

	// nonceLen is the AES-GCM nonce length.
	nonceLen = 12

	// headerLen is the minimum blob length before any ciphertext.
	headerLen = versionLen + nonceLen

	// keyLen is the AES-256 key length.
	keyLen = 32
)

// hkdfInfo separates the version-1 AEAD key from the raw master key, so
// the master key itself never touches ciphertext.
var hkdfInfo = []byte("unigw/credential-vault/v1")

// Vault encrypts and decrypts credential maps under a table of
// versioned keys. Reads take the read lock; Rotate and CleanupOldKeys
// take the write lock.
type Vault struct {
	logger observability.Logger

	mu      sync.RWMutex
	keys    map[uint32][]byte
	current uint32
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the vault logger.
func WithLogger(logger observability.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// New creates a vault from a 32-byte master key. The version-1 AEAD key
// is derived from the master key with HKDF-SHA256; construction fails
// fast on any other key length.
func New(masterKey []byte, opts ...Option) (*Vault, error) {
	if len(masterKey) != keyLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidMasterKey, len(masterKey))
	}

	derived := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, hkdfInfo), derived); err != nil {
		return nil, fmt.Errorf("failed to derive version-1 key: %w", err)
	}

	v := &Vault{
		logger:  observability.NopLogger(),
		keys:    map[uint32][]byte{1: derived},
		current: 1,
	}

	for _, opt := range opts {
		opt(v)
	}

	vaultKeyVersions.Set(1)
	return v, nil
}

// Encrypt serializes the credential map deterministically, seals it
// with AES-256-GCM under the current key version, and prefixes the blob
// with the version and a fresh random nonce. Two calls with identical
// input produce byte-distinct blobs.
func (v *Vault) Encrypt(credentials map[string]string) ([]byte, error) {
	v.mu.RLock()
	version := v.current
	key := v.keys[version]
	v.mu.RUnlock()

	// encoding/json writes map keys in sorted order, which keeps the
	// serialization deterministic for identical inputs.
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		vaultOperationsTotal.WithLabelValues("encrypt", "error").Inc()
		return nil, fmt.Errorf("failed to serialize credentials: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		vaultOperationsTotal.WithLabelValues("encrypt", "error").Inc()
		return nil, err
	}

	blob := make([]byte, headerLen, headerLen+len(plaintext)+aead.Overhead())
	binary.BigEndian.PutUint32(blob[:versionLen], version)

	nonce := blob[versionLen:headerLen]
	if _, err := rand.Read(nonce); err != nil {
		vaultOperationsTotal.WithLabelValues("encrypt", "error").Inc()
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob = aead.Seal(blob, nonce, plaintext, nil)

	vaultOperationsTotal.WithLabelValues("encrypt", "success").Inc()
	return blob, nil
}

// Decrypt parses the version prefix, opens the AEAD ciphertext, and
// returns the credential map. Any corruption fails authentication;
// wrong plaintext is never returned.
func (v *Vault) Decrypt(blob []byte) (map[string]string, error) {
	if len(blob) < headerLen {
		vaultOperationsTotal.WithLabelValues("decrypt", "malformed").Inc()
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrMalformedBlob, len(blob), headerLen)
	}

	version := binary.BigEndian.Uint32(blob[:versionLen])

	v.mu.RLock()
	key, ok := v.keys[version]
	v.mu.RUnlock()
	if !ok {
		vaultOperationsTotal.WithLabelValues("decrypt", "unknown_version").Inc()
		return nil, fmt.Errorf("%w: version %d", ErrKeyVersionUnknown, version)
	}

	aead, err := newAEAD(key)
	if err != nil {
		vaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return nil, err
	}

	nonce := blob[versionLen:headerLen]
	plaintext, err := aead.Open(nil, nonce, blob[headerLen:], nil)
	if err != nil {
		vaultOperationsTotal.WithLabelValues("decrypt", "auth_failed").Inc()
		// The cipher error is intentionally not wrapped: the caller
		// learns only that the blob is unreadable.
		return nil, ErrAuthenticationFailed
	}

	var credentials map[string]string
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		vaultOperationsTotal.WithLabelValues("decrypt", "error").Inc()
		return nil, fmt.Errorf("failed to deserialize credentials: %w", err)
	}

	vaultOperationsTotal.WithLabelValues("decrypt", "success").Inc()
	return credentials, nil
}

// Rotate generates a fresh random 256-bit key, appends it to the key
// table, and advances the current version. Older keys stay available
// for decrypting previously issued blobs.
func (v *Vault) Rotate() (uint32, error) {
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		vaultOperationsTotal.WithLabelValues("rotate", "error").Inc()
		return 0, fmt.Errorf("failed to generate rotation key: %w", err)
	}

	v.mu.Lock()
	v.current++
	newVersion := v.current
	v.keys[newVersion] = key
	total := len(v.keys)
	v.mu.Unlock()

	vaultOperationsTotal.WithLabelValues("rotate", "success").Inc()
	vaultKeyVersions.Set(float64(total))

	v.logger.Info("encryption key rotated",
		observability.Uint32("version", newVersion),
		observability.Int("key_versions", total),
	)

	return newVersion, nil
}

// CleanupOldKeys prunes all but the keep most recent key versions and
// returns how many were removed. The current version is never removed.
func (v *Vault) CleanupOldKeys(keep int) int {
	if keep < 1 {
		keep = 1
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.keys) <= keep {
		return 0
	}

	versions := make([]uint32, 0, len(v.keys))
	for version := range v.keys {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	removed := 0
	for _, version := range versions[keep:] {
		if version == v.current {
			continue
		}
		delete(v.keys, version)
		removed++
	}

	vaultKeyVersions.Set(float64(len(v.keys)))

	if removed > 0 {
		v.logger.Info("old encryption keys pruned",
			observability.Int("removed", removed),
			observability.Int("key_versions", len(v.keys)),
		)
	}

	return removed
}

// CurrentVersion returns the key version used for new encryptions.
func (v *Vault) CurrentVersion() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// KeyVersions returns the versions currently held, ascending.
func (v *Vault) KeyVersions() []uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	versions := make([]uint32, 0, len(v.keys))
	for version := range v.keys {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}
	return aead, nil
}
