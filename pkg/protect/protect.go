// Package protect provides the two symmetric primitives sponsorship tokens are
// built on: a purpose-scoped data protector held by the cloud service, and a
// cipher keyed by an organization's installation API key.
package protect

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a protector master key.
const KeySize = 32

// installationInfo scopes keys derived from installation API keys.
const installationInfo = "organization-installation"

var (
	// ErrMalformed is returned when a protected value cannot be decoded.
	ErrMalformed = errors.New("protected value is malformed")
	// ErrUnprotect is returned when authentication of a protected value fails.
	ErrUnprotect = errors.New("protected value failed authentication")
)

var encoding = base64.RawURLEncoding.Strict()

// DataProtector seals values with AES-256-GCM under a key derived for one purpose.
type DataProtector struct {
	aead cipher.AEAD
}

// NewDataProtector derives a purpose-specific key from masterKey.
func NewDataProtector(masterKey []byte, purpose string) (*DataProtector, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("protector key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	if purpose == "" {
		return nil, fmt.Errorf("protector purpose required")
	}
	key, err := derive(masterKey, purpose, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &DataProtector{aead: aead}, nil
}

// Protect encrypts plaintext and returns a URL-safe string.
func (p *DataProtector) Protect(plaintext string) (string, error) {
	return seal(p.aead, plaintext)
}

// Unprotect reverses Protect.
func (p *DataProtector) Unprotect(protected string) (string, error) {
	return open(p.aead, protected)
}

// InstallationCipher encrypts with keys derived from installation API keys.
// It holds no key material itself.
type InstallationCipher struct{}

// Encrypt seals plaintext under apiKey.
func (InstallationCipher) Encrypt(plaintext, apiKey string) (string, error) {
	aead, err := installationAEAD(apiKey)
	if err != nil {
		return "", err
	}
	return seal(aead, plaintext)
}

// Decrypt opens a value sealed by Encrypt under the same apiKey.
func (InstallationCipher) Decrypt(ciphertext, apiKey string) (string, error) {
	aead, err := installationAEAD(apiKey)
	if err != nil {
		return "", err
	}
	return open(aead, ciphertext)
}

// GenerateKey returns a random master key, base64 encoded for configuration.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeKey parses a key produced by GenerateKey.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func installationAEAD(apiKey string) (cipher.AEAD, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("installation api key required")
	}
	key, err := derive([]byte(apiKey), installationInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("new chacha20poly1305: %w", err)
	}
	return aead, nil
}

func derive(secret []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func seal(aead cipher.AEAD, plaintext string) (string, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	// nonce || ciphertext
	payload := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encoding.EncodeToString(payload), nil
}

func open(aead cipher.AEAD, sealed string) (string, error) {
	payload, err := encoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	nonceSize := aead.NonceSize()
	if len(payload) < nonceSize+aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrMalformed)
	}
	plaintext, err := aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", ErrUnprotect
	}
	return string(plaintext), nil
}
