// Package crypto implements field-level encryption for sensitive text
// columns. Values are sealed with AES-256-GCM under a per-field key derived
// from a process-wide master key, and persisted as a self-describing envelope
// blob so each field can be decrypted independently.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrIntegrity is returned when an envelope's ciphertext or tag fails
// authentication. Decryption fails closed: no partial plaintext is ever
// returned.
var ErrIntegrity = errors.New("field decryption failed integrity check")

// ErrNotEnvelope is returned when a stored value does not parse as an
// encryption envelope.
var ErrNotEnvelope = errors.New("value is not an encryption envelope")

const (
	envelopeVersion = 1
	saltSize        = 16
	gcmTagSize      = 16
	keySize         = 32

	// hkdfInfo binds derived keys to this usage so the same master key could
	// serve other derivations without overlap.
	hkdfInfo = "qbank/field-encryption/v1"
)

// KeyProvider supplies the current 32-byte master key. Injecting the provider
// rather than the key itself keeps rotation a deployment concern.
type KeyProvider interface {
	Key() ([]byte, error)
}

// StaticKeyProvider wraps key material already resolved at startup.
type StaticKeyProvider []byte

// Key returns the wrapped key material.
func (p StaticKeyProvider) Key() ([]byte, error) {
	if len(p) != keySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keySize, len(p))
	}
	return p, nil
}

// Envelope is the at-rest wire format for one encrypted field. All byte
// fields serialize as base64 inside a single JSON text blob.
type Envelope struct {
	Version    int    `json:"v"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ct"`
	Tag        []byte `json:"tag"`
	Salt       []byte `json:"salt"`
}

// Codec encrypts and decrypts individual text fields.
type Codec struct {
	provider KeyProvider
}

// NewCodec creates a codec backed by the given key provider. The key is
// checked eagerly so misconfiguration surfaces at startup, not mid-import.
func NewCodec(provider KeyProvider) (*Codec, error) {
	if _, err := provider.Key(); err != nil {
		return nil, fmt.Errorf("key provider: %w", err)
	}
	return &Codec{provider: provider}, nil
}

// Encrypt seals plaintext into a serialized envelope. Every call draws a
// fresh random salt and IV, so identical plaintexts never produce identical
// envelopes.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	aead, err := c.fieldCipher(salt)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate IV: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - gcmTagSize

	env := Envelope{
		Version:    envelopeVersion,
		IV:         iv,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
		Salt:       salt,
	}

	blob, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("serialize envelope: %w", err)
	}
	return string(blob), nil
}

// Decrypt opens a serialized envelope. Any tamper of ciphertext or tag yields
// ErrIntegrity.
func (c *Codec) Decrypt(blob string) (string, error) {
	env, err := parseEnvelope(blob)
	if err != nil {
		return "", err
	}

	aead, err := c.fieldCipher(env.Salt)
	if err != nil {
		return "", err
	}
	if len(env.IV) != aead.NonceSize() {
		return "", fmt.Errorf("%w: bad IV length %d", ErrIntegrity, len(env.IV))
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}

// IsEnvelope reports whether text structurally parses as an envelope. This is
// an advisory sniff for migration and backfill logic, never a security
// boundary.
func IsEnvelope(text string) bool {
	_, err := parseEnvelope(text)
	return err == nil
}

// fieldCipher derives the per-field AEAD from the master key and salt.
func (c *Codec) fieldCipher(salt []byte) (cipher.AEAD, error) {
	master, err := c.provider.Key()
	if err != nil {
		return nil, fmt.Errorf("key provider: %w", err)
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, master, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive field key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

func parseEnvelope(blob string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNotEnvelope, env.Version)
	}
	if len(env.IV) == 0 || len(env.Tag) == 0 || len(env.Salt) == 0 || env.Ciphertext == nil {
		return nil, fmt.Errorf("%w: missing fields", ErrNotEnvelope)
	}
	return &env, nil
}
