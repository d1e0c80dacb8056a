package tokens

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "v1:"

// Sealer encrypts credential fields before durable backends write them.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// NopSealer stores values as-is. Used when no encryption key is configured.
type NopSealer struct{}

func (NopSealer) Seal(plaintext string) (string, error) { return plaintext, nil }
func (NopSealer) Open(sealed string) (string, error)    { return sealed, nil }

// AEADSealer seals values with XChaCha20-Poly1305 under a key derived from a passphrase.
type AEADSealer struct {
	aead cipher.AEAD
}

// NewSealer returns a NopSealer for an empty key, otherwise an AEADSealer.
func NewSealer(key string) (Sealer, error) {
	if strings.TrimSpace(key) == "" {
		return NopSealer{}, nil
	}
	derived := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(key), nil, []byte("go-token-custodian/token-sealing"))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return &AEADSealer{aead: aead}, nil
}

func (s *AEADSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values written before sealing was enabled (no prefix)
// are returned unchanged.
func (s *AEADSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("sealed value too short")
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

// SealRecord returns a copy of rec with credential fields sealed.
func SealRecord(s Sealer, rec Record) (Record, error) {
	var err error
	if rec.AccessToken, err = s.Seal(rec.AccessToken); err != nil {
		return Record{}, err
	}
	if rec.RefreshToken, err = s.Seal(rec.RefreshToken); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// OpenRecord reverses SealRecord in place.
func OpenRecord(s Sealer, rec *Record) error {
	var err error
	if rec.AccessToken, err = s.Open(rec.AccessToken); err != nil {
		return err
	}
	if rec.RefreshToken, err = s.Open(rec.RefreshToken); err != nil {
		return err
	}
	return nil
}
