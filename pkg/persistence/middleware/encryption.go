package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when the active key cannot decrypt a record,
	// so keys can be rotated without rewriting stored runs.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.RunStore
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts the run state and error with AES-GCM.
// ID, graph, status and timestamps stay readable so runs can still be listed.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.RunStore) ports.RunStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

type sealed struct {
	State domain.State `json:"state"`
	Error string       `json:"error,omitempty"`
}

func (m *encryptionMiddleware) Save(ctx context.Context, record domain.RunRecord) error {
	plainText, err := json.Marshal(sealed{State: record.State, Error: record.Error})
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt run: %w", err)
	}

	envelope := record
	envelope.Error = ""
	envelope.State = domain.State{
		Values: map[string]any{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (domain.RunRecord, error) {
	envelope, err := m.next.Load(ctx, runID)
	if err != nil {
		return domain.RunRecord{}, err
	}

	encoded, ok := envelope.State.Values[envelopeKey].(string)
	if !ok {
		// Fail secure: with encryption configured, plain records are not trusted.
		return domain.RunRecord{}, errors.New("run is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("failed to decrypt run: %w", err)
	}

	var s sealed
	if err := json.Unmarshal(plainText, &s); err != nil {
		return domain.RunRecord{}, fmt.Errorf("failed to unmarshal decrypted run: %w", err)
	}
	record := envelope
	record.State = s.State
	record.Error = s.Error
	return record, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *encryptionMiddleware) List(ctx context.Context, limit int) ([]string, error) {
	return m.next.List(ctx, limit)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
