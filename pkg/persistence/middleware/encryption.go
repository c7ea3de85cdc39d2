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
	"strings"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
)

// envelopePrefix marks an encrypted message body.
const envelopePrefix = "itinera:aes-gcm:"

// ErrNotEncrypted is returned when a stored message carries no envelope.
var ErrNotEncrypted = errors.New("message is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals every message with AES-GCM.
// The stored message keeps its role, call id and tool name so the record stays routable;
// everything else moves into the sealed envelope.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	sealed := make([]domain.Message, len(msgs))
	for i, msg := range msgs {
		plainText, err := json.Marshal(msg)
		if err != nil {
			return domain.Checkpoint{}, fmt.Errorf("failed to marshal message: %w", err)
		}
		ciphertext, err := encrypt(plainText, m.config.ActiveKey)
		if err != nil {
			return domain.Checkpoint{}, fmt.Errorf("failed to encrypt message: %w", err)
		}
		sealed[i] = domain.Message{
			Role:     msg.Role,
			CallID:   msg.CallID,
			ToolName: msg.ToolName,
			Content:  envelopePrefix + base64.StdEncoding.EncodeToString(ciphertext),
		}
	}

	cp, err := m.next.Append(ctx, threadID, sealed...)
	if err != nil {
		return cp, err
	}
	cp.Messages = make([]domain.Message, len(msgs))
	for i, msg := range msgs {
		cp.Messages[i] = msg.Clone()
	}
	return cp, nil
}

func (m *encryptionMiddleware) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	state, err := m.next.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i, envelope := range state.Messages {
		msg, err := m.open(envelope)
		if err != nil {
			return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("message %d: %w", i, err))
		}
		state.Messages[i] = msg
	}
	return state, nil
}

func (m *encryptionMiddleware) ListThreads(ctx context.Context) ([]string, error) {
	return m.next.ListThreads(ctx)
}

func (m *encryptionMiddleware) open(envelope domain.Message) (domain.Message, error) {
	encoded, ok := strings.CutPrefix(envelope.Content, envelopePrefix)
	if !ok {
		return domain.Message{}, ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to decrypt message: %w", err)
	}
	var msg domain.Message
	if err := json.Unmarshal(plainText, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("failed to unmarshal decrypted message: %w", err)
	}
	return msg, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
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
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
