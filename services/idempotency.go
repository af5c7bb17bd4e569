package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyManager issues the token that identifies one checkout attempt.
// Current is stable across calls until Rotate is invoked; rotation
// happens only after a terminal resolution (success, cancel, timeout),
// never mid-attempt.
type KeyManager struct {
	keys   repository.KeyRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewKeyManager creates a KeyManager. ttl bounds how long an abandoned
// attempt key lingers before Redis expires it.
func NewKeyManager(keys repository.KeyRepository, ttl time.Duration, logger *zap.Logger) *KeyManager {
	return &KeyManager{keys: keys, ttl: ttl, logger: logger}
}

// Current returns the active key for the user, minting one if absent.
func (m *KeyManager) Current(ctx context.Context, userID string) (string, error) {
	key, err := m.keys.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}
	return m.Rotate(ctx, userID)
}

// Rotate mints a fresh key and makes it current.
func (m *KeyManager) Rotate(ctx context.Context, userID string) (string, error) {
	key := GenerateToken()
	if err := m.keys.Set(ctx, userID, key, m.ttl); err != nil {
		return "", err
	}
	m.logger.Debug("Rotated checkout attempt key", zap.String("user_id", userID))
	return key, nil
}

// GenerateToken returns a high-entropy opaque token. Falls back to a
// uuid+timestamp token if the system entropy source fails.
func GenerateToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", uuid.New().String(), time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
