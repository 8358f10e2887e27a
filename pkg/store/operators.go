package store

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
)

// Operator is a dashboard or integration credential. Only the argon2id
// hash of the key is stored; the plaintext token is shown once at
// creation.
type Operator struct {
	ID        string    `gorm:"primaryKey;column:id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:idx_operators_name"`
	KeyHash   []byte    `gorm:"column:key_hash;not null"`
	KeySalt   []byte    `gorm:"column:key_salt;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Operator) TableName() string { return "operators" }

// CreateOperator registers a named credential and returns the one-time
// token, formatted as "<operator id>.<secret>".
func (s *Store) CreateOperator(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("store: operator name must not be empty")
	}

	secretBytes := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, secretBytes); err != nil {
		return "", fmt.Errorf("store: generating operator secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("store: generating salt: %w", err)
	}

	op := &Operator{
		ID:        uuid.NewString(),
		Name:      name,
		KeyHash:   hashKey(secret, salt),
		KeySalt:   salt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(op).Error; err != nil {
		return "", fmt.Errorf("store: creating operator %q: %w", name, err)
	}

	return op.ID + "." + secret, nil
}

// VerifyOperatorToken checks a presented token and returns the matching
// operator, or ErrNotFound when the token is unknown or wrong.
func (s *Store) VerifyOperatorToken(ctx context.Context, token string) (*Operator, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrNotFound
	}

	var op Operator
	err := s.db.WithContext(ctx).First(&op, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare(hashKey(secret, op.KeySalt), op.KeyHash) != 1 {
		return nil, ErrNotFound
	}
	return &op, nil
}

func (s *Store) DeleteOperator(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&Operator{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: operator %q: %w", name, ErrNotFound)
	}
	return nil
}

func hashKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, 32)
}
