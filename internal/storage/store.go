package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tvlink-server/tvlink-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// CredentialStore 是会话编排器消费的凭据存储契约。
// 每个地址至多一条记录；Upsert 刷新 last_used 并复位 valid，
// Invalidate 保留密钥备查但使其不可用于静默重认证。
type CredentialStore interface {
	GetCredential(ctx context.Context, address string) (*models.Credential, error)
	UpsertCredential(ctx context.Context, address, clientKey string, mode models.TransportMode, displayName string) error
	InvalidateCredential(ctx context.Context, address string) error
	DeleteCredential(ctx context.Context, address string) error
	// MostRecentValidCredential returns the newest valid record by
	// last-used time, or ErrNotFound.
	MostRecentValidCredential(ctx context.Context) (*models.Credential, error)
	ListCredentials(ctx context.Context) ([]*models.Credential, error)
}

// Store defines the full storage interface
type Store interface {
	CredentialStore

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CountUsers(ctx context.Context) (int64, error)

	Close() error
}
