package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

var (
	// ErrInvalidRegistration indicates a signup with missing fields.
	ErrInvalidRegistration = errors.New("users: name, email and password are required")
	// ErrNotFound indicates the requested user does not exist.
	ErrNotFound = errors.New("users: not found")
)

// ServiceConfig describes the dependencies for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// IDProvider issues unique identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// Service manages account registration and lookups.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider}, nil
}

// Register creates an account with a bcrypt-hashed password and the user role.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return User{}, ErrInvalidRegistration
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: generate id: %w", err)
	}

	account := User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         "user",
		CreatedAt:    s.clock().UTC(),
		UpdatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return User{}, err
	}
	return account, nil
}

// GetByID loads a single account.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	var account User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return account, nil
}

// Summaries resolves a set of user ids to display summaries. Unknown ids are
// simply absent from the result.
func (s *Service) Summaries(ctx context.Context, ids []string) (map[string]Summary, error) {
	out := make(map[string]Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var accounts []User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&accounts).Error; err != nil {
		return nil, err
	}
	for _, account := range accounts {
		out[account.ID] = account.Summary()
	}
	return out, nil
}
