package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

const minPasswordLen = 6

// UserHandle is returned by sign-up and sign-in.
type UserHandle struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Admin     bool      `json:"admin"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthService struct {
	users  port.UserStore
	tokens port.TokenIssuer
	hasher port.PasswordHasher
	now    func() time.Time
}

func NewAuthService(users port.UserStore, tokens port.TokenIssuer, hasher port.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) SignUp(ctx context.Context, email, password string) (*UserHandle, error) {
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, domain.Invalidf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, storeErr("create user", err)
	}
	return s.handle(&user)
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*UserHandle, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}
	return s.handle(user)
}

// Authenticate resolves a session token. The admin flag is read from the store on
// every call so out-of-band changes apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Principal{}, fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
	}
	if err != nil {
		return domain.Principal{}, storeErr("get user", err)
	}
	return domain.Principal{UserID: user.ID, Email: user.Email, Admin: user.Admin}, nil
}

func (s *AuthService) UserRole(ctx context.Context, userID string) (domain.Role, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.Role{}, storeErr("get user", err)
	}
	return domain.Role{Admin: user.Admin}, nil
}

func (s *AuthService) handle(user *domain.User) (*UserHandle, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &UserHandle{
		UserID:    user.ID,
		Email:     user.Email,
		Admin:     user.Admin,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
