package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/krishkalaria12/snap-forge/apperr"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/models"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

type Users interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

type Service struct {
	users  Users
	tokens *TokenService
	log    *logger.Logger
}

func NewService(users Users, tokens *TokenService, log *logger.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log.With("service", "AuthService")}
}

func (s *Service) Tokens() *TokenService { return s.tokens }

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}
	user := &models.User{
		Email:          in.Email,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		HashedPassword: hash,
		Role:           "user",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the credentials and returns the user with a fresh token.
// Unknown email and wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", apperr.InvalidLogin()
	}
	if err != nil {
		return nil, "", err
	}
	if !checkPasswordHash(password, user.HashedPassword) {
		return nil, "", apperr.InvalidLogin()
	}

	signed, _, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

// Authenticate resolves a raw token to an existing user.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	id, err := s.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized()
	}
	return user, err
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(hashed), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
