package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"realtyportal/internal/config"
	"realtyportal/internal/domain"
	"realtyportal/internal/metrics"
	"realtyportal/internal/util"
	apperrors "realtyportal/pkg/errors"
)

// Admin scopes
const (
	ScopeStaff = "staff"
	ScopeAdmin = "admin"
)

// AuthService handles back-office accounts
type AuthService struct {
	db  *gorm.DB
	cfg *config.AuthConfig
	log *logrus.Entry
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, cfg *config.AuthConfig) *AuthService {
	return &AuthService{db: db, cfg: cfg, log: logrus.WithField("component", "auth")}
}

// Authenticate validates an admin token and checks the user holds scope
func (s *AuthService) Authenticate(ctx context.Context, token, scope string) (*domain.User, error) {
	// Validate JWT token and extract claims
	claims, err := util.ValidateToken(s.cfg, token)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "invalid or expired token")
	}

	// Get user from database
	var user domain.User
	if err := s.db.WithContext(ctx).Where("username = ?", claims.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user not found")
		}
		return nil, apperrors.Upstream("failed to get user", err)
	}

	// Check if user is active
	if !user.IsActive {
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user account is inactive")
	}

	// Check scopes if required
	switch scope {
	case ScopeAdmin:
		if err := util.RequireAdmin(&user); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "insufficient permissions")
		}
	case ScopeStaff:
		if err := util.RequireStaff(&user); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "insufficient permissions")
		}
	}
	return &user, nil
}

// LoginResult is an issued access token
type LoginResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

// Login checks credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	// Trim whitespace from credentials
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	log := s.log.WithField("username", username)

	log.Info("Login attempt")

	var user domain.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		metrics.RecordAuthAttempt(false)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info("Login failed: user not found")
			return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "incorrect username or password")
		}
		log.WithError(err).Error("Login failed: database error")
		return nil, apperrors.Upstream("failed to get user", err)
	}

	if !util.CheckPasswordHash(password, user.HashedPassword) {
		log.Info("Login failed: invalid password")
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "incorrect username or password")
	}

	if !user.IsActive {
		log.Info("Login failed: user is inactive")
		metrics.RecordAuthAttempt(false)
		return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "user account is inactive")
	}

	// Update last login
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		log.WithError(err).Warn("Failed to record last login")
	}

	// Generate token
	token, err := util.GenerateToken(s.cfg, &user)
	if err != nil {
		log.WithError(err).Error("Login failed: token generation error")
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.WithFields(logrus.Fields{"user_id": user.ID, "admin": user.IsAdmin, "staff": user.IsStaff}).Info("Login successful")
	metrics.RecordAuthAttempt(true)

	return &LoginResult{AccessToken: token, TokenType: "bearer"}, nil
}

// CreateUserInput describes a new back-office account
type CreateUserInput struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"fullName"`
	IsActive *bool   `json:"isActive"`
	IsAdmin  bool    `json:"isAdmin"`
	IsStaff  bool    `json:"isStaff"`
}

// CreateUser creates a back-office account
func (s *AuthService) CreateUser(ctx context.Context, p CreateUserInput) (*domain.User, error) {
	// Trim and normalize inputs
	username := strings.TrimSpace(p.Username)
	email := strings.ToLower(strings.TrimSpace(p.Email))
	password := strings.TrimSpace(p.Password)
	log := s.log.WithFields(logrus.Fields{"username": username, "email": email})

	if len(username) < 3 {
		return nil, apperrors.Validation("username must be at least 3 characters")
	}
	if !emailRegex.MatchString(email) {
		return nil, apperrors.Validation("invalid email address")
	}
	if len(password) < 8 {
		return nil, apperrors.Validation("password must be at least 8 characters")
	}

	db := s.db.WithContext(ctx)

	// Check if username exists
	var existingUser domain.User
	if err := db.Where("username = ?", username).First(&existingUser).Error; err == nil {
		log.Info("CreateUser failed: username already exists")
		return nil, apperrors.Validation("username already registered")
	}

	// Check if email exists
	if err := db.Where("email = ?", email).First(&existingUser).Error; err == nil {
		log.Info("CreateUser failed: email already exists")
		return nil, apperrors.Validation("email already registered")
	}

	// Hash password
	hashedPassword, err := util.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.User{
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		IsActive:       p.IsActive == nil || *p.IsActive,
		IsAdmin:        p.IsAdmin,
		IsStaff:        p.IsStaff,
	}
	if p.FullName != nil {
		fullName := strings.TrimSpace(*p.FullName)
		user.FullName = &fullName
	}

	active := user.IsActive
	if err := db.Create(&user).Error; err != nil {
		log.WithError(err).Error("CreateUser failed: database error")
		return nil, apperrors.Upstream("failed to create user", err)
	}
	// A false IsActive is replaced by the column default on insert.
	if !active {
		if err := db.Model(&user).Update("is_active", false).Error; err != nil {
			return nil, apperrors.Upstream("failed to create user", err)
		}
		user.IsActive = false
	}

	log.WithField("user_id", user.ID).Info("User created")
	return &user, nil
}

// ListUsers returns back-office accounts, newest first
func (s *AuthService) ListUsers(ctx context.Context, skip, limit int) ([]domain.User, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")

	if skip > 0 {
		query = query.Offset(skip)
	}
	if limit > 0 && limit <= 100 {
		query = query.Limit(limit)
	} else {
		query = query.Limit(100)
	}

	var users []domain.User
	if err := query.Find(&users).Error; err != nil {
		return nil, apperrors.Upstream("failed to list users", err)
	}
	return users, nil
}

// GetUser returns one account
func (s *AuthService) GetUser(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.Upstream("failed to get user", err)
	}
	return &user, nil
}

// UpdateUserInput lists the account fields to change
type UpdateUserInput struct {
	Email    *string `json:"email"`
	FullName *string `json:"fullName"`
	Password *string `json:"password"`
	IsActive *bool   `json:"isActive"`
	IsAdmin  *bool   `json:"isAdmin"`
	IsStaff  *bool   `json:"isStaff"`
}

// UpdateUser changes an account
func (s *AuthService) UpdateUser(ctx context.Context, id uint, p UpdateUserInput) (*domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		if !emailRegex.MatchString(email) {
			return nil, apperrors.Validation("invalid email address")
		}
		// Check if email is taken by another user
		var existingUser domain.User
		if err := db.Where("email = ? AND id != ?", email, id).First(&existingUser).Error; err == nil {
			return nil, apperrors.Validation("email already taken")
		}
		user.Email = email
	}
	if p.FullName != nil {
		fullName := strings.TrimSpace(*p.FullName)
		user.FullName = &fullName
	}
	if p.IsActive != nil {
		user.IsActive = *p.IsActive
	}
	if p.IsAdmin != nil {
		user.IsAdmin = *p.IsAdmin
	}
	if p.IsStaff != nil {
		user.IsStaff = *p.IsStaff
	}
	if p.Password != nil {
		password := strings.TrimSpace(*p.Password)
		if len(password) < 8 {
			return nil, apperrors.Validation("password must be at least 8 characters")
		}
		hashedPassword, err := util.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.HashedPassword = hashedPassword
	}

	if err := db.Save(user).Error; err != nil {
		return nil, apperrors.Upstream("failed to update user", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("User updated")
	return user, nil
}

// DeleteUser removes an account. Users cannot delete themselves.
func (s *AuthService) DeleteUser(ctx context.Context, actor *domain.User, id uint) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}

	// Prevent self-deletion
	if user.ID == actor.ID {
		return apperrors.Validation("cannot delete your own account")
	}

	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return apperrors.Upstream("failed to delete user", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "by": actor.Username}).Info("User deleted")
	return nil
}
