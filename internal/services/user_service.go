package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	"github.com/mwhitfield/ledgerline/pkg/crypto"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/metrics"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrAccountLocked signals too many failed login attempts.
	ErrAccountLocked = apperrors.New("ACCOUNT_LOCKED", "Account is temporarily locked", http.StatusForbidden)
)

const (
	defaultMaxFailedAttempts = 5
	defaultLockoutDuration   = 15 * time.Minute
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	IsAdmin   bool
}

// UpdateUserInput enumerates mutable user attributes.
type UpdateUserInput struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// UserService manages the user lifecycle and credential verification.
type UserService struct {
	db    *gorm.DB
	audit *AuditService

	maxFailedAttempts int
	lockoutDuration   time.Duration
}

// UserOption customises a UserService.
type UserOption func(*UserService)

// WithLockoutPolicy overrides how many failed attempts trigger a lockout and
// for how long. Non-positive values keep the defaults.
func WithLockoutPolicy(threshold int, duration time.Duration) UserOption {
	return func(s *UserService) {
		if threshold > 0 {
			s.maxFailedAttempts = threshold
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

// NewUserService constructs a UserService. The audit service is optional.
func NewUserService(db *gorm.DB, audit *AuditService, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: database is required")
	}

	svc := &UserService{
		db:                db,
		audit:             audit,
		maxFailedAttempts: defaultMaxFailedAttempts,
		lockoutDuration:   defaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create provisions a new user with a hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsAdmin:   input.IsAdmin,
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("username or email already exists")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.create",
		Resource: "user",
		EntityID: user.ID,
		Result:   "success",
	})
	return user, nil
}

// Authenticate verifies credentials and maintains the failed-attempt
// lockout counters. The identifier may be a username or an email address.
func (s *UserService) Authenticate(ctx context.Context, identifier, password, ip string) (*models.User, error) {
	ctx = ensureContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	now := time.Now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.auditLogin(ctx, user.ID, "failure", "locked")
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.auditLogin(ctx, user.ID, "failure", "inactive")
		return nil, apperrors.ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(user.Password, password) {
		updates := map[string]any{"failed_attempts": user.FailedAttempts + 1}
		if user.FailedAttempts+1 >= s.maxFailedAttempts {
			lockedUntil := now.Add(s.lockoutDuration)
			updates["locked_until"] = lockedUntil
		}
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("user service: record failed attempt: %w", err)
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.auditLogin(ctx, user.ID, "failure", "bad_password")
		return nil, apperrors.ErrInvalidCredentials
	}

	updates := map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   strings.TrimSpace(ip),
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(ip)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.auditLogin(ctx, user.ID, "success", "")
	return &user, nil
}

// GetByID loads one user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// Update applies a partial update to a user's profile.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			return nil, apperrors.NewBadRequest("email cannot be empty")
		}
		updates["email"] = email
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("email already exists")
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// ChangePassword verifies the current password before storing a new hash.
// Changing the password also clears any lockout.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(next) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.Password, current) {
		return apperrors.ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(next)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	updates := map[string]any{
		"password":        hashed,
		"failed_attempts": 0,
		"locked_until":    nil,
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("user service: change password: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.password_change",
		Resource: "user",
		EntityID: id,
		Result:   "success",
	})
	return nil
}

// SetActive toggles whether a user may authenticate.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return fmt.Errorf("user service: set active: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "user.set_active",
		Resource: "user",
		EntityID: id,
		Result:   "success",
		Metadata: map[string]any{"active": active},
	})
	return nil
}

// List returns every user, newest first. Intended for admin surfaces.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}

// EnsureAdmin returns the existing admin user or bootstraps one with the
// supplied credentials. Used at startup so a fresh database is usable.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var admin models.User
	err := s.db.WithContext(ctx).Where("is_admin = ?", true).First(&admin).Error
	if err == nil {
		return &admin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user service: look up admin: %w", err)
	}

	return s.Create(ctx, CreateUserInput{
		Username: username,
		Email:    email,
		Password: password,
		IsAdmin:  true,
	})
}

func (s *UserService) auditLogin(ctx context.Context, userID, result, reason string) {
	entry := AuditEntry{
		Action:   "user.login",
		Resource: "user",
		EntityID: userID,
		Result:   result,
	}
	if reason != "" {
		entry.Metadata = map[string]any{"reason": reason}
	}
	recordAudit(s.audit, ctx, entry)
}
