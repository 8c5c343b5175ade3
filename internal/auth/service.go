package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zfogg/beacon/internal/email"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Service handles dashboard accounts, sessions and organizations.
type Service struct {
	db        *gorm.DB
	jwtSecret []byte
	tokenTTL  time.Duration
	mailer    email.Sender
	now       func() time.Time
}

// NewService creates a new authentication service. mailer may be nil, in
// which case invitations are stored but not emailed.
func NewService(db *gorm.DB, jwtSecret []byte, tokenTTL time.Duration, mailer email.Sender) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		db:        db,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		mailer:    mailer,
		now:       time.Now,
	}
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Token        string               `json:"token"`
	User         models.User          `json:"user"`
	Organization *models.Organization `json:"organization,omitempty"`
	ExpiresAt    time.Time            `json:"expires_at"`
}

// RegisterRequest creates a user and their first organization.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=80"`
	OrgName     string `json:"organization_name" binding:"required,min=1,max=120"`
}

// LoginRequest represents a password login. TOTPCode is required once the
// user enabled two-factor authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the user, an organization and the owner membership in one
// transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	emailAddr := normalizeEmail(req.Email)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashedPasswordStr := string(hashedPassword)

	var user models.User
	var org *models.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("LOWER(email) = ?", emailAddr).Count(&count).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if count > 0 {
			return ErrUserExists
		}

		user = models.User{
			Email:        emailAddr,
			DisplayName:  strings.TrimSpace(req.DisplayName),
			PasswordHash: &hashedPasswordStr,
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		org, err = createOrganization(tx, user.ID, req.OrgName)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("User registered",
		logger.WithUserID(user.ID),
		logger.WithOrgID(org.ID),
	)

	resp, err := s.generateAuthResponse(&user)
	if err != nil {
		return nil, err
	}
	resp.Organization = org
	return resp, nil
}

// Login authenticates with email/password and, when enabled, a TOTP code.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", normalizeEmail(req.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		if req.TOTPCode == "" {
			return nil, ErrTOTPRequired
		}
		if !s.validateTOTP(&user, req.TOTPCode) {
			return nil, ErrInvalidTOTP
		}
	}

	now := s.now()
	user.LastActiveAt = &now
	if err := s.db.WithContext(ctx).Model(&user).Update("last_active_at", now).Error; err != nil {
		logger.WarnWithFields("Failed to update last_active_at", err)
	}

	return s.generateAuthResponse(&user)
}

// generateAuthResponse creates JWT token and auth response
func (s *Service) generateAuthResponse(user *models.User) (*AuthResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &AuthResponse{
		Token:     tokenString,
		User:      *user,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a session JWT and returns the current user.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

// FindUserByEmail finds user by email (case-insensitive)
func (s *Service) FindUserByEmail(ctx context.Context, emailAddr string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", normalizeEmail(emailAddr)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := util.Slugify(name)
	if base == "" {
		base = "org"
	}
	slug := base
	for i := 2; ; i++ {
		var count int64
		if err := tx.Unscoped().Model(&models.Organization{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
		if i > 100 {
			logger.Log.Warn("Slug collision limit reached", zap.String("slug", base))
			return "", fmt.Errorf("could not allocate slug for %q", name)
		}
	}
}
