package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/pquerna/otp/totp"
	"github.com/zfogg/beacon/internal/models"
)

const otpIssuer = "Beacon"

var (
	ErrTOTPRequired   = errors.New("two-factor code required")
	ErrInvalidTOTP    = errors.New("invalid two-factor code")
	ErrTOTPNotSetUp   = errors.New("two-factor authentication not set up")
	ErrTOTPEnabled    = errors.New("two-factor authentication already enabled")
	ErrTOTPNotEnabled = errors.New("two-factor authentication not enabled")
)

// TOTPSetup is returned when a user starts enrolling an authenticator app.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// SetupTOTP generates and stores a new secret. It is not enforced until
// EnableTOTP confirms a code.
func (s *Service) SetupTOTP(ctx context.Context, user *models.User) (*TOTPSetup, error) {
	if user.TOTPEnabled {
		return nil, ErrTOTPEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	secret := key.Secret()
	if err := s.db.WithContext(ctx).Model(user).Update("totp_secret", secret).Error; err != nil {
		return nil, fmt.Errorf("failed to save TOTP secret: %w", err)
	}
	user.TOTPSecret = &secret

	return &TOTPSetup{Secret: secret, URL: key.URL()}, nil
}

// EnableTOTP turns on two-factor login after verifying a code.
func (s *Service) EnableTOTP(ctx context.Context, user *models.User, code string) error {
	if user.TOTPEnabled {
		return ErrTOTPEnabled
	}
	if user.TOTPSecret == nil {
		return ErrTOTPNotSetUp
	}
	if !s.validateTOTP(user, code) {
		return ErrInvalidTOTP
	}
	if err := s.db.WithContext(ctx).Model(user).Update("totp_enabled", true).Error; err != nil {
		return fmt.Errorf("failed to enable TOTP: %w", err)
	}
	user.TOTPEnabled = true
	return nil
}

// DisableTOTP turns off two-factor login after verifying a code.
func (s *Service) DisableTOTP(ctx context.Context, user *models.User, code string) error {
	if !user.TOTPEnabled {
		return ErrTOTPNotEnabled
	}
	if !s.validateTOTP(user, code) {
		return ErrInvalidTOTP
	}
	err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"totp_enabled": false,
		"totp_secret":  nil,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to disable TOTP: %w", err)
	}
	user.TOTPEnabled = false
	user.TOTPSecret = nil
	return nil
}

func (s *Service) validateTOTP(user *models.User, code string) bool {
	if user.TOTPSecret == nil {
		return false
	}
	valid, err := totp.ValidateCustom(code, *user.TOTPSecret, s.now(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return err == nil && valid
}
