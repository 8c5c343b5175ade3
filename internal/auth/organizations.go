package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/email"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const invitationTTL = 7 * 24 * time.Hour

var (
	ErrNotMember          = errors.New("not a member of this organization")
	ErrForbidden          = errors.New("insufficient role")
	ErrInvalidRole        = errors.New("invalid role")
	ErrAlreadyMember      = errors.New("user is already a member")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationUsed     = errors.New("invitation already accepted")
	ErrInvitationMismatch = errors.New("invitation was sent to a different email")
)

// OrganizationSummary is an organization with the caller's role in it.
type OrganizationSummary struct {
	models.Organization
	Role models.Role `json:"role"`
}

func createOrganization(tx *gorm.DB, ownerID, name string) (*models.Organization, error) {
	slug, err := uniqueSlug(tx, name)
	if err != nil {
		return nil, err
	}
	org := &models.Organization{
		Name:    strings.TrimSpace(name),
		Slug:    slug,
		OwnerID: ownerID,
	}
	if err := tx.Create(org).Error; err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	membership := models.Membership{OrgID: org.ID, UserID: ownerID, Role: models.RoleOwner}
	if err := tx.Create(&membership).Error; err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}
	return org, nil
}

// CreateOrganization creates an organization owned by user.
func (s *Service) CreateOrganization(ctx context.Context, user *models.User, name string) (*models.Organization, error) {
	var org *models.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = createOrganization(tx, user.ID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Organization created", logger.WithUserID(user.ID), logger.WithOrgID(org.ID))
	return org, nil
}

// ListOrganizations returns the organizations the user belongs to.
func (s *Service) ListOrganizations(ctx context.Context, userID string) ([]OrganizationSummary, error) {
	var memberships []models.Membership
	err := s.db.WithContext(ctx).
		Preload("Organization").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	out := make([]OrganizationSummary, 0, len(memberships))
	for _, m := range memberships {
		if m.Organization.ID == "" {
			continue // soft-deleted organization
		}
		out = append(out, OrganizationSummary{Organization: m.Organization, Role: m.Role})
	}
	return out, nil
}

// Membership returns the user's membership in orgID or ErrNotMember.
func (s *Service) Membership(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	var m models.Membership
	err := s.db.WithContext(ctx).
		Preload("Organization").
		Where("org_id = ? AND user_id = ?", orgID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if m.Organization.ID == "" {
		return nil, ErrNotMember
	}
	return &m, nil
}

// MemberSummary is a member as listed in organization settings.
type MemberSummary struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
	JoinedAt    time.Time   `json:"joined_at"`
}

// ListMembers returns the members of an organization.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]MemberSummary, error) {
	var memberships []models.Membership
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	out := make([]MemberSummary, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, MemberSummary{
			UserID:      m.UserID,
			Email:       m.User.Email,
			DisplayName: m.User.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.CreatedAt,
		})
	}
	return out, nil
}

func newInvitationToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// InviteMember stores an invitation and emails its accept link. Only owners
// and admins may invite; nobody can be invited as owner. A failed email is
// logged and the invitation is still returned.
func (s *Service) InviteMember(ctx context.Context, inviter *models.Membership, inviterName, emailAddr string, role models.Role) (*models.Invitation, error) {
	if !inviter.Role.CanManage() {
		return nil, ErrForbidden
	}
	if !role.Valid() || role == models.RoleOwner {
		return nil, ErrInvalidRole
	}
	emailAddr = normalizeEmail(emailAddr)

	var existing int64
	err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.org_id = ? AND LOWER(users.email) = ?", inviter.OrgID, emailAddr).
		Count(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if existing > 0 {
		return nil, ErrAlreadyMember
	}

	token, err := newInvitationToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &models.Invitation{
		OrgID:     inviter.OrgID,
		Email:     emailAddr,
		Role:      role,
		Token:     token,
		InvitedBy: inviter.UserID,
		ExpiresAt: s.now().Add(invitationTTL),
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	if s.mailer != nil {
		err := s.mailer.SendInvitation(ctx, email.Invitation{
			To:          emailAddr,
			OrgName:     inviter.Organization.Name,
			InviterName: inviterName,
			Role:        string(role),
			Token:       token,
			ExpiresAt:   inv.ExpiresAt,
		})
		if err != nil {
			logger.Log.Warn("Failed to send invitation email",
				logger.WithOrgID(inviter.OrgID),
				zap.String("invitation_id", inv.ID),
				zap.Error(err),
			)
		}
	}

	return inv, nil
}

// AcceptInvitation adds the user to the invitation's organization.
func (s *Service) AcceptInvitation(ctx context.Context, user *models.User, token string) (*models.Membership, error) {
	var membership models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invitation
		err := tx.Where("token = ?", token).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationNotFound
		} else if err != nil {
			return err
		}

		switch {
		case inv.AcceptedAt != nil:
			return ErrInvitationUsed
		case !s.now().Before(inv.ExpiresAt):
			return ErrInvitationExpired
		case normalizeEmail(user.Email) != inv.Email:
			return ErrInvitationMismatch
		}

		var count int64
		if err := tx.Model(&models.Membership{}).Where("org_id = ? AND user_id = ?", inv.OrgID, user.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMember
		}

		membership = models.Membership{OrgID: inv.OrgID, UserID: user.ID, Role: inv.Role}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		now := s.now()
		return tx.Model(&inv).Update("accepted_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Invitation accepted", logger.WithUserID(user.ID), logger.WithOrgID(membership.OrgID))
	return &membership, nil
}
