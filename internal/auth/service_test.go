package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/email"
	"github.com/zfogg/beacon/internal/models"
	"gorm.io/gorm"
)

type recordingMailer struct {
	sent []email.Invitation
	err  error
}

func (m *recordingMailer) SendInvitation(_ context.Context, inv email.Invitation) error {
	m.sent = append(m.sent, inv)
	return m.err
}

// AuthServiceTestSuite contains auth service tests
type AuthServiceTestSuite struct {
	suite.Suite
	db     *gorm.DB
	mailer *recordingMailer
	svc    *Service
	ctx    context.Context
}

func (s *AuthServiceTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(s.T(), err)

	s.db = db
	s.mailer = &recordingMailer{}
	s.svc = NewService(db, []byte("test_jwt_secret_key"), time.Hour, s.mailer)
	s.ctx = context.Background()
}

func (s *AuthServiceTestSuite) register(emailAddr, org string) *AuthResponse {
	resp, err := s.svc.Register(s.ctx, RegisterRequest{
		Email:       emailAddr,
		Password:    "correct horse battery",
		DisplayName: "Test User",
		OrgName:     org,
	})
	s.Require().NoError(err)
	return resp
}

func (s *AuthServiceTestSuite) TestRegisterCreatesOwnerMembership() {
	resp := s.register("Ada@Example.com", "Acme Marketing")

	s.Equal("ada@example.com", resp.User.Email)
	s.Require().NotNil(resp.Organization)
	s.Equal("acme-marketing", resp.Organization.Slug)
	s.NotEmpty(resp.Token)

	m, err := s.svc.Membership(s.ctx, resp.User.ID, resp.Organization.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleOwner, m.Role)
	s.Equal("Acme Marketing", m.Organization.Name)
}

func (s *AuthServiceTestSuite) TestRegisterDuplicateEmail() {
	s.register("ada@example.com", "Acme")

	_, err := s.svc.Register(s.ctx, RegisterRequest{
		Email: "ADA@example.com", Password: "another password", DisplayName: "Ada", OrgName: "Other",
	})
	s.ErrorIs(err, ErrUserExists)

	var orgs int64
	s.db.Model(&models.Organization{}).Count(&orgs)
	s.Equal(int64(1), orgs, "failed registration must not leave an organization behind")
}

func (s *AuthServiceTestSuite) TestSlugsAreUnique() {
	first := s.register("a@example.com", "Acme")
	second := s.register("b@example.com", "Acme")
	s.Equal("acme", first.Organization.Slug)
	s.Equal("acme-2", second.Organization.Slug)
}

func (s *AuthServiceTestSuite) TestLoginAndValidateToken() {
	s.register("ada@example.com", "Acme")

	_, err := s.svc.Login(s.ctx, LoginRequest{Email: "ada@example.com", Password: "wrong"})
	s.ErrorIs(err, ErrInvalidCredentials)

	_, err = s.svc.Login(s.ctx, LoginRequest{Email: "nobody@example.com", Password: "x"})
	s.ErrorIs(err, ErrInvalidCredentials)

	resp, err := s.svc.Login(s.ctx, LoginRequest{Email: "ADA@example.com", Password: "correct horse battery"})
	s.Require().NoError(err)

	user, err := s.svc.ValidateToken(s.ctx, resp.Token)
	s.Require().NoError(err)
	s.Equal("ada@example.com", user.Email)
	s.NotNil(user.LastActiveAt)
}

func (s *AuthServiceTestSuite) TestValidateTokenRejectsForeignAlgorithm() {
	resp := s.register("ada@example.com", "Acme")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": resp.User.ID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.svc.ValidateToken(s.ctx, unsigned)
	s.ErrorIs(err, ErrInvalidToken)

	other := NewService(s.db, []byte("different secret"), time.Hour, nil)
	_, err = other.ValidateToken(s.ctx, resp.Token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *AuthServiceTestSuite) TestValidateTokenExpired() {
	resp := s.register("ada@example.com", "Acme")
	s.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := s.svc.ValidateToken(s.ctx, resp.Token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *AuthServiceTestSuite) TestTOTPFlow() {
	resp := s.register("ada@example.com", "Acme")
	user := resp.User

	setup, err := s.svc.SetupTOTP(s.ctx, &user)
	s.Require().NoError(err)
	s.Contains(setup.URL, "otpauth://totp/Beacon:")

	s.ErrorIs(s.svc.EnableTOTP(s.ctx, &user, "000000"), ErrInvalidTOTP)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.svc.EnableTOTP(s.ctx, &user, code))

	_, err = s.svc.Login(s.ctx, LoginRequest{Email: "ada@example.com", Password: "correct horse battery"})
	s.ErrorIs(err, ErrTOTPRequired)

	_, err = s.svc.Login(s.ctx, LoginRequest{Email: "ada@example.com", Password: "correct horse battery", TOTPCode: "000000"})
	s.ErrorIs(err, ErrInvalidTOTP)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	s.Require().NoError(err)
	_, err = s.svc.Login(s.ctx, LoginRequest{Email: "ada@example.com", Password: "correct horse battery", TOTPCode: code})
	s.NoError(err)

	s.Require().NoError(s.svc.DisableTOTP(s.ctx, &user, code))
	s.False(user.TOTPEnabled)
}

func (s *AuthServiceTestSuite) TestInviteAndAccept() {
	owner := s.register("owner@example.com", "Acme")
	ownerMembership, err := s.svc.Membership(s.ctx, owner.User.ID, owner.Organization.ID)
	s.Require().NoError(err)

	inv, err := s.svc.InviteMember(s.ctx, ownerMembership, "Owner", "New@Example.com", models.RoleAdmin)
	s.Require().NoError(err)
	s.Require().Len(s.mailer.sent, 1)
	s.Equal("new@example.com", s.mailer.sent[0].To)
	s.Equal("Acme", s.mailer.sent[0].OrgName)

	invitee := s.register("new@example.com", "Own Org")
	m, err := s.svc.AcceptInvitation(s.ctx, &invitee.User, inv.Token)
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, m.Role)

	_, err = s.svc.AcceptInvitation(s.ctx, &invitee.User, inv.Token)
	s.ErrorIs(err, ErrInvitationUsed)

	orgs, err := s.svc.ListOrganizations(s.ctx, invitee.User.ID)
	s.Require().NoError(err)
	s.Len(orgs, 2)

	members, err := s.svc.ListMembers(s.ctx, owner.Organization.ID)
	s.Require().NoError(err)
	s.Len(members, 2)

	_, err = s.svc.InviteMember(s.ctx, ownerMembership, "Owner", "new@example.com", models.RoleMember)
	s.ErrorIs(err, ErrAlreadyMember)
}

func (s *AuthServiceTestSuite) TestInviteRules() {
	owner := s.register("owner@example.com", "Acme")
	m, err := s.svc.Membership(s.ctx, owner.User.ID, owner.Organization.ID)
	s.Require().NoError(err)

	_, err = s.svc.InviteMember(s.ctx, m, "Owner", "x@example.com", models.RoleOwner)
	s.ErrorIs(err, ErrInvalidRole)

	member := *m
	member.Role = models.RoleMember
	_, err = s.svc.InviteMember(s.ctx, &member, "Member", "x@example.com", models.RoleMember)
	s.ErrorIs(err, ErrForbidden)
}

func (s *AuthServiceTestSuite) TestInviteSurvivesEmailFailure() {
	s.mailer.err = errors.New("ses down")
	owner := s.register("owner@example.com", "Acme")
	m, err := s.svc.Membership(s.ctx, owner.User.ID, owner.Organization.ID)
	s.Require().NoError(err)

	inv, err := s.svc.InviteMember(s.ctx, m, "Owner", "x@example.com", models.RoleMember)
	s.Require().NoError(err)
	s.NotEmpty(inv.Token)
}

func (s *AuthServiceTestSuite) TestAcceptExpiredOrMismatched() {
	owner := s.register("owner@example.com", "Acme")
	m, err := s.svc.Membership(s.ctx, owner.User.ID, owner.Organization.ID)
	s.Require().NoError(err)
	inv, err := s.svc.InviteMember(s.ctx, m, "Owner", "x@example.com", models.RoleMember)
	s.Require().NoError(err)

	other := s.register("y@example.com", "Other")
	_, err = s.svc.AcceptInvitation(s.ctx, &other.User, inv.Token)
	s.ErrorIs(err, ErrInvitationMismatch)

	invitee := s.register("x@example.com", "Mine")
	s.svc.now = func() time.Time { return time.Now().Add(invitationTTL + time.Hour) }
	_, err = s.svc.AcceptInvitation(s.ctx, &invitee.User, inv.Token)
	s.ErrorIs(err, ErrInvitationExpired)

	_, err = s.svc.AcceptInvitation(s.ctx, &invitee.User, "nope")
	s.ErrorIs(err, ErrInvitationNotFound)
}

func (s *AuthServiceTestSuite) TestMembershipOfStranger() {
	owner := s.register("owner@example.com", "Acme")
	stranger := s.register("stranger@example.com", "Elsewhere")

	_, err := s.svc.Membership(s.ctx, stranger.User.ID, owner.Organization.ID)
	s.ErrorIs(err, ErrNotMember)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func TestAPIErrorMapping(t *testing.T) {
	assert.Equal(t, 409, APIError(ErrUserExists).Status)
	assert.Equal(t, 401, APIError(ErrTOTPRequired).Status)
	assert.Equal(t, "totp_required", APIError(ErrTOTPRequired).Details)
	assert.Equal(t, 403, APIError(ErrNotMember).Status)
	assert.Equal(t, 500, APIError(errors.New("boom")).Status)
}
