package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/opengraph"
	"gorm.io/gorm"
)

type SeederTestSuite struct {
	suite.Suite
	db     *gorm.DB
	auth   *auth.Service
	seeder *Seeder
}

func (s *SeederTestSuite) SetupTest() {
	logger.InitializeForTest()
	db, err := database.OpenInMemory()
	s.Require().NoError(err)
	s.db = db
	s.auth = auth.NewService(db, []byte("test-secret"), time.Hour, nil)
	s.seeder = NewSeeder(db, s.auth, opengraph.NewService(db, nil, nil))
}

func TestSeederTestSuite(t *testing.T) {
	suite.Run(t, new(SeederTestSuite))
}

func (s *SeederTestSuite) count(model any) int64 {
	var n int64
	s.Require().NoError(s.db.Model(model).Count(&n).Error)
	return n
}

func (s *SeederTestSuite) TestSeedTestIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.seeder.SeedTest(ctx))
	s.Require().NoError(s.seeder.SeedTest(ctx))

	s.Equal(int64(2), s.count(&models.User{}))
	s.Equal(int64(5), s.count(&models.Post{}))
	s.Equal(int64(2), s.count(&models.OGTemplate{}))

	resp, err := s.auth.Login(ctx, auth.LoginRequest{Email: "bob@example.com", Password: TestPassword})
	s.Require().NoError(err)

	orgs, err := s.auth.ListOrganizations(ctx, resp.User.ID)
	s.Require().NoError(err)
	roles := map[string]models.Role{}
	for _, o := range orgs {
		roles[o.Name] = o.Role
	}
	s.Equal(models.RoleMember, roles["Acme"])
}

func (s *SeederTestSuite) TestSeedDevSettlesPostStatus() {
	ctx := context.Background()
	s.Require().NoError(s.seeder.SeedDev(ctx, 2))

	var posts []models.Post
	s.Require().NoError(s.db.Preload("Deliveries").Find(&posts).Error)
	s.NotEmpty(posts)
	for _, p := range posts {
		s.Len(p.Deliveries, len(p.Platforms))
		failed := 0
		for _, d := range p.Deliveries {
			if d.Status == models.DeliveryFailed {
				failed++
			}
		}
		switch p.Status {
		case models.PostStatusPublished:
			s.Zero(failed)
		case models.PostStatusFailed:
			s.Equal(len(p.Deliveries), failed)
		case models.PostStatusPartial:
			s.Positive(failed)
			s.Less(failed, len(p.Deliveries))
		default:
			s.Failf("unexpected status", "post %s has status %q", p.ID, p.Status)
		}
	}
}

func (s *SeederTestSuite) TestClean() {
	ctx := context.Background()
	s.Require().NoError(s.seeder.SeedTest(ctx))
	s.Require().NoError(s.seeder.Clean(ctx))

	s.Zero(s.count(&models.User{}))
	s.Zero(s.count(&models.Post{}))
	s.Zero(s.count(&models.PostDelivery{}))
	s.Zero(s.count(&models.Membership{}))
}
