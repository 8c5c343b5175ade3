// Package seed fills a database with organizations, members, post history and
// Open Graph templates for local development and end-to-end tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/opengraph"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TestPassword is the password of every seeded account.
const TestPassword = "password123"

// Seeder handles database seeding operations
type Seeder struct {
	db   *gorm.DB
	auth *auth.Service
	og   *opengraph.Service
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, authSvc *auth.Service, og *opengraph.Service) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db, auth: authSvc, og: og}
}

// SeedDev creates orgs organizations, each with a few members, a post
// history and a couple of templates.
func (s *Seeder) SeedDev(ctx context.Context, orgs int) error {
	for i := 0; i < orgs; i++ {
		resp, err := s.register(ctx, gofakeit.Email(), gofakeit.Name(), gofakeit.Company())
		if err != nil {
			return fmt.Errorf("failed to seed organization: %w", err)
		}
		org := resp.Organization

		members := []models.User{resp.User}
		for j := 0; j < 1+rand.Intn(4); j++ {
			u, err := s.addMember(ctx, org.ID, gofakeit.Email(), gofakeit.Name(), randomRole())
			if err != nil {
				return fmt.Errorf("failed to seed member: %w", err)
			}
			members = append(members, *u)
		}

		if err := s.seedPosts(ctx, org.ID, members, 10+rand.Intn(30)); err != nil {
			return fmt.Errorf("failed to seed posts: %w", err)
		}
		if err := s.seedTemplates(ctx, org.ID); err != nil {
			return fmt.Errorf("failed to seed templates: %w", err)
		}
		logger.Log.Info("Seeded organization",
			logger.WithOrgID(org.ID),
			zap.String("name", org.Name),
			zap.Int("members", len(members)),
		)
	}
	return nil
}

// SeedTest creates the fixed accounts used by end-to-end tests: alice owns
// "Acme" and bob is a member of it. It is idempotent.
func (s *Seeder) SeedTest(ctx context.Context) error {
	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", "alice@example.com").First(&existing).Error
	if err == nil {
		logger.Log.Info("Test accounts already exist")
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	resp, err := s.register(ctx, "alice@example.com", "Alice Smith", "Acme")
	if err != nil {
		return err
	}
	bob, err := s.addMember(ctx, resp.Organization.ID, "bob@example.com", "Bob Johnson", models.RoleMember)
	if err != nil {
		return err
	}
	if err := s.seedPosts(ctx, resp.Organization.ID, []models.User{resp.User, *bob}, 5); err != nil {
		return err
	}
	return s.seedTemplates(ctx, resp.Organization.ID)
}

// Clean removes every row the seeder can create
func (s *Seeder) Clean(ctx context.Context) error {
	// Delete in reverse order of dependencies
	tables := []string{
		"post_deliveries",
		"posts",
		"og_templates",
		"integration_configs",
		"invitations",
		"memberships",
		"organizations",
		"users",
	}
	for _, table := range tables {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clean %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) register(ctx context.Context, email, name, orgName string) (*auth.AuthResponse, error) {
	return s.auth.Register(ctx, auth.RegisterRequest{
		Email:       email,
		Password:    TestPassword,
		DisplayName: name,
		OrgName:     orgName,
	})
}

// addMember registers a user, which gives them an organization of their
// own, and adds them to orgID with role.
func (s *Seeder) addMember(ctx context.Context, orgID, email, name string, role models.Role) (*models.User, error) {
	resp, err := s.register(ctx, email, name, name+"'s workspace")
	if err != nil {
		return nil, err
	}
	m := models.Membership{OrgID: orgID, UserID: resp.User.ID, Role: role}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func randomRole() models.Role {
	if rand.Intn(4) == 0 {
		return models.RoleAdmin
	}
	return models.RoleMember
}

var seedPlatforms = []string{"facebook", "instagram", "linkedin", "webflow"}

// seedPosts writes historical posts with already settled deliveries. No
// provider is called.
func (s *Seeder) seedPosts(ctx context.Context, orgID string, authors []models.User, count int) error {
	since := time.Now().AddDate(0, -3, 0)
	for i := 0; i < count; i++ {
		created := gofakeit.DateRange(since, time.Now())
		platforms := pickPlatforms()

		post := models.Post{
			OrgID:     orgID,
			AuthorID:  authors[rand.Intn(len(authors))].ID,
			Title:     strings.TrimSuffix(gofakeit.HipsterSentence(), "."),
			Text:      gofakeit.HipsterSentence() + " " + gofakeit.HipsterSentence(),
			Platforms: platforms,
			CreatedAt: created,
		}
		if strings.Contains(strings.Join(platforms, ","), "instagram") {
			post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/1080/1080", gofakeit.Word())
		}

		failed := 0
		for _, p := range platforms {
			d := models.PostDelivery{Platform: p, CreatedAt: created}
			if rand.Intn(8) == 0 {
				d.Status = models.DeliveryFailed
				d.Step = "publish"
				d.ErrorCode = "UPSTREAM_ERROR"
				d.ErrorMessage = "the platform rejected the request"
				failed++
			} else {
				published := created.Add(time.Duration(1+rand.Intn(20)) * time.Second)
				d.Status = models.DeliveryPublished
				d.ExternalID = gofakeit.UUID()
				d.PublishedAt = &published
			}
			post.Deliveries = append(post.Deliveries, d)
		}
		switch {
		case failed == 0:
			post.Status = models.PostStatusPublished
		case failed == len(platforms):
			post.Status = models.PostStatusFailed
		default:
			post.Status = models.PostStatusPartial
		}

		if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
			return err
		}
	}
	return nil
}

func pickPlatforms() []string {
	shuffled := append([]string(nil), seedPlatforms...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:1+rand.Intn(len(shuffled))]
}

func (s *Seeder) seedTemplates(ctx context.Context, orgID string) error {
	templates := []opengraph.Template{
		{
			Name:       "Blog card",
			Background: "#0f172a",
			Elements: []opengraph.Element{
				{ID: "title", Kind: opengraph.KindText, X: 80, Y: 80, W: 1040, H: 300, Text: "{{title}}", Color: "#f8fafc", FontScale: 5},
				{ID: "author", Kind: opengraph.KindText, X: 80, Y: 480, W: 800, H: 60, Text: "{{author}}", Color: "#94a3b8", FontScale: 3},
				{ID: "band", Kind: opengraph.KindRect, X: 0, Y: 590, W: 1200, H: 40, Color: "#38bdf8"},
			},
		},
		{
			Name:       gofakeit.City() + " event",
			Background: "#fef3c7",
			Elements: []opengraph.Element{
				{ID: "headline", Kind: opengraph.KindText, X: 60, Y: 200, W: 1080, H: 200, Text: "{{headline}}", Color: "#78350f", FontScale: 6, Align: opengraph.AlignCenter},
			},
		},
	}
	for _, t := range templates {
		if _, err := s.og.Create(ctx, orgID, t); err != nil {
			return err
		}
	}
	return nil
}
