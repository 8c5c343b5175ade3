package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post status values.
const (
	PostStatusPending   = "pending"
	PostStatusPublished = "published"
	PostStatusPartial   = "partial"
	PostStatusFailed    = "failed"
)

// Delivery status values.
const (
	DeliveryPublished = "published"
	DeliveryFailed    = "failed"
)

// Post is content composed in the dashboard and sent to one or more platforms.
type Post struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	OrgID    string `gorm:"not null;size:36;index:idx_posts_org_created" json:"org_id"`
	AuthorID string `gorm:"not null;size:36" json:"author_id"`

	Title    string `json:"title,omitempty"`
	Text     string `gorm:"type:text" json:"text"`
	Link     string `json:"link,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`

	Platforms []string `gorm:"type:text;serializer:json" json:"platforms"`
	Status    string   `gorm:"size:16;not null;default:pending" json:"status"`

	Deliveries []PostDelivery `gorm:"foreignKey:PostID" json:"deliveries"`

	CreatedAt time.Time      `gorm:"index:idx_posts_org_created" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// PostDelivery is the normalized outcome of publishing a post to one platform.
type PostDelivery struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	PostID       string     `gorm:"not null;size:36;index" json:"post_id"`
	Platform     string     `gorm:"not null;size:32" json:"platform"`
	Status       string     `gorm:"not null;size:16" json:"status"`
	ExternalID   string     `json:"external_id,omitempty"`
	URL          string     `json:"url,omitempty"`
	Step         string     `json:"step,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (d *PostDelivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// OGTemplate stores an Open Graph image template. Definition is the JSON
// encoded canvas (size, background and elements).
type OGTemplate struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	OrgID      string `gorm:"not null;size:36;index" json:"org_id"`
	Name       string `gorm:"not null" json:"name"`
	Definition string `gorm:"type:text;not null" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OGTemplate) TableName() string {
	return "og_templates"
}

func (t *OGTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// All returns every model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Organization{},
		&Membership{},
		&Invitation{},
		&IntegrationConfig{},
		&Post{},
		&PostDelivery{},
		&OGTemplate{},
	}
}
