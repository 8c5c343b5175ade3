package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IntegrationConfig is the single configuration row an organization keeps per
// provider. Blob holds the JSON (optionally encrypted) provider configuration.
type IntegrationConfig struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	OrgID    string `gorm:"not null;size:36;uniqueIndex:idx_integration_org_provider" json:"org_id"`
	Provider string `gorm:"not null;size:32;uniqueIndex:idx_integration_org_provider" json:"provider"`
	Blob     string `gorm:"type:text;not null" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IntegrationConfig) TableName() string {
	return "integration_configs"
}

func (c *IntegrationConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
