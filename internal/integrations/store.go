package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotConnected is returned when an organization has no config for a provider.
	ErrNotConnected = errors.New("provider not connected")
	// ErrSettingNotEditable is returned for settings only the connect flow may write.
	ErrSettingNotEditable = errors.New("setting is not editable")
)

// Store reads and writes the per-organization provider configuration.
type Store interface {
	Load(ctx context.Context, orgID string, p Provider) (*ProviderConfig, error)
	Save(ctx context.Context, orgID string, p Provider, cfg ProviderConfig) error
	Merge(ctx context.Context, orgID string, p Provider, update ProviderConfig) (*ProviderConfig, error)
	UpdateSettings(ctx context.Context, orgID string, p Provider, settings map[string]string) (*ProviderConfig, error)
	Delete(ctx context.Context, orgID string, p Provider) error
	List(ctx context.Context, orgID string) (map[Provider]*ProviderConfig, error)
}

// GormStore is the database-backed Store.
type GormStore struct {
	db        *gorm.DB
	encryptor *Encryptor
	now       func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a store. encryptor may be nil.
func NewGormStore(db *gorm.DB, encryptor *Encryptor) *GormStore {
	return &GormStore{db: db, encryptor: encryptor, now: time.Now}
}

func (s *GormStore) encode(cfg ProviderConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal provider config: %w", err)
	}
	return s.encryptor.Seal(raw)
}

func (s *GormStore) decode(blob string) (*ProviderConfig, error) {
	raw, err := s.encryptor.Open(blob)
	if err != nil {
		return nil, err
	}
	var cfg ProviderConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal provider config: %w", err)
	}
	return &cfg, nil
}

// Load returns the stored config or ErrNotConnected.
func (s *GormStore) Load(ctx context.Context, orgID string, p Provider) (*ProviderConfig, error) {
	var row models.IntegrationConfig
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND provider = ?", orgID, string(p)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load %s config: %w", p, err)
	}
	return s.decode(row.Blob)
}

// Save replaces the stored config.
func (s *GormStore) Save(ctx context.Context, orgID string, p Provider, cfg ProviderConfig) error {
	return s.save(s.db.WithContext(ctx), orgID, p, cfg)
}

func (s *GormStore) save(tx *gorm.DB, orgID string, p Provider, cfg ProviderConfig) error {
	now := s.now().UTC()
	cfg.UpdatedAt = &now

	blob, err := s.encode(cfg)
	if err != nil {
		return err
	}

	row := models.IntegrationConfig{
		OrgID:    orgID,
		Provider: string(p),
		Blob:     blob,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save %s config: %w", p, err)
	}
	return nil
}

// Merge reads the stored config, merges update into it and writes it back in
// one transaction. A missing row is treated as empty.
func (s *GormStore) Merge(ctx context.Context, orgID string, p Provider, update ProviderConfig) (*ProviderConfig, error) {
	var merged ProviderConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.IntegrationConfig
		var existing *ProviderConfig

		err := tx.Where("org_id = ? AND provider = ?", orgID, string(p)).First(&row).Error
		switch {
		case err == nil:
			existing, err = s.decode(row.Blob)
			if err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		merged = MergeConfig(existing, update)
		return s.save(tx, orgID, p, merged)
	})
	if err != nil {
		return nil, fmt.Errorf("merge %s config: %w", p, err)
	}

	logger.Log.Debug("Provider config merged",
		logger.WithOrgID(orgID),
		logger.WithProvider(string(p)),
		zap.Bool("has_refresh_token", merged.RefreshToken != ""),
	)
	return &merged, nil
}

// UpdateSettings merges user supplied settings into a connected provider's
// config. Only editable keys are accepted; an empty value clears the key.
func (s *GormStore) UpdateSettings(ctx context.Context, orgID string, p Provider, settings map[string]string) (*ProviderConfig, error) {
	for k := range settings {
		if !IsEditableSetting(p, k) {
			return nil, fmt.Errorf("%w: %s", ErrSettingNotEditable, k)
		}
	}

	var merged ProviderConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.IntegrationConfig
		err := tx.Where("org_id = ? AND provider = ?", orgID, string(p)).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotConnected
		} else if err != nil {
			return err
		}
		existing, err := s.decode(row.Blob)
		if err != nil {
			return err
		}
		merged = MergeConfig(existing, ProviderConfig{Settings: settings})
		return s.save(tx, orgID, p, merged)
	})
	if errors.Is(err, ErrNotConnected) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update %s settings: %w", p, err)
	}
	return &merged, nil
}

// Delete removes the stored config. Deleting a missing config is not an error.
func (s *GormStore) Delete(ctx context.Context, orgID string, p Provider) error {
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND provider = ?", orgID, string(p)).
		Delete(&models.IntegrationConfig{}).Error
	if err != nil {
		return fmt.Errorf("delete %s config: %w", p, err)
	}
	return nil
}

// List returns every stored config of the organization keyed by provider.
// Rows that fail to decode are logged and skipped.
func (s *GormStore) List(ctx context.Context, orgID string) (map[Provider]*ProviderConfig, error) {
	var rows []models.IntegrationConfig
	if err := s.db.WithContext(ctx).Where("org_id = ?", orgID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}

	out := make(map[Provider]*ProviderConfig, len(rows))
	for _, row := range rows {
		p, err := ParseProvider(row.Provider)
		if err != nil {
			continue
		}
		cfg, err := s.decode(row.Blob)
		if err != nil {
			logger.Log.Warn("Skipping undecodable provider config",
				logger.WithOrgID(orgID),
				logger.WithProvider(row.Provider),
				zap.Error(err),
			)
			continue
		}
		out[p] = cfg
	}
	return out, nil
}

// Statuses summarizes every provider for display, including unconnected ones.
func Statuses(ctx context.Context, store Store, orgID string) ([]Status, error) {
	configs, err := store.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]Status, 0, len(Providers))
	for _, p := range Providers {
		out = append(out, StatusOf(p, configs[p], now))
	}
	return out, nil
}
