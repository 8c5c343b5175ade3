package integrations

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/models"
	"gorm.io/gorm"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // "0123456789abcdef0123456789abcdef"

type StoreTestSuite struct {
	suite.Suite
	db    *gorm.DB
	store *GormStore
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(s.T(), err)

	enc, err := NewEncryptor(testKey)
	require.NoError(s.T(), err)

	s.db = db
	s.store = NewGormStore(db, enc)
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TestLoadMissing() {
	_, err := s.store.Load(s.ctx, "org-1", Google)
	s.ErrorIs(err, ErrNotConnected)
}

func (s *StoreTestSuite) TestSaveLoadEncrypted() {
	err := s.store.Save(s.ctx, "org-1", Google, ProviderConfig{
		AccessToken:  "access",
		RefreshToken: "refresh",
		AccountName:  "owner@example.com",
	})
	s.Require().NoError(err)

	var row models.IntegrationConfig
	s.Require().NoError(s.db.First(&row, "org_id = ?", "org-1").Error)
	s.True(strings.HasPrefix(row.Blob, encryptedPrefix))
	s.NotContains(row.Blob, "refresh")

	cfg, err := s.store.Load(s.ctx, "org-1", Google)
	s.Require().NoError(err)
	s.Equal("access", cfg.AccessToken)
	s.Equal("refresh", cfg.RefreshToken)
	s.NotNil(cfg.UpdatedAt)
}

func (s *StoreTestSuite) TestSaveUpserts() {
	s.Require().NoError(s.store.Save(s.ctx, "org-1", Webflow, ProviderConfig{AccessToken: "one"}))
	s.Require().NoError(s.store.Save(s.ctx, "org-1", Webflow, ProviderConfig{AccessToken: "two"}))

	var count int64
	s.db.Model(&models.IntegrationConfig{}).Where("org_id = ?", "org-1").Count(&count)
	s.Equal(int64(1), count)

	cfg, err := s.store.Load(s.ctx, "org-1", Webflow)
	s.Require().NoError(err)
	s.Equal("two", cfg.AccessToken)
}

func (s *StoreTestSuite) TestMergeKeepsRefreshToken() {
	_, err := s.store.Merge(s.ctx, "org-1", Google, ProviderConfig{AccessToken: "a1", RefreshToken: "r1"})
	s.Require().NoError(err)

	merged, err := s.store.Merge(s.ctx, "org-1", Google, ProviderConfig{AccessToken: "a2"})
	s.Require().NoError(err)
	s.Equal("a2", merged.AccessToken)
	s.Equal("r1", merged.RefreshToken)

	stored, err := s.store.Load(s.ctx, "org-1", Google)
	s.Require().NoError(err)
	s.Equal("r1", stored.RefreshToken)
}

func (s *StoreTestSuite) TestListAndIsolation() {
	s.Require().NoError(s.store.Save(s.ctx, "org-1", Google, ProviderConfig{AccessToken: "g"}))
	s.Require().NoError(s.store.Save(s.ctx, "org-1", LinkedIn, ProviderConfig{AccessToken: "l"}))
	s.Require().NoError(s.store.Save(s.ctx, "org-2", Google, ProviderConfig{AccessToken: "other"}))

	configs, err := s.store.List(s.ctx, "org-1")
	s.Require().NoError(err)
	s.Len(configs, 2)
	s.Equal("g", configs[Google].AccessToken)

	statuses, err := Statuses(s.ctx, s.store, "org-1")
	s.Require().NoError(err)
	s.Len(statuses, len(Providers))
	s.True(statuses[0].Connected)
	s.False(statuses[1].Connected)
}

func (s *StoreTestSuite) TestDelete() {
	s.Require().NoError(s.store.Save(s.ctx, "org-1", Google, ProviderConfig{AccessToken: "g"}))
	s.Require().NoError(s.store.Delete(s.ctx, "org-1", Google))
	s.Require().NoError(s.store.Delete(s.ctx, "org-1", Google))

	_, err := s.store.Load(s.ctx, "org-1", Google)
	s.ErrorIs(err, ErrNotConnected)
}

func (s *StoreTestSuite) TestPlainRowsReadableAfterEnablingEncryption() {
	plain := NewGormStore(s.db, nil)
	s.Require().NoError(plain.Save(s.ctx, "org-1", Google, ProviderConfig{AccessToken: "plain"}))

	cfg, err := s.store.Load(s.ctx, "org-1", Google)
	s.Require().NoError(err)
	s.Equal("plain", cfg.AccessToken)
}

func (s *StoreTestSuite) TestUpdateSettings() {
	_, err := s.store.UpdateSettings(s.ctx, "org-1", Google, map[string]string{SettingGA4Property: "123"})
	s.ErrorIs(err, ErrNotConnected)

	s.Require().NoError(s.store.Save(s.ctx, "org-1", Google, ProviderConfig{
		AccessToken: "access",
		Settings:    map[string]string{SettingPageSpeedURL: "https://example.com"},
	}))

	cfg, err := s.store.UpdateSettings(s.ctx, "org-1", Google, map[string]string{
		SettingGA4Property:  "123",
		SettingPageSpeedURL: "",
	})
	s.Require().NoError(err)
	s.Equal("123", cfg.Setting(SettingGA4Property))
	s.Empty(cfg.Setting(SettingPageSpeedURL))
	s.Equal("access", cfg.AccessToken)

	_, err = s.store.UpdateSettings(s.ctx, "org-1", Facebook, map[string]string{SettingPageAccessToken: "x"})
	s.ErrorIs(err, ErrSettingNotEditable)
}

func (s *StoreTestSuite) TestUpdateSettingsCannotSwitchFacebookPage() {
	s.Require().NoError(s.store.Save(s.ctx, "org-1", Facebook, ProviderConfig{
		AccessToken: "user-token",
		Settings: map[string]string{
			SettingPageID:          "page-a",
			SettingPageName:        "Page A",
			SettingPageAccessToken: "token-for-a",
		},
	}))

	_, err := s.store.UpdateSettings(s.ctx, "org-1", Facebook, map[string]string{SettingPageID: "page-b"})
	s.ErrorIs(err, ErrSettingNotEditable)

	cfg, err := s.store.Load(s.ctx, "org-1", Facebook)
	s.Require().NoError(err)
	s.Equal("page-a", cfg.Setting(SettingPageID))
	s.Equal("token-for-a", cfg.Setting(SettingPageAccessToken))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestEncryptor(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)
	require.True(t, enc.Enabled())

	sealed, err := enc.Seal([]byte(`{"accessToken":"x"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, encryptedPrefix))

	opened, err := enc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"accessToken":"x"}`, string(opened))

	// tampering fails authentication
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, encryptedPrefix))
	raw[len(raw)-1] ^= 0xff
	_, err = enc.Open(encryptedPrefix + base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	var disabled *Encryptor
	assert.False(t, disabled.Enabled())
	_, err = disabled.Open(sealed)
	assert.ErrorIs(t, err, ErrEncryptionKeyMissing)

	none, err := NewEncryptor("")
	assert.NoError(t, err)
	assert.Nil(t, none)

	_, err = NewEncryptor(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
