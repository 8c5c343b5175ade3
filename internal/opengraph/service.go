package opengraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrTemplateNotFound is returned for unknown or foreign templates.
var ErrTemplateNotFound = errors.New("template not found")

// ErrVarTooLong is returned when a template variable exceeds MaxVarLength.
var ErrVarTooLong = errors.New("template variable too long")

// MaxVarLength caps a variable value in characters.
const MaxVarLength = 300

// Render sources, used as the metric label.
const (
	SourcePreview = "preview"
	SourceStored  = "stored"
	SourceCLI     = "cli"
)

// Service stores templates and their rendered images.
type Service struct {
	db      *gorm.DB
	store   storage.ObjectStore
	fetcher ImageFetcher
}

// NewService creates a template service. store may be nil, in which case
// renders are never persisted.
func NewService(db *gorm.DB, store storage.ObjectStore, fetcher ImageFetcher) *Service {
	return &Service{db: db, store: store, fetcher: fetcher}
}

func fromModel(m *models.OGTemplate) (*Template, error) {
	var t Template
	if err := json.Unmarshal([]byte(m.Definition), &t); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", m.ID, err)
	}
	t.ID = m.ID
	t.OrgID = m.OrgID
	t.Name = m.Name
	return &t, nil
}

func definition(t *Template) (string, error) {
	def := *t
	def.ID, def.OrgID = "", ""
	raw, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}
	return string(raw), nil
}

// List returns the organization's templates ordered by name.
func (s *Service) List(ctx context.Context, orgID string) ([]Template, error) {
	var rows []models.OGTemplate
	if err := s.db.WithContext(ctx).Where("org_id = ?", orgID).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make([]Template, 0, len(rows))
	for i := range rows {
		t, err := fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// Get returns a template of the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Template, error) {
	return s.find(s.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

// GetPublic returns a template by id regardless of organization, for the
// public image endpoint.
func (s *Service) GetPublic(ctx context.Context, id string) (*Template, error) {
	return s.find(s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *Service) find(q *gorm.DB) (*Template, error) {
	var m models.OGTemplate
	err := q.First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return fromModel(&m)
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, orgID string, t Template) (*Template, error) {
	if err := Validate(&t); err != nil {
		return nil, err
	}
	def, err := definition(&t)
	if err != nil {
		return nil, err
	}
	m := models.OGTemplate{OrgID: orgID, Name: t.Name, Definition: def}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	t.ID, t.OrgID = m.ID, orgID

	logger.Log.Info("Open Graph template created",
		logger.WithOrgID(orgID),
		zap.String("template_id", t.ID),
		zap.Int("elements", len(t.Elements)),
	)
	return &t, nil
}

// Update replaces a template's definition.
func (s *Service) Update(ctx context.Context, orgID, id string, t Template) (*Template, error) {
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return s.save(ctx, orgID, id, func(*Template) (*Template, error) { return &t, nil })
}

// UpdateElement applies one canvas edit to a stored template.
func (s *Service) UpdateElement(ctx context.Context, orgID, id, elementID string, patch ElementPatch) (*Template, error) {
	return s.save(ctx, orgID, id, func(cur *Template) (*Template, error) {
		if err := patch.Apply(cur, elementID); err != nil {
			return nil, err
		}
		logger.Log.Debug("Open Graph element edited",
			zap.String("template_id", id),
			zap.String("element", elementID),
			zap.String("edit", patch.String()),
		)
		return cur, nil
	})
}

// save loads the template, lets edit produce the new version and writes it
// back in one transaction.
func (s *Service) save(ctx context.Context, orgID, id string, edit func(*Template) (*Template, error)) (*Template, error) {
	var out *Template
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.OGTemplate
		err := tx.Where("org_id = ? AND id = ?", orgID, id).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		} else if err != nil {
			return err
		}
		cur, err := fromModel(&m)
		if err != nil {
			return err
		}
		next, err := edit(cur)
		if err != nil {
			return err
		}
		def, err := definition(next)
		if err != nil {
			return err
		}
		if err := tx.Model(&m).Updates(map[string]any{"name": next.Name, "definition": def}).Error; err != nil {
			return err
		}
		next.ID, next.OrgID = m.ID, m.OrgID
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a template. Stored renders are left to expire with the
// bucket lifecycle.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	res := s.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).Delete(&models.OGTemplate{})
	if res.Error != nil {
		return fmt.Errorf("delete template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Draw lays out and renders t without storing the result.
func (s *Service) Draw(ctx context.Context, t *Template, vars map[string]string, source string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.Get().OGRenderDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()
	if err := Validate(t); err != nil {
		return nil, err
	}
	return Render(ctx, LayoutTemplate(t, vars), s.fetcher)
}

// Rendered is a stored render.
type Rendered struct {
	Key    string
	URL    string
	Data   []byte
	Cached bool
}

// RenderKey is the object key of t rendered with vars. It changes whenever
// the definition or the variables change.
func RenderKey(t *Template, vars map[string]string) (string, error) {
	def, err := definition(t)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(def))
	for _, k := range names {
		fmt.Fprintf(h, "\x00%s=%s", k, vars[k])
	}
	sum := hex.EncodeToString(h.Sum(nil))[:32]
	return fmt.Sprintf("og/%s/%s/%s.png", t.OrgID, t.ID, sum), nil
}

// Render returns the stored image for t and vars, rendering and storing it
// on first use. Only variables the template uses take part in the key.
func (s *Service) Render(ctx context.Context, t *Template, vars map[string]string) (*Rendered, error) {
	return s.render(ctx, t, vars, true)
}

// RenderPublic serves anonymous requests. A render already stored is
// returned as is; anything else is drawn without being stored, so only
// renders made from the app occupy storage.
func (s *Service) RenderPublic(ctx context.Context, t *Template, vars map[string]string) (*Rendered, error) {
	return s.render(ctx, t, vars, false)
}

func (s *Service) render(ctx context.Context, t *Template, vars map[string]string, persist bool) (*Rendered, error) {
	used := make(map[string]string)
	for _, name := range t.Vars() {
		v := vars[name]
		if utf8.RuneCountInString(v) > MaxVarLength {
			return nil, fmt.Errorf("%w: %s exceeds %d characters", ErrVarTooLong, name, MaxVarLength)
		}
		used[name] = v
	}
	key, err := RenderKey(t, used)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		data, err := s.store.Get(ctx, key)
		switch {
		case err == nil:
			return &Rendered{Key: key, URL: s.store.URL(key), Data: data, Cached: true}, nil
		case !errors.Is(err, storage.ErrNotFound):
			logger.Log.Warn("Stored Open Graph image unreadable", zap.String("key", key), zap.Error(err))
		}
	}

	data, err := s.Draw(ctx, t, used, SourceStored)
	if err != nil {
		return nil, err
	}
	out := &Rendered{Key: key, Data: data}
	if s.store == nil || !persist {
		return out, nil
	}
	obj, err := s.store.Put(ctx, key, data, "image/png")
	if err != nil {
		// the image is still served, just not persisted
		logger.Log.Error("Failed to store Open Graph image", zap.String("key", key), zap.Error(err))
		return out, nil
	}
	out.URL = obj.URL
	return out, nil
}
