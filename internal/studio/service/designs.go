package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"design-studio/internal/design/history"
	"design-studio/internal/design/models"
	"design-studio/internal/design/snap"
	"design-studio/internal/design/template"
	"design-studio/internal/render/export"
	"design-studio/internal/studio/repository"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================
// Design Service
// ============================================================

const (
	DefaultDesignName   = "Untitled design"
	DefaultAction       = "edit"
	ActionApplyTemplate = "template:apply"
)

var ErrInvalidInput = errors.New("invalid input")

type DesignStore interface {
	CreateDesign(ctx context.Context, d *models.Design) error
	GetDesign(ctx context.Context, ownerID, id string) (*models.Design, error)
	ListDesigns(ctx context.Context, ownerID string) ([]models.Design, error)
	UpdateDesign(ctx context.Context, d *models.Design, expectedVersion int) error
	DeleteDesign(ctx context.Context, ownerID, id string) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
}

type Renderer interface {
	Render(ctx context.Context, design models.Design, params export.Params) (*Rendered, error)
}

type DesignsOptions struct {
	Catalog  *template.Catalog
	Renderer Renderer
	Storage  *FileStorage
	History  history.Options
	Snap     snap.Options
}

// Designs связывает хранилище дизайнов с журналами истории и кэшем направляющих.
type Designs struct {
	store    DesignStore
	history  *history.Registry
	snaps    *SnapStore
	catalog  *template.Catalog
	renderer Renderer
	storage  *FileStorage
	snapOpts snap.Options
	log      zerolog.Logger

	mu sync.Mutex // сериализует изменения: журнал и версия в БД меняются вместе
}

func NewDesigns(store DesignStore, opts DesignsOptions, logger zerolog.Logger) *Designs {
	return &Designs{
		store:    store,
		history:  history.NewRegistry(opts.History),
		snaps:    NewSnapStore(),
		catalog:  opts.Catalog,
		renderer: opts.Renderer,
		storage:  opts.Storage,
		snapOpts: opts.Snap,
		log:      logger,
	}
}

type CreateInput struct {
	Name       string         `json:"name"`
	PresetID   string         `json:"preset_id"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Background string         `json:"background"`
	TemplateID string         `json:"template_id"`
	Canvas     *models.Canvas `json:"canvas"`
}

type SaveInput struct {
	Name     string         `json:"name"`
	Canvas   models.Canvas  `json:"canvas"`
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata"`
	Version  int            `json:"version"` // 0 - без проверки версии
}

type SaveResult struct {
	Design  *models.Design `json:"design"`
	Entry   *EntryView     `json:"entry,omitempty"`
	Outcome string         `json:"outcome"`
}

type EntryView struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

type HistoryState struct {
	Entries []history.Summary `json:"entries"`
	Current string            `json:"current"`
	CanUndo bool              `json:"can_undo"`
	CanRedo bool              `json:"can_redo"`
	InBatch bool              `json:"in_batch"`
}

type HistoryResult struct {
	Design  *models.Design `json:"design"`
	History HistoryState   `json:"history"`
}

// ============================================================
// CRUD
// ============================================================

// Create создаёт дизайн из явного холста, шаблона, пресета или размеров - в этом порядке.
func (s *Designs) Create(ctx context.Context, ownerID string, in CreateInput) (*models.Design, error) {
	d := &models.Design{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(in.Name),
		TemplateID: in.TemplateID,
	}

	width, height := in.Width, in.Height
	if in.PresetID != "" {
		p, ok := s.preset(in.PresetID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown preset %q", ErrInvalidInput, in.PresetID)
		}
		width, height = p.Width, p.Height
	}

	switch {
	case in.Canvas != nil:
		d.Canvas = in.Canvas.Clone()
	case in.TemplateID != "":
		tpl, err := s.store.GetTemplate(ctx, in.TemplateID)
		if err != nil {
			return nil, err
		}
		mode, target := template.ModeReplace, models.Canvas{}
		if width > 0 && height > 0 {
			mode, target = template.ModeFit, models.Canvas{Width: width, Height: height}
		}
		canvas, err := template.Apply(*tpl, target, mode)
		if err != nil {
			return nil, err
		}
		d.Canvas = canvas
		if d.Name == "" {
			d.Name = tpl.Name
		}
	default:
		d.Canvas = models.Canvas{Width: width, Height: height, Background: in.Background}
	}

	if in.Background != "" {
		d.Canvas.Background = in.Background
	}
	if d.Name == "" {
		d.Name = DefaultDesignName
	}

	d.Canvas.Normalize()
	if err := d.Canvas.Validate(); err != nil {
		return nil, err
	}
	snapshot, err := d.Canvas.Encode()
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateDesign(ctx, d); err != nil {
		return nil, err
	}
	s.history.Open(d.ID, snapshot)

	s.log.Info().Str("design", d.ID).Str("owner", ownerID).Str("template", d.TemplateID).Msg("design created")
	return d, nil
}

func (s *Designs) Get(ctx context.Context, ownerID, id string) (*models.Design, error) {
	return s.store.GetDesign(ctx, ownerID, id)
}

func (s *Designs) List(ctx context.Context, ownerID string) ([]models.Design, error) {
	return s.store.ListDesigns(ctx, ownerID)
}

func (s *Designs) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteDesign(ctx, ownerID, id); err != nil {
		return err
	}
	s.history.Drop(id)
	s.snaps.Drop(id)
	return nil
}

// Save записывает новый холст в журнал под меткой действия и увеличивает версию.
// Холст, совпадающий с текущим, не меняет ни журнал, ни версию.
func (s *Designs) Save(ctx context.Context, ownerID, id string, in SaveInput) (*SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.Version != 0 && in.Version != d.Version {
		return nil, fmt.Errorf("%w: design %s is at version %d, got %d", repository.ErrVersionConflict, id, d.Version, in.Version)
	}

	renamed := false
	if name := strings.TrimSpace(in.Name); name != "" && name != d.Name {
		d.Name, renamed = name, true
	}
	return s.record(ctx, d, in.Canvas, in.Action, in.Metadata, renamed)
}

// ApplyTemplate заменяет холст дизайна шаблоном как одно действие истории.
func (s *Designs) ApplyTemplate(ctx context.Context, ownerID, id, templateID string, mode template.Mode) (*SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	canvas, err := template.Apply(*tpl, d.Canvas, mode)
	if err != nil {
		return nil, err
	}
	d.TemplateID = tpl.ID

	return s.record(ctx, d, canvas, ActionApplyTemplate, map[string]any{"template_id": tpl.ID, "mode": string(mode)}, true)
}

// record пишет снимок в журнал и сохраняет дизайн; без изменений (dirty == false и тот же холст) версия не растёт.
func (s *Designs) record(ctx context.Context, d *models.Design, canvas models.Canvas, action string, meta map[string]any, dirty bool) (*SaveResult, error) {
	canvas.Normalize()
	if err := canvas.Validate(); err != nil {
		return nil, err
	}
	snapshot, err := canvas.Encode()
	if err != nil {
		return nil, err
	}
	stored, err := d.Canvas.Encode()
	if err != nil {
		return nil, err
	}
	if !dirty && bytes.Equal(stored, snapshot) {
		return &SaveResult{Design: d, Outcome: history.Skipped.String()}, nil
	}
	if action = strings.TrimSpace(action); action == "" {
		action = DefaultAction
	}

	m, err := s.manager(d)
	if err != nil {
		return nil, err
	}
	entry, outcome, err := m.Record(action, snapshot, meta)
	if err != nil {
		return nil, err
	}

	expected := d.Version
	d.Canvas = canvas
	if err := s.store.UpdateDesign(ctx, d, expected); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("design", d.ID).
		Str("action", action).
		Str("outcome", outcome.String()).
		Int("version", d.Version).
		Str("snapshot", humanize.IBytes(uint64(len(snapshot)))).
		Msg("design saved")

	res := &SaveResult{Design: d, Outcome: outcome.String()}
	if entry.ID != "" {
		res.Entry = &EntryView{ID: entry.ID, Action: entry.Action}
	}
	return res, nil
}

// manager открывает журнал дизайна; первый снимок - сохранённый холст.
func (s *Designs) manager(d *models.Design) (*history.Manager, error) {
	if m, ok := s.history.Get(d.ID); ok {
		return m, nil
	}
	snapshot, err := d.Canvas.Encode()
	if err != nil {
		return nil, err
	}
	return s.history.Open(d.ID, snapshot), nil
}

func (s *Designs) preset(id string) (models.Preset, bool) {
	if s.catalog == nil {
		return models.Preset{}, false
	}
	return s.catalog.Preset(id)
}

// ============================================================
// History
// ============================================================

func (s *Designs) History(ctx context.Context, ownerID, id string) (*HistoryResult, error) {
	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	m, err := s.manager(d)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Design: d, History: historyState(m)}, nil
}

func (s *Designs) Undo(ctx context.Context, ownerID, id string) (*HistoryResult, error) {
	return s.navigate(ctx, ownerID, id, (*history.Manager).Undo)
}

func (s *Designs) Redo(ctx context.Context, ownerID, id string) (*HistoryResult, error) {
	return s.navigate(ctx, ownerID, id, (*history.Manager).Redo)
}

func (s *Designs) Goto(ctx context.Context, ownerID, id, entryID string) (*HistoryResult, error) {
	return s.navigate(ctx, ownerID, id, func(m *history.Manager) (history.Entry, error) {
		return m.Goto(entryID)
	})
}

// navigate двигает курсор журнала и сохраняет восстановленный холст новой версией.
func (s *Designs) navigate(ctx context.Context, ownerID, id string, move func(*history.Manager) (history.Entry, error)) (*HistoryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	m, err := s.manager(d)
	if err != nil {
		return nil, err
	}

	entry, err := move(m)
	if err != nil {
		return nil, err
	}
	if err := s.restore(ctx, d, entry.Snapshot); err != nil {
		return nil, err
	}
	return &HistoryResult{Design: d, History: historyState(m)}, nil
}

func (s *Designs) restore(ctx context.Context, d *models.Design, snapshot []byte) error {
	canvas, err := models.DecodeCanvas(snapshot)
	if err != nil {
		return err
	}
	d.Canvas = canvas
	return s.store.UpdateDesign(ctx, d, d.Version)
}

func (s *Designs) Seal(ctx context.Context, ownerID, id string) (*HistoryResult, error) {
	return s.withManager(ctx, ownerID, id, func(d *models.Design, m *history.Manager) error {
		m.Seal()
		return nil
	})
}

func (s *Designs) BeginBatch(ctx context.Context, ownerID, id, action string) (*HistoryResult, error) {
	if action = strings.TrimSpace(action); action == "" {
		return nil, fmt.Errorf("%w: batch action required", ErrInvalidInput)
	}
	return s.withManager(ctx, ownerID, id, func(d *models.Design, m *history.Manager) error {
		m.BeginBatch(action)
		return nil
	})
}

// EndBatch закрывает батч; при cancel холст откатывается к записи под курсором.
func (s *Designs) EndBatch(ctx context.Context, ownerID, id string, cancel bool) (*HistoryResult, error) {
	return s.withManager(ctx, ownerID, id, func(d *models.Design, m *history.Manager) error {
		if !cancel {
			_, _, err := m.EndBatch()
			return err
		}
		if err := m.CancelBatch(); err != nil {
			return err
		}

		current := m.Current()
		stored, err := d.Canvas.Encode()
		if err != nil {
			return err
		}
		if bytes.Equal(stored, current.Snapshot) {
			return nil
		}
		return s.restore(ctx, d, current.Snapshot)
	})
}

func (s *Designs) withManager(ctx context.Context, ownerID, id string, fn func(*models.Design, *history.Manager) error) (*HistoryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	m, err := s.manager(d)
	if err != nil {
		return nil, err
	}
	if err := fn(d, m); err != nil {
		return nil, err
	}
	return &HistoryResult{Design: d, History: historyState(m)}, nil
}

func historyState(m *history.Manager) HistoryState {
	return HistoryState{
		Entries: m.Entries(),
		Current: m.Current().ID,
		CanUndo: m.CanUndo(),
		CanRedo: m.CanRedo(),
		InBatch: m.InBatch(),
	}
}

// ============================================================
// Snapping
// ============================================================

type SnapInput struct {
	MovingIDs     []string       `json:"moving_ids"`
	Bounds        *models.Bounds `json:"bounds"`
	Threshold     float64        `json:"threshold"`
	GridSize      float64        `json:"grid_size"`
	SnapToCanvas  *bool          `json:"snap_to_canvas"`
	SnapToObjects *bool          `json:"snap_to_objects"`
}

// Snap считает сдвиг и направляющие для перемещаемых объектов.
// Без bounds берётся объединение текущих рамок перемещаемых объектов.
func (s *Designs) Snap(ctx context.Context, ownerID, id string, in SnapInput) (*snap.Result, error) {
	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	opts := s.snapOpts
	if in.Threshold > 0 {
		opts.Threshold = in.Threshold
	}
	if in.GridSize > 0 {
		opts.GridSize = in.GridSize
	}
	if in.SnapToCanvas != nil {
		opts.SnapToCanvas = *in.SnapToCanvas
	}
	if in.SnapToObjects != nil {
		opts.SnapToObjects = *in.SnapToObjects
	}

	var bounds models.Bounds
	if in.Bounds != nil {
		bounds = *in.Bounds
	} else {
		found := false
		for _, mid := range in.MovingIDs {
			obj, _ := d.Canvas.Find(mid)
			if obj == nil {
				return nil, fmt.Errorf("%w: %s", models.ErrObjectNotFound, mid)
			}
			if !found {
				bounds, found = obj.Bounds(), true
				continue
			}
			bounds = bounds.Union(obj.Bounds())
		}
		if !found {
			return nil, fmt.Errorf("%w: bounds or moving_ids required", ErrInvalidInput)
		}
	}

	res := s.snaps.Get(*d, in.MovingIDs, opts).Snap(bounds)
	return &res, nil
}

// ============================================================
// Export
// ============================================================

type ExportResult struct {
	Filename string
	Path     string
	*Rendered
}

// Export рендерит дизайн через renderer и сохраняет файл в exports/ владельца.
func (s *Designs) Export(ctx context.Context, ownerID, id string, params export.Params) (*ExportResult, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}
	d, err := s.store.GetDesign(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if s.renderer == nil {
		return nil, ErrRendererUnavailable
	}

	rendered, err := s.renderer.Render(ctx, *d, params)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{
		Filename: fmt.Sprintf("%s-v%d%s", d.ID, d.Version, params.Format.Ext()),
		Rendered: rendered,
	}
	if s.storage != nil {
		res.Path = s.storage.ExportPath(ownerID, res.Filename)
		if err := s.storage.SaveFile(res.Path, rendered.Data); err != nil {
			return nil, fmt.Errorf("save export: %w", err)
		}
	}

	s.log.Info().
		Str("design", d.ID).
		Str("format", string(params.Format)).
		Str("cache", rendered.Cache).
		Str("size", humanize.IBytes(uint64(len(rendered.Data)))).
		Msg("design exported")
	return res, nil
}
