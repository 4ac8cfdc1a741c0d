package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"design-studio/internal/design/models"

	"github.com/bytedance/sonic"
)

// ============================================================
// Designs
// ============================================================

func (r *Repository) CreateDesign(ctx context.Context, d *models.Design) error {
	canvas, err := d.Canvas.Encode()
	if err != nil {
		return err
	}

	now := r.now().UTC()
	d.Version = 1
	d.CreatedAt, d.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO designs (id, owner_id, name, template_id, canvas, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, d.ID, d.OwnerID, d.Name, d.TemplateID, string(canvas), d.Version, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert design: %w", err)
	}
	return nil
}

func (r *Repository) GetDesign(ctx context.Context, ownerID, id string) (*models.Design, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, owner_id, name, template_id, canvas, version, created_at, updated_at
        FROM designs
        WHERE id = ? AND owner_id = ?
    `, id, ownerID)

	d, err := scanDesign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListDesigns возвращает дизайны владельца, последние изменённые первыми.
func (r *Repository) ListDesigns(ctx context.Context, ownerID string) ([]models.Design, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, owner_id, name, template_id, canvas, version, created_at, updated_at
        FROM designs
        WHERE owner_id = ?
        ORDER BY updated_at DESC, id
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Design{}
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDesign сохраняет дизайн при совпадении версии и увеличивает её на единицу.
func (r *Repository) UpdateDesign(ctx context.Context, d *models.Design, expectedVersion int) error {
	canvas, err := d.Canvas.Encode()
	if err != nil {
		return err
	}

	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
        UPDATE designs
        SET name = ?, template_id = ?, canvas = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND owner_id = ? AND version = ?
    `, d.Name, d.TemplateID, string(canvas), now.Format(timeLayout), d.ID, d.OwnerID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update design: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetDesign(ctx, d.OwnerID, d.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: design %s is not at version %d", ErrVersionConflict, d.ID, expectedVersion)
	}

	d.Version = expectedVersion + 1
	d.UpdatedAt = now
	return nil
}

func (r *Repository) DeleteDesign(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM designs WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete design: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDesign(s scanner) (*models.Design, error) {
	var (
		d                models.Design
		canvas           string
		created, updated string
	)
	if err := s.Scan(&d.ID, &d.OwnerID, &d.Name, &d.TemplateID, &canvas, &d.Version, &created, &updated); err != nil {
		return nil, err
	}

	c, err := models.DecodeCanvas([]byte(canvas))
	if err != nil {
		return nil, fmt.Errorf("design %s: %w", d.ID, err)
	}
	d.Canvas = c
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return &d, nil
}

// ============================================================
// Templates
// ============================================================

// SeedTemplates вставляет или обновляет шаблоны каталога.
func (r *Repository) SeedTemplates(ctx context.Context, templates []models.Template) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range templates {
		canvas, err := t.Canvas.Encode()
		if err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := sonic.Marshal(tags)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO templates (id, name, category, tags, canvas)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                category = excluded.category,
                tags = excluded.tags,
                canvas = excluded.canvas
        `, t.ID, t.Name, t.Category, string(tagsJSON), string(canvas))
		if err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// ListTemplates возвращает шаблоны категории; пустая категория - все.
func (r *Repository) ListTemplates(ctx context.Context, category string) ([]models.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, name, category, tags, canvas
        FROM templates
        WHERE ? = '' OR category = ?
        ORDER BY category, name
    `, category, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, `
        SELECT id, name, category, tags, canvas
        FROM templates
        WHERE id = ?
    `, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func scanTemplate(s scanner) (*models.Template, error) {
	var (
		t            models.Template
		tags, canvas string
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Category, &tags, &canvas); err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(tags, &t.Tags); err != nil {
		return nil, fmt.Errorf("template %s tags: %w", t.ID, err)
	}
	c, err := models.DecodeCanvas([]byte(canvas))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", t.ID, err)
	}
	t.Canvas = c
	return &t, nil
}
