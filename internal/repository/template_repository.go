package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optifire/inspection-api/internal/models"
)

// TemplateRepository persists checklist templates and their tasks.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a template and its task list in one transaction.
func (r *TemplateRepository) Create(ctx context.Context, template *models.Template) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now

	const insertTemplate = `INSERT INTO templates (id, name, description, created_at, updated_at)
	VALUES (:id, :name, :description, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertTemplate, template); err != nil {
		err = fmt.Errorf("create template: %w", err)
		return err
	}

	if err = r.bulkInsertTasks(ctx, tx, template.ID, template.Tasks); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) bulkInsertTasks(ctx context.Context, exec sqlx.ExtContext, templateID string, tasks []models.TemplateTask) error {
	for i := range tasks {
		payload := tasks[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.TemplateID = templateID

		if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO template_tasks
		(id, template_id, description, position)
		VALUES (:id, :template_id, :description, :position)`, &payload); err != nil {
			return fmt.Errorf("bulk insert template task: %w", err)
		}
		tasks[i] = payload
	}
	return nil
}

// GetByID fetches a template with its tasks ordered by position.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM templates WHERE id = $1`
	var template models.Template
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}
	tasks, err := r.ListTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	template.Tasks = tasks
	return &template, nil
}

// ListTasks returns a template's tasks in position order.
func (r *TemplateRepository) ListTasks(ctx context.Context, templateID string) ([]models.TemplateTask, error) {
	const query = `SELECT id, template_id, description, position FROM template_tasks WHERE template_id = $1 ORDER BY position ASC`
	var tasks []models.TemplateTask
	if err := r.db.SelectContext(ctx, &tasks, query, templateID); err != nil {
		return nil, fmt.Errorf("list template tasks: %w", err)
	}
	return tasks, nil
}

// List returns all templates, newest first, without their tasks.
func (r *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM templates ORDER BY created_at DESC`
	var templates []models.Template
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// Update replaces a template's metadata and task list in one transaction.
// Existing work orders keep their copied tasks untouched.
func (r *TemplateRepository) Update(ctx context.Context, template *models.Template) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	template.UpdatedAt = time.Now().UTC()
	const updateTemplate = `UPDATE templates SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err = sqlx.NamedExecContext(ctx, tx, updateTemplate, template); err != nil {
		err = fmt.Errorf("update template: %w", err)
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM template_tasks WHERE template_id = $1`, template.ID); err != nil {
		err = fmt.Errorf("clear template tasks: %w", err)
		return err
	}
	for i := range template.Tasks {
		template.Tasks[i].ID = ""
	}
	if err = r.bulkInsertTasks(ctx, tx, template.ID, template.Tasks); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update template: %w", err)
	}
	return nil
}

// Delete removes a template and its tasks.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM template_tasks WHERE template_id = $1`, id); err != nil {
		err = fmt.Errorf("delete template tasks: %w", err)
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id); err != nil {
		err = fmt.Errorf("delete template: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete template: %w", err)
	}
	return nil
}

// CountReferences reports how many requests or orders still point at the
// template. Deletion is refused while this is non-zero.
func (r *TemplateRepository) CountReferences(ctx context.Context, id string) (int, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM service_requests WHERE template_id = $1) +
	(SELECT COUNT(*) FROM work_orders WHERE template_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count template references: %w", err)
	}
	return count, nil
}
