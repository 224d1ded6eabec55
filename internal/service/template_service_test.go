package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
)

type templateStoreStub struct {
	templates  map[string]*models.Template
	references map[string]int
	seq        int
}

func newTemplateStoreStub() *templateStoreStub {
	return &templateStoreStub{
		templates:  make(map[string]*models.Template),
		references: make(map[string]int),
	}
}

func (t *templateStoreStub) Create(ctx context.Context, template *models.Template) error {
	t.seq++
	template.ID = fmt.Sprintf("tpl-%d", t.seq)
	clone := *template
	t.templates[template.ID] = &clone
	return nil
}

func (t *templateStoreStub) GetByID(ctx context.Context, id string) (*models.Template, error) {
	if template, ok := t.templates[id]; ok {
		clone := *template
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (t *templateStoreStub) List(ctx context.Context) ([]models.Template, error) {
	result := make([]models.Template, 0, len(t.templates))
	for _, template := range t.templates {
		result = append(result, *template)
	}
	return result, nil
}

func (t *templateStoreStub) Update(ctx context.Context, template *models.Template) error {
	if _, ok := t.templates[template.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *template
	t.templates[template.ID] = &clone
	return nil
}

func (t *templateStoreStub) Delete(ctx context.Context, id string) error {
	delete(t.templates, id)
	return nil
}

func (t *templateStoreStub) CountReferences(ctx context.Context, id string) (int, error) {
	return t.references[id], nil
}

func TestTemplateServiceCreateNormalizesPositions(t *testing.T) {
	store := newTemplateStoreStub()
	svc := NewTemplateService(store, nil, nil)

	template, err := svc.Create(context.Background(), dto.CreateTemplatePayload{
		Name: "Extinguisher check",
		Tasks: []dto.TemplateTaskPayload{
			{Description: "Check pressure gauge"},
			{Description: "Inspect hose"},
		},
	}, adminClaims("admin-1"))
	require.NoError(t, err)
	require.Len(t, template.Tasks, 2)
	require.Equal(t, 1, template.Tasks[0].Position)
	require.Equal(t, 2, template.Tasks[1].Position)
}

func TestTemplateServiceCreateRequiresTasks(t *testing.T) {
	store := newTemplateStoreStub()
	svc := NewTemplateService(store, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateTemplatePayload{Name: "Empty"}, adminClaims("admin-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTemplateServiceAdminOnly(t *testing.T) {
	store := newTemplateStoreStub()
	svc := NewTemplateService(store, nil, nil)

	_, err := svc.List(context.Background(), clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Create(context.Background(), dto.CreateTemplatePayload{
		Name:  "x",
		Tasks: []dto.TemplateTaskPayload{{Description: "y"}},
	}, technicianClaims("tech-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestTemplateServiceDeleteRefusedWhileReferenced(t *testing.T) {
	store := newTemplateStoreStub()
	svc := NewTemplateService(store, nil, nil)

	template, err := svc.Create(context.Background(), dto.CreateTemplatePayload{
		Name:  "Alarm check",
		Tasks: []dto.TemplateTaskPayload{{Description: "Check wiring"}},
	}, adminClaims("admin-1"))
	require.NoError(t, err)

	store.references[template.ID] = 2
	err = svc.Delete(context.Background(), template.ID, adminClaims("admin-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrIntegrity))

	store.references[template.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), template.ID, adminClaims("admin-1")))

	_, err = svc.Get(context.Background(), template.ID, adminClaims("admin-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
