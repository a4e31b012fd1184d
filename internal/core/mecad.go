package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/apmec/internal/descriptor"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/platform"
)

// MECADService manages application chain descriptors.
type MECADService struct {
	db     DB
	events *EventService
}

func NewMECADService(db DB, events *EventService) *MECADService {
	return &MECADService{db: db, events: events}
}

func (s *MECADService) Create(ctx context.Context, mecad *model.MECAD, rawDescriptor string) (*model.MECAD, error) {
	info, err := descriptor.ParseMECAD(rawDescriptor)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	if mecad.Name == "" {
		mecad.Name = info.Name
	}
	if mecad.Name == "" {
		return nil, &ValidationError{Msg: "mecad name is required"}
	}
	if mecad.Description == "" {
		mecad.Description = info.Description
	}
	mecad.MEADs = info.MEADs
	if mecad.TemplateSource == "" {
		mecad.TemplateSource = model.TemplateSourceOnboarded
	}
	if mecad.ID == "" {
		mecad.ID = platform.NewID()
	}
	now := time.Now().UTC()
	mecad.CreatedAt = now
	mecad.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO mecads (id, tenant_id, name, description, meads, template_source, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		mecad.ID, mecad.TenantID, mecad.Name, mecad.Description, mecad.MEADs,
		mecad.TemplateSource, mecad.CreatedAt, mecad.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert mecad: %w", err)
	}

	if err := saveAttributes(ctx, s.db, "mecad_attributes", "mecad_id", mecad.ID,
		map[string]string{model.DescriptorAttrKey: rawDescriptor}, false); err != nil {
		return nil, err
	}
	mecad.Attributes = map[string]string{model.DescriptorAttrKey: rawDescriptor}

	_ = s.events.Record(ctx, mecad.ID, model.ResTypeMECAD, model.StateOnboarded, model.EventCreate, "MECAD created")
	return mecad, nil
}

func (s *MECADService) GetByID(ctx context.Context, id string) (*model.MECAD, error) {
	var m model.MECAD
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, meads, template_source, created_at, updated_at
		 FROM mecads WHERE id = $1 AND deleted_at = $2`, id, model.NotDeleted,
	).Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MEADs,
		&m.TemplateSource, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeMECAD, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get mecad %s: %w", id, err)
	}

	attrs, err := loadAttributes(ctx, s.db, "mecad_attributes", "mecad_id", m.ID)
	if err != nil {
		return nil, err
	}
	m.Attributes = attrs
	return &m, nil
}

func (s *MECADService) List(ctx context.Context, tenantID string) ([]model.MECAD, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, meads, template_source, created_at, updated_at
		 FROM mecads WHERE tenant_id = $1 AND deleted_at = $2 ORDER BY name`,
		tenantID, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list mecads: %w", err)
	}
	defer rows.Close()

	var mecads []model.MECAD
	for rows.Next() {
		var m model.MECAD
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MEADs,
			&m.TemplateSource, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mecad: %w", err)
		}
		mecads = append(mecads, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mecads: %w", err)
	}
	return mecads, nil
}

func (s *MECADService) Delete(ctx context.Context, id string) error {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM mecas WHERE mecad_id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("check mecad %s references: %w", id, err)
	}
	if n > 0 {
		return &InUseError{Resource: model.ResTypeMECAD, ID: id, Detail: fmt.Sprintf("%d live chains", n)}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE mecads SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("delete mecad %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: model.ResTypeMECAD, ID: id}
	}

	_ = s.events.Record(ctx, id, model.ResTypeMECAD, model.StateNotAvail, model.EventDelete, "MECAD deleted")
	return nil
}
