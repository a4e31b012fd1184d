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

// MESDService manages composed service descriptors.
type MESDService struct {
	db     DB
	events *EventService
}

func NewMESDService(db DB, events *EventService) *MESDService {
	return &MESDService{db: db, events: events}
}

func (s *MESDService) Create(ctx context.Context, mesd *model.MESD, rawDescriptor string) (*model.MESD, error) {
	info, err := descriptor.ParseMESD(rawDescriptor)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	if mesd.Name == "" {
		mesd.Name = info.Name
	}
	if mesd.Name == "" {
		return nil, &ValidationError{Msg: "mesd name is required"}
	}
	if mesd.Description == "" {
		mesd.Description = info.Description
	}
	mesd.MEADs = info.MEADs
	if mesd.TemplateSource == "" {
		mesd.TemplateSource = model.TemplateSourceOnboarded
	}
	if mesd.ID == "" {
		mesd.ID = platform.NewID()
	}
	now := time.Now().UTC()
	mesd.CreatedAt = now
	mesd.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO mesds (id, tenant_id, name, description, meads, template_source, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		mesd.ID, mesd.TenantID, mesd.Name, mesd.Description, mesd.MEADs,
		mesd.TemplateSource, mesd.CreatedAt, mesd.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert mesd: %w", err)
	}

	if err := saveAttributes(ctx, s.db, "mesd_attributes", "mesd_id", mesd.ID,
		map[string]string{model.DescriptorAttrKey: rawDescriptor}, false); err != nil {
		return nil, err
	}
	mesd.Attributes = map[string]string{model.DescriptorAttrKey: rawDescriptor}

	_ = s.events.Record(ctx, mesd.ID, model.ResTypeMESD, model.StateOnboarded, model.EventCreate, "MESD created")
	return mesd, nil
}

func (s *MESDService) GetByID(ctx context.Context, id string) (*model.MESD, error) {
	var m model.MESD
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, meads, template_source, created_at, updated_at
		 FROM mesds WHERE id = $1 AND deleted_at = $2`, id, model.NotDeleted,
	).Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MEADs,
		&m.TemplateSource, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeMESD, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get mesd %s: %w", id, err)
	}

	attrs, err := loadAttributes(ctx, s.db, "mesd_attributes", "mesd_id", m.ID)
	if err != nil {
		return nil, err
	}
	m.Attributes = attrs
	return &m, nil
}

func (s *MESDService) List(ctx context.Context, tenantID string) ([]model.MESD, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, meads, template_source, created_at, updated_at
		 FROM mesds WHERE tenant_id = $1 AND deleted_at = $2 ORDER BY name`,
		tenantID, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list mesds: %w", err)
	}
	defer rows.Close()

	var mesds []model.MESD
	for rows.Next() {
		var m model.MESD
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MEADs,
			&m.TemplateSource, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mesd: %w", err)
		}
		mesds = append(mesds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mesds: %w", err)
	}
	return mesds, nil
}

func (s *MESDService) Delete(ctx context.Context, id string) error {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM mess WHERE mesd_id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("check mesd %s references: %w", id, err)
	}
	if n > 0 {
		return &InUseError{Resource: model.ResTypeMESD, ID: id, Detail: fmt.Sprintf("%d live services", n)}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE mesds SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("delete mesd %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: model.ResTypeMESD, ID: id}
	}

	_ = s.events.Record(ctx, id, model.ResTypeMESD, model.StateNotAvail, model.EventDelete, "MESD deleted")
	return nil
}
