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

// MEADService manages application descriptors (templates). The raw
// descriptor text lives in the attribute side table under the "mead" key;
// the row itself holds derived metadata.
type MEADService struct {
	db     DB
	events *EventService
}

func NewMEADService(db DB, events *EventService) *MEADService {
	return &MEADService{db: db, events: events}
}

// Create parses and onboards a descriptor. The template name defaults to
// the descriptor's template_name when the caller passes none.
func (s *MEADService) Create(ctx context.Context, mead *model.MEAD, rawDescriptor string) (*model.MEAD, error) {
	info, err := descriptor.ParseMEAD(rawDescriptor)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	if mead.Name == "" {
		mead.Name = info.Name
	}
	if mead.Name == "" {
		return nil, &ValidationError{Msg: "mead name is required"}
	}
	if mead.Description == "" {
		mead.Description = info.Description
	}
	mead.MgmtDriver = info.MgmtDriver
	if len(mead.ServiceTypes) == 0 {
		mead.ServiceTypes = info.ServiceTypes
	}
	if len(mead.ServiceTypes) == 0 {
		mead.ServiceTypes = []string{model.ResTypeMEAD}
	}
	if mead.TemplateSource == "" {
		mead.TemplateSource = model.TemplateSourceOnboarded
	}

	if mead.ID == "" {
		mead.ID = platform.NewID()
	}
	now := time.Now().UTC()
	mead.CreatedAt = now
	mead.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO meads (id, tenant_id, name, description, mgmt_driver, service_types, template_source, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		mead.ID, mead.TenantID, mead.Name, mead.Description, mead.MgmtDriver,
		mead.ServiceTypes, mead.TemplateSource, mead.CreatedAt, mead.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert mead: %w", err)
	}

	if err := saveAttributes(ctx, s.db, "mead_attributes", "mead_id", mead.ID,
		map[string]string{model.DescriptorAttrKey: rawDescriptor}, false); err != nil {
		return nil, err
	}
	mead.Attributes = map[string]string{model.DescriptorAttrKey: rawDescriptor}

	s.recordEvent(ctx, mead.ID, model.StateOnboarded, model.EventCreate, "MEAD created")
	return mead, nil
}

func (s *MEADService) GetByID(ctx context.Context, id string) (*model.MEAD, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, mgmt_driver, service_types, template_source, created_at, updated_at
		 FROM meads WHERE id = $1 AND deleted_at = $2`, id, model.NotDeleted)
	return s.scan(ctx, row, id)
}

// GetByName resolves a template by tenant-scoped name, used when composed
// descriptors reference constituents by name.
func (s *MEADService) GetByName(ctx context.Context, tenantID, name string) (*model.MEAD, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, mgmt_driver, service_types, template_source, created_at, updated_at
		 FROM meads WHERE tenant_id = $1 AND name = $2 AND deleted_at = $3`,
		tenantID, name, model.NotDeleted)
	return s.scan(ctx, row, name)
}

func (s *MEADService) scan(ctx context.Context, row pgx.Row, ref string) (*model.MEAD, error) {
	var m model.MEAD
	err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MgmtDriver,
		&m.ServiceTypes, &m.TemplateSource, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeMEAD, ID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("get mead %s: %w", ref, err)
	}

	attrs, err := loadAttributes(ctx, s.db, "mead_attributes", "mead_id", m.ID)
	if err != nil {
		return nil, err
	}
	m.Attributes = attrs
	return &m, nil
}

func (s *MEADService) List(ctx context.Context, tenantID string) ([]model.MEAD, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, mgmt_driver, service_types, template_source, created_at, updated_at
		 FROM meads WHERE tenant_id = $1 AND template_source = $2 AND deleted_at = $3 ORDER BY name`,
		tenantID, model.TemplateSourceOnboarded, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list meads: %w", err)
	}
	defer rows.Close()

	var meads []model.MEAD
	for rows.Next() {
		var m model.MEAD
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MgmtDriver,
			&m.ServiceTypes, &m.TemplateSource, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan mead: %w", err)
		}
		meads = append(meads, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meads: %w", err)
	}
	return meads, nil
}

// Delete soft-deletes a template. A template referenced by a live instance
// is in use.
func (s *MEADService) Delete(ctx context.Context, id string) error {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM meas WHERE mead_id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("check mead %s references: %w", id, err)
	}
	if n > 0 {
		return &InUseError{Resource: model.ResTypeMEAD, ID: id, Detail: fmt.Sprintf("%d live instances", n)}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE meads SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("delete mead %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: model.ResTypeMEAD, ID: id}
	}

	s.recordEvent(ctx, id, model.StateNotAvail, model.EventDelete, "MEAD deleted")
	return nil
}

// Policies returns the policies attached to a template's descriptor.
func (s *MEADService) Policies(ctx context.Context, id string) ([]model.PolicyDef, error) {
	mead, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, ok := mead.Attributes[model.DescriptorAttrKey]
	if !ok {
		return nil, nil
	}
	info, err := descriptor.ParseMEAD(raw)
	if err != nil {
		return nil, fmt.Errorf("mead %s: %w", id, err)
	}
	return info.Policies, nil
}

func (s *MEADService) recordEvent(ctx context.Context, id, state, eventType, details string) {
	_ = s.events.Record(ctx, id, model.ResTypeMEAD, state, eventType, details)
}
