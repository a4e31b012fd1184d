package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/monitor"
)

// PolicyInvoker dispatches a named policy action (possibly composite) for an
// instance. Wired in after construction to break the dependency cycle with
// the policy package.
type PolicyInvoker interface {
	Invoke(ctx context.Context, action string, mea *model.MEA, args map[string]any) error
}

// MEAService owns the MEA state machine and lifecycle orchestration.
type MEAService struct {
	db      DB
	events  *EventService
	meads   *MEADService
	vims    *VIMService
	drivers *driver.Registries
	monitor *monitor.Engine
	alarms  *monitor.AlarmMonitor
	pool    *Pool

	bootWait time.Duration
	invoker  PolicyInvoker
	logger   zerolog.Logger
}

func NewMEAService(db DB, events *EventService, meads *MEADService, vims *VIMService,
	drivers *driver.Registries, mon *monitor.Engine, alarms *monitor.AlarmMonitor,
	pool *Pool, bootWait time.Duration, logger zerolog.Logger) *MEAService {
	return &MEAService{
		db:       db,
		events:   events,
		meads:    meads,
		vims:     vims,
		drivers:  drivers,
		monitor:  mon,
		alarms:   alarms,
		pool:     pool,
		bootWait: bootWait,
		logger:   logger.With().Str("component", "mea").Logger(),
	}
}

// SetPolicyInvoker attaches the policy action dispatcher. Must be called
// before the monitor engine starts delivering actions.
func (s *MEAService) SetPolicyInvoker(p PolicyInvoker) {
	s.invoker = p
}

const meaColumns = `id, tenant_id, name, description, mead_id, vim_id, instance_id, mgmt_url, status, error_reason, created_at, updated_at`

func scanMEA(row pgx.Row) (*model.MEA, error) {
	var m model.MEA
	err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MEADID, &m.VIMID,
		&m.InstanceID, &m.MgmtURL, &m.Status, &m.ErrorReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MEAService) GetByID(ctx context.Context, id string) (*model.MEA, error) {
	mea, err := scanMEA(s.db.QueryRow(ctx,
		`SELECT `+meaColumns+` FROM meas WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeMEA, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get mea %s: %w", id, err)
	}

	attrs, err := loadAttributes(ctx, s.db, "mea_attributes", "mea_id", mea.ID)
	if err != nil {
		return nil, err
	}
	mea.Attributes = attrs
	return mea, nil
}

func (s *MEAService) List(ctx context.Context, tenantID string) ([]model.MEA, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+meaColumns+` FROM meas WHERE tenant_id = $1 AND deleted_at = $2 ORDER BY name`,
		tenantID, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list meas: %w", err)
	}
	defer rows.Close()

	var meas []model.MEA
	for rows.Next() {
		m, err := scanMEA(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mea: %w", err)
		}
		meas = append(meas, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meas: %w", err)
	}
	return meas, nil
}

// ListByStatus returns live instances in the given status, used by startup
// reconciliation.
func (s *MEAService) ListByStatus(ctx context.Context, status string) ([]model.MEA, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+meaColumns+` FROM meas WHERE status = $1 AND deleted_at = $2`,
		status, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list meas by status: %w", err)
	}
	defer rows.Close()

	var meas []model.MEA
	for rows.Next() {
		m, err := scanMEA(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mea: %w", err)
		}
		meas = append(meas, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meas: %w", err)
	}
	return meas, nil
}

// transition applies a guarded status change as one compare-and-set
// statement. At most one concurrent caller observes a row; losers get a
// ConflictError carrying the status that beat them, or NotFoundError when
// the row is gone or soft-deleted.
func (s *MEAService) transition(ctx context.Context, id, newStatus string, guards []string, eventType, details string) (*model.MEA, error) {
	mea, err := scanMEA(s.db.QueryRow(ctx,
		`UPDATE meas SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = ANY($3) AND deleted_at = $4
		 RETURNING `+meaColumns,
		newStatus, id, guards, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := s.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &ConflictError{Resource: model.ResTypeMEA, ID: id, Status: current.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("transition mea %s to %s: %w", id, newStatus, err)
	}

	s.recordEvent(ctx, id, newStatus, eventType, details)
	return mea, nil
}

// transitionExcluding is the inverse guard form used by monitor-driven
// transitions: the change applies unless the current status is excluded.
func (s *MEAService) transitionExcluding(ctx context.Context, id, newStatus string, exclude []string, details string) (*model.MEA, error) {
	mea, err := scanMEA(s.db.QueryRow(ctx,
		`UPDATE meas SET status = $1, updated_at = now()
		 WHERE id = $2 AND NOT (status = ANY($3)) AND deleted_at = $4
		 RETURNING `+meaColumns,
		newStatus, id, exclude, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := s.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &ConflictError{Resource: model.ResTypeMEA, ID: id, Status: current.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("transition mea %s to %s: %w", id, newStatus, err)
	}

	s.recordEvent(ctx, id, newStatus, model.EventMonitor, details)
	return mea, nil
}

// MarkDead transitions an instance to DEAD unless its current status is in
// the exclusion set (mid-operation or already terminal).
func (s *MEAService) MarkDead(ctx context.Context, id string) (*model.MEA, error) {
	mea, err := s.transitionExcluding(ctx, id, model.StatusDead, model.MarkDeadExclude, "MEA marked dead")
	if err != nil {
		return nil, err
	}
	s.monitor.MarkDead(id)
	return mea, nil
}

// MarkError transitions an instance to ERROR unless it is already DEAD.
func (s *MEAService) MarkError(ctx context.Context, id, reason string) (*model.MEA, error) {
	mea, err := s.transitionExcluding(ctx, id, model.StatusError, model.MarkErrorExclude, "MEA marked error: "+reason)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		if err := s.SetErrorReason(ctx, id, reason); err != nil {
			return nil, err
		}
		mea.ErrorReason = &reason
	}
	return mea, nil
}

// SetErrorReason persists the human-readable failure cause.
func (s *MEAService) SetErrorReason(ctx context.Context, id, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE meas SET error_reason = $1, updated_at = now() WHERE id = $2`,
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("set mea %s error reason: %w", id, err)
	}
	return nil
}

func (s *MEAService) setInstanceInfo(ctx context.Context, id string, instanceID, mgmtURL *string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE meas SET instance_id = $1, mgmt_url = $2, updated_at = now() WHERE id = $3`,
		instanceID, mgmtURL, id,
	)
	if err != nil {
		return fmt.Errorf("set mea %s instance info: %w", id, err)
	}
	return nil
}

// SetAttribute stores one instance attribute, with credential redaction.
func (s *MEAService) SetAttribute(ctx context.Context, id, key, value string) error {
	return saveAttributes(ctx, s.db, "mea_attributes", "mea_id", id,
		map[string]string{key: value}, true)
}

func (s *MEAService) recordEvent(ctx context.Context, id, state, eventType, details string) {
	if err := s.events.Record(ctx, id, model.ResTypeMEA, state, eventType, details); err != nil {
		s.logger.Error().Str("mea_id", id).Err(err).Msg("event write failed")
	}
}

// Policies returns the policies attached to an instance's template,
// optionally filtered by name.
func (s *MEAService) Policies(ctx context.Context, meaID, name string) ([]model.PolicyDef, error) {
	mea, err := s.GetByID(ctx, meaID)
	if err != nil {
		return nil, err
	}
	policies, err := s.meads.Policies(ctx, mea.MEADID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return policies, nil
	}
	var out []model.PolicyDef
	for _, p := range policies {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindPolicy resolves one policy by name, nil when absent. Satisfies
// monitor.PolicyFinder.
func (s *MEAService) FindPolicy(ctx context.Context, meaID, name string) (*model.PolicyDef, error) {
	policies, err := s.Policies(ctx, meaID, name)
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, nil
	}
	return &policies[0], nil
}

// Resources lists the backend resources of an ACTIVE instance.
func (s *MEAService) Resources(ctx context.Context, id string) ([]driver.Resource, error) {
	mea, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mea.Status != model.StatusActive {
		return nil, &ConflictError{Resource: model.ResTypeMEA, ID: id, Status: mea.Status}
	}

	vim, err := s.vims.GetVIM(ctx, mea.VIMID, "")
	if err != nil {
		return nil, err
	}
	infra, err := s.drivers.Infra.Get(vim.Type)
	if err != nil {
		return nil, err
	}
	return infra.GetResourceInfo(ctx, vim.Auth, mea.BackendInstanceID())
}
