package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/platform"
)

// TaskQueue is the Temporal task queue the worker binary listens on.
const TaskQueue = "apmec-tasks"

// Workflow execution polling budget.
const (
	mecaWaitRetries  = 30
	mecaWaitInterval = 6 * time.Second
)

// MECAService orchestrates application chains through workflow executions:
// the chain's constituents are created and destroyed by workflow activities,
// and the service polls the execution by id until it closes.
type MECAService struct {
	db     DB
	tc     temporalclient.Client
	events *EventService
	mecads *MECADService
	pool   *Pool
	logger zerolog.Logger
}

func NewMECAService(db DB, tc temporalclient.Client, events *EventService,
	mecads *MECADService, pool *Pool, logger zerolog.Logger) *MECAService {
	return &MECAService{
		db:     db,
		tc:     tc,
		events: events,
		mecads: mecads,
		pool:   pool,
		logger: logger.With().Str("component", "meca").Logger(),
	}
}

// CreateMECARequest describes a new application chain.
type CreateMECARequest struct {
	TenantID    string
	Name        string
	Description string
	MECADID     string
	VIMID       string
}

const mecaColumns = `id, tenant_id, name, description, mecad_id, vim_id, workflow_id, mea_ids, mgmt_urls, status, error_reason, created_at, updated_at`

func scanMECA(row pgx.Row) (*model.MECA, error) {
	var m model.MECA
	var meaIDs, mgmtURLs []byte
	err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MECADID, &m.VIMID,
		&m.WorkflowID, &meaIDs, &mgmtURLs, &m.Status, &m.ErrorReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meaIDs) > 0 {
		if err := json.Unmarshal(meaIDs, &m.MEAIDs); err != nil {
			return nil, fmt.Errorf("decode meca mea_ids: %w", err)
		}
	}
	if len(mgmtURLs) > 0 {
		if err := json.Unmarshal(mgmtURLs, &m.MgmtURLs); err != nil {
			return nil, fmt.Errorf("decode meca mgmt_urls: %w", err)
		}
	}
	return &m, nil
}

// Create inserts the chain PENDING_CREATE, starts the create workflow and
// polls the execution on the pool.
func (s *MECAService) Create(ctx context.Context, req CreateMECARequest) (*model.MECA, error) {
	if req.Name == "" {
		return nil, &ValidationError{Msg: "meca name is required"}
	}

	mecad, err := s.mecads.GetByID(ctx, req.MECADID)
	if err != nil {
		return nil, err
	}

	meca := &model.MECA{
		ID:          platform.NewID(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		MECADID:     mecad.ID,
		VIMID:       req.VIMID,
		Status:      model.StatusPendingCreate,
	}
	now := time.Now().UTC()
	meca.CreatedAt = now
	meca.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO mecas (id, tenant_id, name, description, mecad_id, vim_id, status, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		meca.ID, meca.TenantID, meca.Name, meca.Description, meca.MECADID, meca.VIMID,
		meca.Status, meca.CreatedAt, meca.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert meca: %w", err)
	}
	s.recordEvent(ctx, meca.ID, meca.Status, model.EventCreate, "MECA created")

	workflowID := "meca-" + meca.ID
	_, err = s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, "CreateMECAWorkflow", meca.ID)
	if err != nil {
		s.markError(ctx, meca.ID, "start create workflow: "+err.Error())
		return nil, fmt.Errorf("start CreateMECAWorkflow: %w", err)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE mecas SET workflow_id = $1, updated_at = now() WHERE id = $2`,
		workflowID, meca.ID,
	); err != nil {
		return nil, fmt.Errorf("store meca %s workflow id: %w", meca.ID, err)
	}
	meca.WorkflowID = &workflowID

	s.pool.Spawn("meca-create-wait-"+meca.ID, func(ctx context.Context) {
		s.awaitWorkflow(ctx, meca.ID, workflowID, "MECA create")
	})
	return meca, nil
}

// awaitWorkflow polls the execution until it closes. The workflow's own
// activities resolve the chain's final status; a failed or vanished
// execution marks the chain ERROR here as a backstop.
func (s *MECAService) awaitWorkflow(ctx context.Context, mecaID, workflowID, operation string) {
	var last enumspb.WorkflowExecutionStatus

	err := retry.Do(func() error {
		resp, err := s.tc.DescribeWorkflowExecution(ctx, workflowID, "")
		if err != nil {
			return fmt.Errorf("describe workflow %s: %w", workflowID, err)
		}
		last = resp.GetWorkflowExecutionInfo().GetStatus()
		switch last {
		case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
			return nil
		case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
			return fmt.Errorf("workflow %s still running", workflowID)
		default:
			return retry.Unrecoverable(fmt.Errorf("workflow %s closed as %s", workflowID, last))
		}
	},
		retry.Context(ctx),
		retry.Attempts(mecaWaitRetries),
		retry.Delay(mecaWaitInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		budget := fmt.Sprintf("%d x %s", mecaWaitRetries, mecaWaitInterval)
		s.markError(ctx, mecaID, fmt.Sprintf("%s did not complete within %s: %v", operation, budget, err))
		return
	}

	s.logger.Info().Str("meca_id", mecaID).Str("workflow_id", workflowID).Msg(operation + " workflow completed")
}

func (s *MECAService) GetByID(ctx context.Context, id string) (*model.MECA, error) {
	meca, err := scanMECA(s.db.QueryRow(ctx,
		`SELECT `+mecaColumns+` FROM mecas WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeMECA, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get meca %s: %w", id, err)
	}
	return meca, nil
}

func (s *MECAService) List(ctx context.Context, tenantID string) ([]model.MECA, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+mecaColumns+` FROM mecas WHERE tenant_id = $1 AND deleted_at = $2 ORDER BY name`,
		tenantID, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list mecas: %w", err)
	}
	defer rows.Close()

	var mecas []model.MECA
	for rows.Next() {
		m, err := scanMECA(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meca: %w", err)
		}
		mecas = append(mecas, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mecas: %w", err)
	}
	return mecas, nil
}

// Delete starts the delete workflow; the workflow's activities tear the
// constituents down and soft-delete the row.
func (s *MECAService) Delete(ctx context.Context, id string) error {
	meca, err := s.transition(ctx, id, model.StatusPendingDelete, model.DeletableStates,
		model.EventDelete, "MECA delete started")
	if err != nil {
		return err
	}

	workflowID := "meca-delete-" + meca.ID
	_, err = s.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, "DeleteMECAWorkflow", meca.ID)
	if err != nil {
		s.markError(ctx, id, "start delete workflow: "+err.Error())
		return fmt.Errorf("start DeleteMECAWorkflow: %w", err)
	}

	s.pool.Spawn("meca-delete-wait-"+id, func(ctx context.Context) {
		s.awaitWorkflow(ctx, id, workflowID, "MECA delete")
	})
	return nil
}

// SetConstituents stores the chain's constituent instance ids and, once
// known, their management URLs. Workflow activities call this as the chain
// comes up.
func (s *MECAService) SetConstituents(ctx context.Context, id string, meaIDs, mgmtURLs map[string]string) error {
	encodedIDs, err := json.Marshal(meaIDs)
	if err != nil {
		return fmt.Errorf("encode meca mea_ids: %w", err)
	}
	var encodedURLs []byte
	if mgmtURLs != nil {
		if encodedURLs, err = json.Marshal(mgmtURLs); err != nil {
			return fmt.Errorf("encode meca mgmt_urls: %w", err)
		}
	}

	_, err = s.db.Exec(ctx,
		`UPDATE mecas SET mea_ids = $1, mgmt_urls = COALESCE($2, mgmt_urls), updated_at = now() WHERE id = $3`,
		encodedIDs, encodedURLs, id,
	)
	if err != nil {
		return fmt.Errorf("store meca %s constituents: %w", id, err)
	}
	return nil
}

// Complete moves the chain from PENDING_CREATE to ACTIVE.
func (s *MECAService) Complete(ctx context.Context, id string) error {
	_, err := s.transition(ctx, id, model.StatusActive, []string{model.StatusPendingCreate},
		model.EventCreate, "MECA create completed")
	return err
}

// Fail marks the chain ERROR with a reason.
func (s *MECAService) Fail(ctx context.Context, id, reason string) error {
	s.markError(ctx, id, reason)
	return nil
}

// FinalizeDelete soft-deletes the chain row after the delete workflow has
// torn the constituents down. Idempotent past the pre step.
func (s *MECAService) FinalizeDelete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE mecas SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("soft-delete meca %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		s.recordEvent(ctx, id, model.StatusPendingDelete, model.EventDelete, "MECA deleted")
	}
	return nil
}

func (s *MECAService) transition(ctx context.Context, id, newStatus string, guards []string, eventType, details string) (*model.MECA, error) {
	meca, err := scanMECA(s.db.QueryRow(ctx,
		`UPDATE mecas SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = ANY($3) AND deleted_at = $4
		 RETURNING `+mecaColumns,
		newStatus, id, guards, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := s.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &ConflictError{Resource: model.ResTypeMECA, ID: id, Status: current.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("transition meca %s to %s: %w", id, newStatus, err)
	}

	s.recordEvent(ctx, id, newStatus, eventType, details)
	return meca, nil
}

func (s *MECAService) markError(ctx context.Context, id, reason string) {
	if _, err := s.db.Exec(ctx,
		`UPDATE mecas SET status = $1, error_reason = $2, updated_at = now() WHERE id = $3 AND deleted_at = $4`,
		model.StatusError, reason, id, model.NotDeleted,
	); err != nil {
		s.logger.Error().Str("meca_id", id).Err(err).Msg("mark error failed")
		return
	}
	s.recordEvent(ctx, id, model.StatusError, model.EventUpdate, reason)
}

func (s *MECAService) recordEvent(ctx context.Context, id, state, eventType, details string) {
	if err := s.events.Record(ctx, id, model.ResTypeMECA, state, eventType, details); err != nil {
		s.logger.Error().Str("meca_id", id).Err(err).Msg("event write failed")
	}
}
