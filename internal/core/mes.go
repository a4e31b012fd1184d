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

	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/platform"
)

// Constituent polling budget.
const (
	mesWaitRetries  = 30
	mesWaitInterval = 6 * time.Second
)

// MESService orchestrates composed services: one MES owns one MEA per
// constituent MEAD of its descriptor.
type MESService struct {
	db     DB
	events *EventService
	mesds  *MESDService
	meads  *MEADService
	meas   *MEAService
	pool   *Pool
	logger zerolog.Logger
}

func NewMESService(db DB, events *EventService, mesds *MESDService, meads *MEADService,
	meas *MEAService, pool *Pool, logger zerolog.Logger) *MESService {
	return &MESService{
		db:     db,
		events: events,
		mesds:  mesds,
		meads:  meads,
		meas:   meas,
		pool:   pool,
		logger: logger.With().Str("component", "mes").Logger(),
	}
}

// CreateMESRequest describes a new composed service.
type CreateMESRequest struct {
	TenantID    string
	Name        string
	Description string
	MESDID      string
	VIMID       string
}

const mesColumns = `id, tenant_id, name, description, mesd_id, vim_id, mea_ids, mgmt_urls, status, error_reason, created_at, updated_at`

func scanMES(row pgx.Row) (*model.MES, error) {
	var m model.MES
	var meaIDs, mgmtURLs []byte
	err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Description, &m.MESDID, &m.VIMID,
		&meaIDs, &mgmtURLs, &m.Status, &m.ErrorReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meaIDs) > 0 {
		if err := json.Unmarshal(meaIDs, &m.MEAIDs); err != nil {
			return nil, fmt.Errorf("decode mes mea_ids: %w", err)
		}
	}
	if len(mgmtURLs) > 0 {
		if err := json.Unmarshal(mgmtURLs, &m.MgmtURLs); err != nil {
			return nil, fmt.Errorf("decode mes mgmt_urls: %w", err)
		}
	}
	return &m, nil
}

// Create instantiates every constituent MEA and resolves the service status
// once all of them settle. The wait phase runs on the pool.
func (s *MESService) Create(ctx context.Context, req CreateMESRequest) (*model.MES, error) {
	if req.Name == "" {
		return nil, &ValidationError{Msg: "mes name is required"}
	}

	mesd, err := s.mesds.GetByID(ctx, req.MESDID)
	if err != nil {
		return nil, err
	}

	// Resolve every constituent template up front so a dangling name
	// fails before anything is created.
	meadIDs := make(map[string]string, len(mesd.MEADs))
	for _, meadName := range mesd.MEADs {
		mead, err := s.meads.GetByName(ctx, req.TenantID, meadName)
		if err != nil {
			return nil, err
		}
		meadIDs[meadName] = mead.ID
	}

	mes := &model.MES{
		ID:          platform.NewID(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		MESDID:      mesd.ID,
		VIMID:       req.VIMID,
		Status:      model.StatusPendingCreate,
		MEAIDs:      make(map[string]string, len(mesd.MEADs)),
	}
	now := time.Now().UTC()
	mes.CreatedAt = now
	mes.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO mess (id, tenant_id, name, description, mesd_id, vim_id, status, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		mes.ID, mes.TenantID, mes.Name, mes.Description, mes.MESDID, mes.VIMID,
		mes.Status, mes.CreatedAt, mes.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert mes: %w", err)
	}
	s.recordEvent(ctx, mes.ID, mes.Status, model.EventCreate, "MES created")

	for meadName, meadID := range meadIDs {
		mea, err := s.meas.Create(ctx, CreateMEARequest{
			TenantID:    req.TenantID,
			Name:        platform.GenerateResourceName(req.Name, meadName),
			Description: fmt.Sprintf("constituent of mes %s", mes.ID),
			MEADID:      meadID,
			VIMID:       req.VIMID,
		})
		if err != nil {
			s.markError(ctx, mes.ID, fmt.Sprintf("constituent %s create failed: %v", meadName, err))
			return nil, fmt.Errorf("create constituent %s: %w", meadName, err)
		}
		mes.MEAIDs[meadName] = mea.ID
	}

	if err := s.storeConstituents(ctx, mes.ID, mes.MEAIDs, nil); err != nil {
		return nil, err
	}

	s.pool.Spawn("mes-create-wait-"+mes.ID, func(ctx context.Context) {
		s.createWait(ctx, mes)
	})
	return mes, nil
}

// createWait polls the constituents until all are ACTIVE, any is ERROR, or
// the budget runs out.
func (s *MESService) createWait(ctx context.Context, mes *model.MES) {
	mgmtURLs := make(map[string]string, len(mes.MEAIDs))

	err := retry.Do(func() error {
		for meadName, meaID := range mes.MEAIDs {
			mea, err := s.meas.GetByID(ctx, meaID)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("constituent %s: %w", meadName, err))
			}
			switch mea.Status {
			case model.StatusActive:
				if mea.MgmtURL != nil {
					mgmtURLs[meadName] = *mea.MgmtURL
				}
			case model.StatusError, model.StatusDead:
				reason := "constituent failed"
				if mea.ErrorReason != nil {
					reason = *mea.ErrorReason
				}
				return retry.Unrecoverable(fmt.Errorf("constituent %s is %s: %s", meadName, mea.Status, reason))
			default:
				return fmt.Errorf("constituent %s still %s", meadName, mea.Status)
			}
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(mesWaitRetries),
		retry.Delay(mesWaitInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		budget := (&WaitTimeoutError{
			Resource: model.ResTypeMES,
			ID:       mes.ID,
			Budget:   fmt.Sprintf("%d x %s", mesWaitRetries, mesWaitInterval),
		}).Error()
		s.markError(ctx, mes.ID, budget+": "+err.Error())
		return
	}

	if err := s.storeConstituents(ctx, mes.ID, mes.MEAIDs, mgmtURLs); err != nil {
		s.logger.Error().Str("mes_id", mes.ID).Err(err).Msg("store constituents failed")
		return
	}
	if _, err := s.transition(ctx, mes.ID, model.StatusActive, []string{model.StatusPendingCreate},
		model.EventCreate, "MES create completed"); err != nil {
		s.logger.Error().Str("mes_id", mes.ID).Err(err).Msg("mes create post failed")
	}
}

func (s *MESService) GetByID(ctx context.Context, id string) (*model.MES, error) {
	mes, err := scanMES(s.db.QueryRow(ctx,
		`SELECT `+mesColumns+` FROM mess WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Resource: model.ResTypeMES, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get mes %s: %w", id, err)
	}
	return mes, nil
}

func (s *MESService) List(ctx context.Context, tenantID string) ([]model.MES, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+mesColumns+` FROM mess WHERE tenant_id = $1 AND deleted_at = $2 ORDER BY name`,
		tenantID, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list mess: %w", err)
	}
	defer rows.Close()

	var mess []model.MES
	for rows.Next() {
		m, err := scanMES(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mes: %w", err)
		}
		mess = append(mess, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mess: %w", err)
	}
	return mess, nil
}

// Delete tears the constituents down and soft-deletes the service once they
// are gone.
func (s *MESService) Delete(ctx context.Context, id string) error {
	mes, err := s.transition(ctx, id, model.StatusPendingDelete, model.DeletableStates,
		model.EventDelete, "MES delete started")
	if err != nil {
		return err
	}

	for meadName, meaID := range mes.MEAIDs {
		if err := s.meas.Delete(ctx, meaID); err != nil && !IsNotFound(err) {
			s.markError(ctx, id, fmt.Sprintf("constituent %s delete failed: %v", meadName, err))
			return fmt.Errorf("delete constituent %s: %w", meadName, err)
		}
	}

	s.pool.Spawn("mes-delete-wait-"+id, func(ctx context.Context) {
		s.deleteWait(ctx, mes)
	})
	return nil
}

func (s *MESService) deleteWait(ctx context.Context, mes *model.MES) {
	err := retry.Do(func() error {
		for meadName, meaID := range mes.MEAIDs {
			_, err := s.meas.GetByID(ctx, meaID)
			if err == nil {
				return fmt.Errorf("constituent %s still present", meadName)
			}
			if !IsNotFound(err) {
				return retry.Unrecoverable(err)
			}
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(mesWaitRetries),
		retry.Delay(mesWaitInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		s.markError(ctx, mes.ID, "MES delete wait failed: "+err.Error())
		return
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE mess SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		mes.ID, model.NotDeleted,
	); err != nil {
		s.logger.Error().Str("mes_id", mes.ID).Err(err).Msg("mes soft-delete failed")
		return
	}
	s.recordEvent(ctx, mes.ID, model.StatusPendingDelete, model.EventDelete, "MES deleted")
}

func (s *MESService) transition(ctx context.Context, id, newStatus string, guards []string, eventType, details string) (*model.MES, error) {
	mes, err := scanMES(s.db.QueryRow(ctx,
		`UPDATE mess SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = ANY($3) AND deleted_at = $4
		 RETURNING `+mesColumns,
		newStatus, id, guards, model.NotDeleted))
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := s.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &ConflictError{Resource: model.ResTypeMES, ID: id, Status: current.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("transition mes %s to %s: %w", id, newStatus, err)
	}

	s.recordEvent(ctx, id, newStatus, eventType, details)
	return mes, nil
}

func (s *MESService) markError(ctx context.Context, id, reason string) {
	if _, err := s.db.Exec(ctx,
		`UPDATE mess SET status = $1, error_reason = $2, updated_at = now() WHERE id = $3 AND deleted_at = $4`,
		model.StatusError, reason, id, model.NotDeleted,
	); err != nil {
		s.logger.Error().Str("mes_id", id).Err(err).Msg("mark error failed")
		return
	}
	s.recordEvent(ctx, id, model.StatusError, model.EventUpdate, reason)
}

func (s *MESService) storeConstituents(ctx context.Context, id string, meaIDs, mgmtURLs map[string]string) error {
	encodedIDs, err := json.Marshal(meaIDs)
	if err != nil {
		return fmt.Errorf("encode mes mea_ids: %w", err)
	}
	var encodedURLs []byte
	if mgmtURLs != nil {
		if encodedURLs, err = json.Marshal(mgmtURLs); err != nil {
			return fmt.Errorf("encode mes mgmt_urls: %w", err)
		}
	}

	_, err = s.db.Exec(ctx,
		`UPDATE mess SET mea_ids = $1, mgmt_urls = COALESCE($2, mgmt_urls), updated_at = now() WHERE id = $3`,
		encodedIDs, encodedURLs, id,
	)
	if err != nil {
		return fmt.Errorf("store mes %s constituents: %w", id, err)
	}
	return nil
}

func (s *MESService) recordEvent(ctx context.Context, id, state, eventType, details string) {
	if err := s.events.Record(ctx, id, model.ResTypeMES, state, eventType, details); err != nil {
		s.logger.Error().Str("mes_id", id).Err(err).Msg("event write failed")
	}
}
