package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/apmec/internal/descriptor"
	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/monitor"
	"github.com/edvin/apmec/internal/platform"
)

// CreateMEARequest describes a new instance. Exactly one of MEADID and
// MEADTemplate must be set; an inline template is onboarded automatically
// and deleted together with the instance.
type CreateMEARequest struct {
	TenantID     string
	Name         string
	Description  string
	MEADID       string
	MEADTemplate string
	VIMID        string
	Region       string
	ParamValues  map[string]string
	Config       string
	Attributes   map[string]string
}

// meaRuntime carries everything resolved during the pre step through the
// backend call and wait phases.
type meaRuntime struct {
	mea   *model.MEA
	mead  *model.MEAD
	info  *descriptor.MEADInfo
	vim   *model.VIMRecord
	infra driver.InfraDriver
	mgmt  driver.MgmtDriver
}

// Create runs the pre step and backend call synchronously, then hands the
// wait phase to the worker pool. The returned instance is PENDING_CREATE.
func (s *MEAService) Create(ctx context.Context, req CreateMEARequest) (*model.MEA, error) {
	rt, err := s.createPre(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.createCall(ctx, rt); err != nil {
		return rt.mea, err
	}

	s.pool.Spawn("mea-create-wait-"+rt.mea.ID, func(ctx context.Context) {
		s.createWait(ctx, rt, true)
	})
	return rt.mea, nil
}

// CreateSync runs the full create chain inline and returns the completed
// instance. Monitor and alarm registration are skipped; respawn and
// workflow activities do their own.
func (s *MEAService) CreateSync(ctx context.Context, req CreateMEARequest) (*model.MEA, error) {
	rt, err := s.createPre(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.createCall(ctx, rt); err != nil {
		return rt.mea, err
	}
	if err := s.createWait(ctx, rt, false); err != nil {
		return rt.mea, err
	}
	return s.GetByID(ctx, rt.mea.ID)
}

func (s *MEAService) createPre(ctx context.Context, req CreateMEARequest) (*meaRuntime, error) {
	if req.Name == "" {
		return nil, &ValidationError{Msg: "mea name is required"}
	}
	if (req.MEADID == "") == (req.MEADTemplate == "") {
		return nil, &ValidationError{Msg: "exactly one of mead_id and mead_template is required"}
	}

	var mead *model.MEAD
	var err error
	if req.MEADTemplate != "" {
		mead, err = s.meads.Create(ctx, &model.MEAD{
			TenantID:       req.TenantID,
			Name:           platform.GenerateResourceName(req.Name, model.TemplateSourceInline),
			TemplateSource: model.TemplateSourceInline,
		}, req.MEADTemplate)
	} else {
		mead, err = s.meads.GetByID(ctx, req.MEADID)
	}
	if err != nil {
		return nil, err
	}

	info, err := descriptor.ParseMEAD(mead.Attributes[model.DescriptorAttrKey])
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	vim, err := s.vims.GetVIM(ctx, req.VIMID, req.Region)
	if err != nil {
		return nil, err
	}

	infra, err := s.drivers.Infra.Get(vim.Type)
	if err != nil {
		return nil, err
	}
	mgmtName := mead.MgmtDriver
	if mgmtName == "" {
		mgmtName = "noop"
	}
	mgmt, err := s.drivers.Mgmt.Get(mgmtName)
	if err != nil {
		return nil, err
	}

	mea := &model.MEA{
		ID:          platform.NewID(),
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		MEADID:      mead.ID,
		VIMID:       vim.ID,
		Status:      model.StatusPendingCreate,
		Attributes:  make(map[string]string),
	}
	now := time.Now().UTC()
	mea.CreatedAt = now
	mea.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO meas (id, tenant_id, name, description, mead_id, vim_id, status, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		mea.ID, mea.TenantID, mea.Name, mea.Description, mea.MEADID, mea.VIMID,
		mea.Status, mea.CreatedAt, mea.UpdatedAt, model.NotDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("insert mea: %w", err)
	}

	attrs := make(map[string]string, len(req.Attributes)+3)
	for k, v := range req.Attributes {
		attrs[k] = v
	}
	if len(req.ParamValues) > 0 {
		encoded, err := json.Marshal(req.ParamValues)
		if err != nil {
			return nil, fmt.Errorf("encode param_values: %w", err)
		}
		attrs[model.AttrParamValues] = string(encoded)
	}
	if req.Config != "" {
		attrs[model.AttrConfig] = req.Config
	}
	if info.Monitoring != nil {
		encoded, err := json.Marshal(info.Monitoring)
		if err != nil {
			return nil, fmt.Errorf("encode monitoring policy: %w", err)
		}
		attrs[model.AttrMonitoringPolicy] = string(encoded)
	}
	if err := saveAttributes(ctx, s.db, "mea_attributes", "mea_id", mea.ID, attrs, true); err != nil {
		return nil, err
	}
	for k, v := range attrs {
		if !strings.Contains(k, secretAttrMarker) {
			mea.Attributes[k] = v
		}
	}

	s.recordEvent(ctx, mea.ID, mea.Status, model.EventCreate, "MEA created")

	return &meaRuntime{mea: mea, mead: mead, info: info, vim: vim, infra: infra, mgmt: mgmt}, nil
}

// createCall invokes the backend create. A synchronous failure is
// compensated by removing the half-created instance, so a failed create
// leaves no row behind.
func (s *MEAService) createCall(ctx context.Context, rt *meaRuntime) error {
	if err := rt.mgmt.CreatePre(ctx, rt.mea); err != nil {
		s.rollbackCreate(ctx, rt, "mgmt create_pre failed: "+err.Error())
		return fmt.Errorf("mgmt create_pre for mea %s: %w", rt.mea.ID, err)
	}

	instanceID, err := rt.infra.Create(ctx, rt.vim.Auth, driver.CreateSpec{
		Name:        rt.mea.Name,
		Descriptor:  rt.mead.Attributes[model.DescriptorAttrKey],
		ParamValues: decodeParamValues(rt.mea.Attributes[model.AttrParamValues]),
		Attributes:  rt.mea.Attributes,
	})
	if err != nil {
		s.rollbackCreate(ctx, rt, "backend create failed: "+err.Error())
		return fmt.Errorf("backend create for mea %s: %w", rt.mea.ID, err)
	}

	rt.mea.InstanceID = &instanceID
	if err := s.setInstanceInfo(ctx, rt.mea.ID, &instanceID, nil); err != nil {
		return err
	}
	return nil
}

// rollbackCreate removes an instance whose synchronous create step failed.
// No backend stack exists yet, so the row is soft-deleted with a DELETE
// event and an inline template onboarded for it goes too.
func (s *MEAService) rollbackCreate(ctx context.Context, rt *meaRuntime, reason string) {
	s.logger.Error().Str("mea_id", rt.mea.ID).Str("reason", reason).Msg("create failed, rolling back")

	tag, err := s.db.Exec(ctx,
		`UPDATE meas SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		rt.mea.ID, model.NotDeleted,
	)
	if err != nil {
		s.logger.Error().Str("mea_id", rt.mea.ID).Err(err).Msg("create rollback failed")
		return
	}
	if tag.RowsAffected() == 0 {
		return
	}

	if rt.mead.TemplateSource == model.TemplateSourceInline {
		if err := s.meads.Delete(ctx, rt.mead.ID); err != nil && !IsNotFound(err) {
			s.logger.Error().Str("mead_id", rt.mead.ID).Err(err).Msg("inline template cleanup failed")
		}
	}

	s.recordEvent(ctx, rt.mea.ID, model.StatusPendingCreate, model.EventDelete,
		"MEA removed after create failure: "+reason)
}

// createWait blocks until the backend reaches a terminal state, then runs
// the post step. A wait failure resolves the instance to ERROR with the
// reason persisted; the stack stays for a later delete to reclaim.
func (s *MEAService) createWait(ctx context.Context, rt *meaRuntime, register bool) error {
	mgmtURL, err := rt.infra.CreateWait(ctx, rt.vim.Auth, rt.mea.BackendInstanceID())
	if err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "backend create wait failed: "+err.Error())
		return fmt.Errorf("backend create wait for mea %s: %w", rt.mea.ID, err)
	}
	return s.createPost(ctx, rt, mgmtURL, register)
}

func (s *MEAService) createPost(ctx context.Context, rt *meaRuntime, mgmtURL string, register bool) error {
	mea, err := s.transition(ctx, rt.mea.ID, model.StatusActive, model.CreateStates,
		model.EventCreate, "MEA create completed")
	if err != nil {
		return err
	}

	if err := s.setInstanceInfo(ctx, mea.ID, rt.mea.InstanceID, &mgmtURL); err != nil {
		return err
	}
	mea.MgmtURL = &mgmtURL
	mea.Attributes = rt.mea.Attributes

	if err := rt.mgmt.CreatePost(ctx, mea); err != nil {
		_, _ = s.MarkError(ctx, mea.ID, "mgmt create_post failed: "+err.Error())
		return fmt.Errorf("mgmt create_post for mea %s: %w", mea.ID, err)
	}

	if register {
		if rt.info.Monitoring != nil {
			if err := s.RegisterMonitor(mea); err != nil {
				s.logger.Error().Str("mea_id", mea.ID).Err(err).Msg("monitor registration failed")
			}
		}
		if err := s.bindAlarmPolicies(ctx, mea, rt.info.Policies); err != nil {
			s.logger.Error().Str("mea_id", mea.ID).Err(err).Msg("alarm binding failed")
		}
		if config, ok := mea.Attributes[model.AttrConfig]; ok && config != "" {
			s.scheduleConfigPush(mea.ID, config)
		}
	}

	return nil
}

// scheduleConfigPush applies the instance's config attribute through the
// update path once the boot delay has elapsed.
func (s *MEAService) scheduleConfigPush(meaID, config string) {
	s.pool.Spawn("mea-config-"+meaID, func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.bootWait):
		}
		if err := s.UpdateSync(ctx, meaID, config); err != nil {
			s.logger.Error().Str("mea_id", meaID).Err(err).Msg("config push failed")
		}
	})
}

// Update applies new config through the pre/call/wait/post chain; the wait
// phase runs on the pool. Observing PENDING_UPDATE means another update
// owns the instance.
func (s *MEAService) Update(ctx context.Context, id, config string) (*model.MEA, error) {
	rt, err := s.updatePre(ctx, id, config)
	if err != nil {
		return nil, err
	}

	if err := s.updateCall(ctx, rt); err != nil {
		return rt.mea, err
	}

	s.pool.Spawn("mea-update-wait-"+id, func(ctx context.Context) {
		s.updateWait(ctx, rt)
	})
	return rt.mea, nil
}

// UpdateSync runs the full update chain inline.
func (s *MEAService) UpdateSync(ctx context.Context, id, config string) error {
	rt, err := s.updatePre(ctx, id, config)
	if err != nil {
		return err
	}
	if err := s.updateCall(ctx, rt); err != nil {
		return err
	}
	return s.updateWait(ctx, rt)
}

func (s *MEAService) updatePre(ctx context.Context, id, config string) (*meaRuntime, error) {
	mea, err := s.transition(ctx, id, model.StatusPendingUpdate, []string{model.StatusActive},
		model.EventUpdate, "MEA update started")
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) && conflict.Status == model.StatusPendingUpdate {
			return nil, &InUseError{Resource: model.ResTypeMEA, ID: id, Detail: "update already in progress"}
		}
		return nil, err
	}

	if config != "" {
		if err := s.SetAttribute(ctx, id, model.AttrConfig, config); err != nil {
			return nil, err
		}
	}

	return s.resolveRuntime(ctx, mea)
}

func (s *MEAService) updateCall(ctx context.Context, rt *meaRuntime) error {
	if err := rt.mgmt.UpdatePre(ctx, rt.mea); err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "mgmt update_pre failed: "+err.Error())
		return fmt.Errorf("mgmt update_pre for mea %s: %w", rt.mea.ID, err)
	}

	err := rt.infra.Update(ctx, rt.vim.Auth, rt.mea.BackendInstanceID(), driver.CreateSpec{
		Name:       rt.mea.Name,
		Descriptor: rt.mead.Attributes[model.DescriptorAttrKey],
		Attributes: rt.mea.Attributes,
	})
	if err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "backend update failed: "+err.Error())
		return fmt.Errorf("backend update for mea %s: %w", rt.mea.ID, err)
	}
	return nil
}

func (s *MEAService) updateWait(ctx context.Context, rt *meaRuntime) error {
	mgmtURL, err := rt.infra.UpdateWait(ctx, rt.vim.Auth, rt.mea.BackendInstanceID())
	if err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "backend update wait failed: "+err.Error())
		return fmt.Errorf("backend update wait for mea %s: %w", rt.mea.ID, err)
	}

	mea, err := s.transition(ctx, rt.mea.ID, model.StatusActive, []string{model.StatusPendingUpdate},
		model.EventUpdate, "MEA update completed")
	if err != nil {
		return err
	}
	if err := s.setInstanceInfo(ctx, mea.ID, rt.mea.InstanceID, &mgmtURL); err != nil {
		return err
	}

	if err := rt.mgmt.UpdatePost(ctx, mea); err != nil {
		_, _ = s.MarkError(ctx, mea.ID, "mgmt update_post failed: "+err.Error())
		return fmt.Errorf("mgmt update_post for mea %s: %w", mea.ID, err)
	}
	return nil
}

// Delete starts teardown; the wait and post steps run on the pool.
func (s *MEAService) Delete(ctx context.Context, id string) error {
	rt, err := s.deletePre(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteCall(ctx, rt); err != nil {
		return err
	}
	s.pool.Spawn("mea-delete-wait-"+id, func(ctx context.Context) {
		s.deleteWait(ctx, rt)
	})
	return nil
}

// DeleteSync runs the full delete chain inline, for workflow activities.
func (s *MEAService) DeleteSync(ctx context.Context, id string) error {
	rt, err := s.deletePre(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteCall(ctx, rt); err != nil {
		return err
	}
	return s.deleteWait(ctx, rt)
}

func (s *MEAService) deletePre(ctx context.Context, id string) (*meaRuntime, error) {
	mea, err := s.transition(ctx, id, model.StatusPendingDelete, model.DeletableStates,
		model.EventDelete, "MEA delete started")
	if err != nil {
		return nil, err
	}

	s.monitor.Delete(id)
	return s.resolveRuntime(ctx, mea)
}

func (s *MEAService) deleteCall(ctx context.Context, rt *meaRuntime) error {
	if err := rt.mgmt.DeletePre(ctx, rt.mea); err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "mgmt delete_pre failed: "+err.Error())
		return fmt.Errorf("mgmt delete_pre for mea %s: %w", rt.mea.ID, err)
	}

	if rt.mea.BackendInstanceID() == "" {
		return nil
	}
	if err := rt.infra.Delete(ctx, rt.vim.Auth, rt.mea.BackendInstanceID()); err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "backend delete failed: "+err.Error())
		return fmt.Errorf("backend delete for mea %s: %w", rt.mea.ID, err)
	}
	return nil
}

func (s *MEAService) deleteWait(ctx context.Context, rt *meaRuntime) error {
	if rt.mea.BackendInstanceID() != "" {
		if err := rt.infra.DeleteWait(ctx, rt.vim.Auth, rt.mea.BackendInstanceID()); err != nil {
			_, _ = s.MarkError(ctx, rt.mea.ID, "backend delete wait failed: "+err.Error())
			return fmt.Errorf("backend delete wait for mea %s: %w", rt.mea.ID, err)
		}
	}
	return s.deletePost(ctx, rt)
}

func (s *MEAService) deletePost(ctx context.Context, rt *meaRuntime) error {
	if err := rt.mgmt.DeletePost(ctx, rt.mea); err != nil {
		s.logger.Error().Str("mea_id", rt.mea.ID).Err(err).Msg("mgmt delete_post failed")
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE meas SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		rt.mea.ID, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("soft-delete mea %s: %w", rt.mea.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already gone; deletion is idempotent past the pre step.
		return nil
	}

	if rt.mead.TemplateSource == model.TemplateSourceInline {
		if err := s.meads.Delete(ctx, rt.mead.ID); err != nil && !IsNotFound(err) {
			s.logger.Error().Str("mead_id", rt.mead.ID).Err(err).Msg("inline template cleanup failed")
		}
	}

	s.recordEvent(ctx, rt.mea.ID, model.StatusPendingDelete, model.EventDelete, "MEA deleted")
	return nil
}

// Scale moves an ACTIVE instance through PENDING_SCALE_IN/OUT and back. A
// wait failure leaves the instance ERROR with the reason persisted.
func (s *MEAService) Scale(ctx context.Context, id, policyName, scaleType string) (*model.MEA, error) {
	var pending string
	switch scaleType {
	case model.ScaleTypeIn:
		pending = model.StatusPendingScaleIn
	case model.ScaleTypeOut:
		pending = model.StatusPendingScaleOut
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid scale type %q", scaleType)}
	}

	mea, err := s.transition(ctx, id, pending, model.ScalableStates,
		model.EventScale, fmt.Sprintf("MEA scale %s started (policy %s)", scaleType, policyName))
	if err != nil {
		return nil, err
	}

	rt, err := s.resolveRuntime(ctx, mea)
	if err != nil {
		return nil, err
	}

	resourceID, err := rt.infra.Scale(ctx, rt.vim.Auth, rt.mea.BackendInstanceID(), policyName, scaleType)
	if err != nil {
		_, _ = s.MarkError(ctx, id, "backend scale failed: "+err.Error())
		return nil, fmt.Errorf("backend scale for mea %s: %w", id, err)
	}

	s.pool.Spawn("mea-scale-wait-"+id, func(ctx context.Context) {
		s.scaleWait(ctx, rt, pending, resourceID)
	})
	return mea, nil
}

func (s *MEAService) scaleWait(ctx context.Context, rt *meaRuntime, pending, resourceID string) error {
	mgmtURL, err := rt.infra.ScaleWait(ctx, rt.vim.Auth, rt.mea.BackendInstanceID(), resourceID)
	if err != nil {
		_, _ = s.MarkError(ctx, rt.mea.ID, "backend scale wait failed: "+err.Error())
		return fmt.Errorf("backend scale wait for mea %s: %w", rt.mea.ID, err)
	}

	mea, err := s.transition(ctx, rt.mea.ID, model.StatusActive, []string{pending},
		model.EventScale, "MEA scale completed")
	if err != nil {
		return err
	}
	return s.setInstanceInfo(ctx, mea.ID, rt.mea.InstanceID, &mgmtURL)
}

// PurgeBackend deletes an instance's backend stack directly, without the
// delete pre step. Respawn uses this to clear a dead stack before creating
// the replacement.
func (s *MEAService) PurgeBackend(ctx context.Context, mea *model.MEA) error {
	if mea.BackendInstanceID() == "" {
		return nil
	}
	vim, err := s.vims.GetVIM(ctx, mea.VIMID, "")
	if err != nil {
		return err
	}
	infra, err := s.drivers.Infra.Get(vim.Type)
	if err != nil {
		return err
	}
	if err := infra.Delete(ctx, vim.Auth, mea.BackendInstanceID()); err != nil {
		return fmt.Errorf("purge backend for mea %s: %w", mea.ID, err)
	}
	return infra.DeleteWait(ctx, vim.Auth, mea.BackendInstanceID())
}

// Retire soft-deletes an instance row directly, without touching the
// backend. Respawn retires the dead row after purging its stack so the
// replacement can reuse the name.
func (s *MEAService) Retire(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE meas SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at = $2`,
		id, model.NotDeleted,
	)
	if err != nil {
		return fmt.Errorf("retire mea %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: model.ResTypeMEA, ID: id}
	}
	s.monitor.Delete(id)
	s.recordEvent(ctx, id, model.StatusDead, model.EventDelete, "MEA retired")
	return nil
}

// RebindAlarms recomputes the alarm trigger URLs for an instance from its
// template's alarming policies.
func (s *MEAService) RebindAlarms(ctx context.Context, mea *model.MEA) error {
	policies, err := s.meads.Policies(ctx, mea.MEADID)
	if err != nil {
		return err
	}
	return s.bindAlarmPolicies(ctx, mea, policies)
}

// RegisterMonitor registers an instance with the monitor engine. The action
// callback dispatches through the policy invoker on a background context.
func (s *MEAService) RegisterMonitor(mea *model.MEA) error {
	inst, err := monitor.NewHostingInstance(mea, func(action string) {
		if s.invoker == nil {
			s.logger.Warn().Str("mea_id", mea.ID).Str("action", action).Msg("no policy invoker wired, action dropped")
			return
		}
		if err := s.invoker.Invoke(context.Background(), action, mea, nil); err != nil {
			s.logger.Error().Str("mea_id", mea.ID).Str("action", action).Err(err).Msg("policy action failed")
		}
	})
	if err != nil {
		return err
	}
	s.monitor.Add(inst)
	return nil
}

// MonitorSource rebuilds monitor registrations for every ACTIVE instance
// carrying a monitoring policy. Used by startup reconciliation.
func (s *MEAService) MonitorSource(ctx context.Context) ([]*monitor.HostingInstance, error) {
	meas, err := s.ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return nil, err
	}

	var insts []*monitor.HostingInstance
	for i := range meas {
		mea, err := s.GetByID(ctx, meas[i].ID)
		if err != nil {
			return nil, err
		}
		if _, ok := mea.Attributes[model.AttrMonitoringPolicy]; !ok {
			continue
		}
		m := mea
		inst, err := monitor.NewHostingInstance(m, func(action string) {
			if s.invoker == nil {
				return
			}
			if err := s.invoker.Invoke(context.Background(), action, m, nil); err != nil {
				s.logger.Error().Str("mea_id", m.ID).Str("action", action).Err(err).Msg("policy action failed")
			}
		})
		if err != nil {
			s.logger.Warn().Str("mea_id", m.ID).Err(err).Msg("skipping unmonitorable instance")
			continue
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

// bindAlarmPolicies composes callback URLs for every alarming policy and
// stores them on the instance.
func (s *MEAService) bindAlarmPolicies(ctx context.Context, mea *model.MEA, policies []model.PolicyDef) error {
	urls := make(map[string]string)
	for _, p := range policies {
		if p.Type != model.PolicyTypeAlarming {
			continue
		}
		bound, err := s.alarms.UpdateMEAWithAlarm(ctx, mea, p, s.FindPolicy)
		if err != nil {
			return err
		}
		for trigger, url := range bound {
			urls[trigger] = url
		}
	}
	if len(urls) == 0 {
		return nil
	}

	encoded, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encode alarm bindings: %w", err)
	}
	return s.SetAttribute(ctx, mea.ID, model.AttrAlarmingPolicy, string(encoded))
}

// CreateTrigger handles an inbound alarm notification for a bound trigger.
// The trigger, action and access key must match a URL handed out when the
// alarm policy was bound. Non-firing notifications are acknowledged and
// dropped.
func (s *MEAService) CreateTrigger(ctx context.Context, meaID, triggerName, actionName, accessKey string, payload driver.AlarmPayload) error {
	mea, err := s.GetByID(ctx, meaID)
	if err != nil {
		return err
	}

	raw, ok := mea.Attributes[model.AttrAlarmingPolicy]
	if !ok {
		return &ValidationError{Msg: fmt.Sprintf("no alarm bindings on mea %s", meaID)}
	}
	var bindings map[string]string
	if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
		return fmt.Errorf("decode alarm bindings for mea %s: %w", meaID, err)
	}
	bound, ok := bindings[triggerName]
	if !ok {
		return &ValidationError{Msg: fmt.Sprintf("no alarm trigger %q on mea %s", triggerName, meaID)}
	}
	if actionName == "" || accessKey == "" || !strings.HasSuffix(bound, "/"+actionName+"/"+accessKey) {
		return &ValidationError{Msg: fmt.Sprintf("trigger %q: action or access key does not match the bound URL", triggerName)}
	}

	firing, err := s.alarms.ProcessAlarm(mea, payload)
	if err != nil {
		return err
	}
	if !firing {
		s.recordEvent(ctx, meaID, mea.Status, model.EventMonitor, "Alarm notification ignored: not firing")
		return nil
	}

	s.recordEvent(ctx, meaID, mea.Status, model.EventMonitor,
		fmt.Sprintf("Alarm fired for trigger %s, action %s", triggerName, actionName))

	if s.invoker == nil {
		return fmt.Errorf("no policy invoker wired")
	}
	return s.invoker.Invoke(ctx, actionName, mea, map[string]any{"trigger_name": triggerName})
}

func (s *MEAService) resolveRuntime(ctx context.Context, mea *model.MEA) (*meaRuntime, error) {
	full, err := s.GetByID(ctx, mea.ID)
	if err != nil {
		return nil, err
	}

	mead, err := s.meads.GetByID(ctx, full.MEADID)
	if err != nil {
		return nil, err
	}
	info, err := descriptor.ParseMEAD(mead.Attributes[model.DescriptorAttrKey])
	if err != nil {
		return nil, fmt.Errorf("mea %s descriptor: %w", full.ID, err)
	}

	vim, err := s.vims.GetVIM(ctx, full.VIMID, "")
	if err != nil {
		return nil, err
	}
	infra, err := s.drivers.Infra.Get(vim.Type)
	if err != nil {
		return nil, err
	}
	mgmtName := mead.MgmtDriver
	if mgmtName == "" {
		mgmtName = "noop"
	}
	mgmt, err := s.drivers.Mgmt.Get(mgmtName)
	if err != nil {
		return nil, err
	}

	return &meaRuntime{mea: full, mead: mead, info: info, vim: vim, infra: infra, mgmt: mgmt}, nil
}

func decodeParamValues(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil
	}
	return params
}
