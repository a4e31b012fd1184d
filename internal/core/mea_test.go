package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/model"
	"github.com/edvin/apmec/internal/monitor"
	"github.com/edvin/apmec/internal/secrets"
)

// sqlContaining matches a query by substring, enough to tell the guarded
// UPDATE, the re-read SELECT and the event INSERT apart.
func sqlContaining(fragment string) any {
	return mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, fragment)
	})
}

func newTestMEAService(t *testing.T, db *mockDB) *MEAService {
	t.Helper()
	return newTestMEAServiceWith(t, db, &driver.Registries{}, nil)
}

func newTestMEAServiceWith(t *testing.T, db *mockDB, regs *driver.Registries, alarms *monitor.AlarmMonitor) *MEAService {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	vault, err := secrets.NewVault(key)
	require.NoError(t, err)

	events := NewEventService(db)
	meads := NewMEADService(db, events)
	vims := NewVIMService(db, vault, events)
	mon := monitor.NewEngine(driver.NewRegistry[driver.MonitorDriver]("monitor"),
		time.Minute, time.Minute, nil, zerolog.Nop())
	pool := NewPool(context.Background(), 2, zerolog.Nop())
	return NewMEAService(db, events, meads, vims, regs,
		mon, alarms, pool, time.Millisecond, zerolog.Nop())
}

// stubInfra is a scripted infra driver for walking the create chain without
// a real backend.
type stubInfra struct {
	createErr error
	waitErr   error
	deleted   bool
}

func (d *stubInfra) Type() string { return "noop" }

func (d *stubInfra) Create(context.Context, model.VIMAuth, driver.CreateSpec) (string, error) {
	if d.createErr != nil {
		return "", d.createErr
	}
	return "stack-1", nil
}

func (d *stubInfra) CreateWait(context.Context, model.VIMAuth, string) (string, error) {
	if d.waitErr != nil {
		return "", d.waitErr
	}
	return "http://10.0.0.5:80", nil
}

func (d *stubInfra) Update(context.Context, model.VIMAuth, string, driver.CreateSpec) error {
	return nil
}

func (d *stubInfra) UpdateWait(context.Context, model.VIMAuth, string) (string, error) {
	return "http://10.0.0.5:80", nil
}

func (d *stubInfra) Delete(context.Context, model.VIMAuth, string) error {
	d.deleted = true
	return nil
}

func (d *stubInfra) DeleteWait(context.Context, model.VIMAuth, string) error { return nil }

func (d *stubInfra) Scale(context.Context, model.VIMAuth, string, string, string) (string, error) {
	return "", nil
}

func (d *stubInfra) ScaleWait(context.Context, model.VIMAuth, string, string) (string, error) {
	return "", nil
}

func (d *stubInfra) GetResourceInfo(context.Context, model.VIMAuth, string) ([]driver.Resource, error) {
	return nil, nil
}

const minimalMEAD = `tosca_definitions_version: tosca_simple_profile_for_mec_1_0_0
description: one-VDU webapp
metadata:
  template_name: webapp
topology_template:
  node_templates:
    VDU1:
      type: tosca.nodes.mec.VDU
      properties: {}
`

// newCreateChainService wires a service whose infra registry dispatches to
// the given stub, plus the template and VIM lookups the pre step performs.
func newCreateChainService(t *testing.T, db *mockDB, infra driver.InfraDriver) *MEAService {
	t.Helper()
	regs := &driver.Registries{
		Infra: driver.NewRegistry[driver.InfraDriver]("infra"),
		Mgmt:  driver.NewRegistry[driver.MgmtDriver]("mgmt"),
	}
	regs.Infra.Register("noop", infra)
	regs.Mgmt.Register("noop", driver.NoopMgmt{})
	s := newTestMEAServiceWith(t, db, regs, nil)

	sealed, err := s.vims.vault.SealAuth(model.VIMAuth{AuthURL: "http://vim.local:5000"})
	require.NoError(t, err)

	now := time.Now().UTC()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meads WHERE id"), mock.Anything).
		Return(&mockRow{scanFunc: scanValues(
			"mead-1", "tenant-1", "webapp-tpl", "", "", nil, model.TemplateSourceOnboarded, now, now,
		)})
	db.On("Query", mock.Anything, sqlContaining("FROM mead_attributes"), mock.Anything).
		Return(newMockRows(scanValues(model.DescriptorAttrKey, minimalMEAD)), nil)
	db.On("QueryRow", mock.Anything, sqlContaining("FROM vims WHERE id"), mock.Anything).
		Return(&mockRow{scanFunc: scanValues(
			"vim-1", "tenant-1", "devstack", "", "noop", sealed, nil, true, VIMStatusReachable, now, now,
		)})
	db.On("Exec", mock.Anything, sqlContaining("INSERT INTO meas"), mock.Anything).
		Return(tagRows(1), nil)
	return s
}

func createChainRequest() CreateMEARequest {
	return CreateMEARequest{
		TenantID: "tenant-1",
		Name:     "webapp",
		MEADID:   "mead-1",
		VIMID:    "vim-1",
	}
}

// captureEventTypes records the event_type column of every event row
// written, in order.
func captureEventTypes(db *mockDB, into *[]string) {
	db.On("Exec", mock.Anything, sqlContaining("INSERT INTO events"), mock.Anything).
		Run(func(args mock.Arguments) {
			vals := args.Get(2).([]any)
			*into = append(*into, vals[3].(string))
		}).Return(tagRows(1), nil)
}

// meaRow yields one instance row in the given status.
func meaRow(id, status string) *mockRow {
	now := time.Now().UTC()
	return &mockRow{scanFunc: scanValues(
		id, "tenant-1", "webapp", "", "mead-1", "vim-1", nil, nil, status, nil, now, now,
	)}
}

func expectEvent(db *mockDB) {
	db.On("Exec", mock.Anything, sqlContaining("INSERT INTO events"), mock.Anything).
		Return(tagRows(1), nil)
}

func TestTransitionAppliesGuardedUpdate(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(meaRow("mea-1", model.StatusActive)).Once()
	expectEvent(db)

	mea, err := s.transition(context.Background(), "mea-1", model.StatusActive,
		model.CreateStates, model.EventCreate, "MEA create completed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, mea.Status)
	db.AssertExpectations(t)
}

func TestTransitionLoserGetsConflict(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	// The CAS matches no row; the re-read shows who won.
	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(noRow()).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusPendingDelete)).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil).Once()

	_, err := s.transition(context.Background(), "mea-1", model.StatusPendingDelete,
		model.DeletableStates, model.EventDelete, "MEA delete started")
	require.True(t, IsConflict(err))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, model.StatusPendingDelete, conflict.Status)
	db.AssertExpectations(t)
}

func TestTransitionMissingRowIsNotFound(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(noRow()).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(noRow()).Once()

	_, err := s.transition(context.Background(), "mea-9", model.StatusActive,
		model.CreateStates, model.EventCreate, "")
	require.True(t, IsNotFound(err))
}

func TestMarkDeadSkipsMidOperationInstance(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(noRow()).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusPendingCreate)).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil).Once()

	_, err := s.MarkDead(context.Background(), "mea-1")
	require.True(t, IsConflict(err))
}

func TestMarkErrorPersistsReason(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(meaRow("mea-1", model.StatusError)).Once()
	expectEvent(db)
	db.On("Exec", mock.Anything, sqlContaining("error_reason"), mock.Anything).
		Return(tagRows(1), nil).Once()

	mea, err := s.MarkError(context.Background(), "mea-1", "backend create failed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, mea.Status)
	require.NotNil(t, mea.ErrorReason)
	assert.Equal(t, "backend create failed", *mea.ErrorReason)
	db.AssertExpectations(t)
}

func TestUpdateAlreadyInProgressIsInUse(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(noRow()).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusPendingUpdate)).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil).Once()

	_, err := s.Update(context.Background(), "mea-1", "vdus:\n  VDU1: {}")
	require.True(t, IsInUse(err))
	assert.Contains(t, err.Error(), "update already in progress")
}

func TestDoubleDeleteConflicts(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(noRow()).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusPendingDelete)).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil).Once()

	err := s.Delete(context.Background(), "mea-1")
	require.True(t, IsConflict(err))
}

func TestScaleRejectsInvalidDirection(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	_, err := s.Scale(context.Background(), "mea-1", "SP1", "sideways")
	require.True(t, IsValidation(err))
}

func TestRetireIsGuardedBySoftDelete(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("Exec", mock.Anything, sqlContaining("UPDATE meas SET deleted_at"), mock.Anything).
		Return(tagRows(1), nil).Once()
	expectEvent(db)
	require.NoError(t, s.Retire(context.Background(), "mea-1"))

	// Second retire sees no live row.
	db.On("Exec", mock.Anything, sqlContaining("UPDATE meas SET deleted_at"), mock.Anything).
		Return(tagRows(0), nil).Once()
	err := s.Retire(context.Background(), "mea-1")
	require.True(t, IsNotFound(err))
}

func TestResourcesRequiresActiveInstance(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusError)).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil).Once()

	_, err := s.Resources(context.Background(), "mea-1")
	require.True(t, IsConflict(err))
}

func TestCreateSyncCompletesChain(t *testing.T) {
	db := &mockDB{}
	infra := &stubInfra{}
	s := newCreateChainService(t, db, infra)

	var eventTypes []string
	captureEventTypes(db, &eventTypes)
	db.On("Exec", mock.Anything, sqlContaining("SET instance_id"), mock.Anything).
		Return(tagRows(1), nil)
	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(meaRow("mea-1", model.StatusActive)).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusActive))
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newEmptyMockRows(), nil)

	mea, err := s.CreateSync(context.Background(), createChainRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, mea.Status)
	assert.Equal(t, []string{model.EventCreate, model.EventCreate}, eventTypes)
	assert.False(t, infra.deleted)
	db.AssertExpectations(t)
}

// A failing synchronous backend create must unwind the instance entirely:
// the row is soft-deleted and a DELETE event recorded, never left in ERROR.
func TestCreateBackendFailureRemovesInstance(t *testing.T) {
	db := &mockDB{}
	infra := &stubInfra{createErr: errors.New("quota exceeded")}
	s := newCreateChainService(t, db, infra)

	var eventTypes []string
	captureEventTypes(db, &eventTypes)
	db.On("Exec", mock.Anything, sqlContaining("UPDATE meas SET deleted_at"), mock.Anything).
		Return(tagRows(1), nil).Once()

	_, err := s.CreateSync(context.Background(), createChainRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend create")
	assert.Equal(t, []string{model.EventCreate, model.EventDelete}, eventTypes)
	db.AssertExpectations(t)
}

// A wait failure resolves the instance to ERROR with the reason persisted;
// the backend stack is left in place for a later delete to reclaim.
func TestCreateWaitFailureResolvesError(t *testing.T) {
	db := &mockDB{}
	infra := &stubInfra{waitErr: errors.New("stack timed out")}
	s := newCreateChainService(t, db, infra)

	expectEvent(db)
	db.On("Exec", mock.Anything, sqlContaining("SET instance_id"), mock.Anything).
		Return(tagRows(1), nil)
	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE meas SET status"), mock.Anything).
		Return(meaRow("mea-1", model.StatusError)).Once()
	db.On("Exec", mock.Anything, sqlContaining("error_reason"), mock.Anything).
		Return(tagRows(1), nil).Once()

	_, err := s.CreateSync(context.Background(), createChainRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create wait")
	assert.False(t, infra.deleted)
	db.AssertExpectations(t)
}

func TestGetByIDLoadsAttributes(t *testing.T) {
	db := &mockDB{}
	s := newTestMEAService(t, db)

	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusActive)).Once()
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newMockRows(scanValues(model.AttrConfig, "vdus: {}")), nil).Once()

	mea, err := s.GetByID(context.Background(), "mea-1")
	require.NoError(t, err)
	assert.Equal(t, "vdus: {}", mea.Attributes[model.AttrConfig])
}

// stubInvoker records dispatched policy actions.
type stubInvoker struct {
	actions []string
}

func (i *stubInvoker) Invoke(_ context.Context, action string, _ *model.MEA, _ map[string]any) error {
	i.actions = append(i.actions, action)
	return nil
}

func newTriggerTestService(t *testing.T, db *mockDB) (*MEAService, *stubInvoker) {
	t.Helper()
	alarmReg := driver.NewRegistry[driver.AlarmDriver]("alarm")
	alarmReg.Register("webhook", driver.NewWebhook("http://localhost:8090/api/v1"))
	alarms := monitor.NewAlarmMonitor(alarmReg, "webhook", nil, zerolog.Nop())

	s := newTestMEAServiceWith(t, db, &driver.Registries{}, alarms)
	invoker := &stubInvoker{}
	s.SetPolicyInvoker(invoker)
	return s, invoker
}

func expectTriggerBinding(db *mockDB, boundURL string) {
	db.On("QueryRow", mock.Anything, sqlContaining("FROM meas WHERE id"), mock.Anything).
		Return(meaRow("mea-1", model.StatusActive))
	db.On("Query", mock.Anything, sqlContaining("FROM mea_attributes"), mock.Anything).
		Return(newMockRows(scanValues(model.AttrAlarmingPolicy,
			`{"cpu_high":"`+boundURL+`"}`)), nil)
}

func TestCreateTriggerFiresBoundAction(t *testing.T) {
	db := &mockDB{}
	s, invoker := newTriggerTestService(t, db)
	expectTriggerBinding(db, "http://localhost:8090/api/v1/meas/mea-1/triggers/cpu_high/respawn/k3yk3yk3")
	expectEvent(db)

	err := s.CreateTrigger(context.Background(), "mea-1", "cpu_high", "respawn", "k3yk3yk3",
		driver.AlarmPayload{AlarmID: "a-1", State: "alarm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"respawn"}, invoker.actions)
}

// A notification presenting the wrong access key, or an action other than
// the one bound, must be rejected before any policy action runs.
func TestCreateTriggerRejectsWrongAccessKey(t *testing.T) {
	db := &mockDB{}
	s, invoker := newTriggerTestService(t, db)
	expectTriggerBinding(db, "http://localhost:8090/api/v1/meas/mea-1/triggers/cpu_high/respawn/k3yk3yk3")

	err := s.CreateTrigger(context.Background(), "mea-1", "cpu_high", "respawn", "guessed00",
		driver.AlarmPayload{AlarmID: "a-1", State: "alarm"})
	require.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "access key")
	assert.Empty(t, invoker.actions)
}

func TestCreateTriggerRejectsUnboundAction(t *testing.T) {
	db := &mockDB{}
	s, invoker := newTriggerTestService(t, db)
	expectTriggerBinding(db, "http://localhost:8090/api/v1/meas/mea-1/triggers/cpu_high/respawn/k3yk3yk3")

	err := s.CreateTrigger(context.Background(), "mea-1", "cpu_high", "log_and_kill", "k3yk3yk3",
		driver.AlarmPayload{AlarmID: "a-1", State: "alarm"})
	require.True(t, IsValidation(err))
	assert.Empty(t, invoker.actions)
}

func TestCreateTriggerRejectsUnknownTrigger(t *testing.T) {
	db := &mockDB{}
	s, invoker := newTriggerTestService(t, db)
	expectTriggerBinding(db, "http://localhost:8090/api/v1/meas/mea-1/triggers/cpu_high/respawn/k3yk3yk3")

	err := s.CreateTrigger(context.Background(), "mea-1", "mem_high", "respawn", "k3yk3yk3",
		driver.AlarmPayload{AlarmID: "a-1", State: "alarm"})
	require.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "mem_high")
	assert.Empty(t, invoker.actions)
}
