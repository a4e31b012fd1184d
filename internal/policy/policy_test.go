package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
)

type fakeLifecycle struct {
	mea *model.MEA

	markDeadErr   error
	findPolicy    *model.PolicyDef
	findPolicyErr error

	calls       []string
	createReq   core.CreateMEARequest
	scalePolicy string
	scaleType   string
}

func (f *fakeLifecycle) GetByID(ctx context.Context, id string) (*model.MEA, error) {
	f.calls = append(f.calls, "get")
	return f.mea, nil
}

func (f *fakeLifecycle) MarkDead(ctx context.Context, id string) (*model.MEA, error) {
	f.calls = append(f.calls, "mark_dead")
	if f.markDeadErr != nil {
		return nil, f.markDeadErr
	}
	dead := *f.mea
	dead.Status = model.StatusDead
	return &dead, nil
}

func (f *fakeLifecycle) PurgeBackend(ctx context.Context, mea *model.MEA) error {
	f.calls = append(f.calls, "purge")
	return nil
}

func (f *fakeLifecycle) Retire(ctx context.Context, id string) error {
	f.calls = append(f.calls, "retire")
	return nil
}

func (f *fakeLifecycle) CreateSync(ctx context.Context, req core.CreateMEARequest) (*model.MEA, error) {
	f.calls = append(f.calls, "create_sync")
	f.createReq = req
	replacement := *f.mea
	replacement.ID = "replacement-id"
	replacement.Status = model.StatusActive
	return &replacement, nil
}

func (f *fakeLifecycle) Delete(ctx context.Context, id string) error {
	f.calls = append(f.calls, "delete")
	return nil
}

func (f *fakeLifecycle) Scale(ctx context.Context, id, policyName, scaleType string) (*model.MEA, error) {
	f.calls = append(f.calls, "scale")
	f.scalePolicy = policyName
	f.scaleType = scaleType
	return f.mea, nil
}

func (f *fakeLifecycle) RegisterMonitor(mea *model.MEA) error {
	f.calls = append(f.calls, "register_monitor")
	return nil
}

func (f *fakeLifecycle) RebindAlarms(ctx context.Context, mea *model.MEA) error {
	f.calls = append(f.calls, "rebind_alarms")
	return nil
}

func (f *fakeLifecycle) FindPolicy(ctx context.Context, meaID, name string) (*model.PolicyDef, error) {
	f.calls = append(f.calls, "find_policy")
	if f.findPolicyErr != nil {
		return nil, f.findPolicyErr
	}
	return f.findPolicy, nil
}

type fakeEvents struct {
	details []string
}

func (f *fakeEvents) Record(ctx context.Context, resourceID, resourceType, resourceState, eventType, details string) error {
	f.details = append(f.details, details)
	return nil
}

func testMEA() *model.MEA {
	instanceID := "stack-1"
	return &model.MEA{
		ID:         "mea-1",
		TenantID:   "tenant-1",
		Name:       "webapp",
		MEADID:     "mead-1",
		VIMID:      "vim-1",
		InstanceID: &instanceID,
		Status:     model.StatusActive,
		Attributes: map[string]string{
			model.AttrFailureCount:   "2",
			model.AttrAlarmingPolicy: `{"vdu_hcpu_usage_respawning":"http://x"}`,
			"custom":                 "kept",
		},
	}
}

func newTestDispatcher(t *testing.T, ops *fakeLifecycle, events *fakeEvents, notifyURL string) *Dispatcher {
	t.Helper()
	enabled := []string{"autoscaling", "respawn", "log", "log_and_kill"}
	if notifyURL != "" {
		enabled = append(enabled, "notify")
	}
	d, err := NewDispatcher(ops, events, enabled, notifyURL, zerolog.Nop())
	require.NoError(t, err)
	return d
}

func TestNewDispatcherRejectsUnknownAction(t *testing.T) {
	_, err := NewDispatcher(&fakeLifecycle{}, &fakeEvents{}, []string{"reboot"}, "", zerolog.Nop())
	require.ErrorContains(t, err, `unknown action "reboot"`)
}

func TestNewDispatcherRequiresNotifyURL(t *testing.T) {
	_, err := NewDispatcher(&fakeLifecycle{}, &fakeEvents{}, []string{"notify"}, "", zerolog.Nop())
	require.ErrorContains(t, err, "NOTIFY_URL")
}

func TestInvokeUnknownActionRecordsFailure(t *testing.T) {
	ops := &fakeLifecycle{mea: testMEA(), findPolicyErr: fmt.Errorf("no such policy")}
	events := &fakeEvents{}
	d := newTestDispatcher(t, ops, events, "")

	err := d.Invoke(context.Background(), "explode", ops.mea, nil)
	require.Error(t, err)
	require.Len(t, events.details, 1)
	assert.Contains(t, events.details[0], "policy action explode failed")
}

func TestInvokeLogRecordsSuccessEvent(t *testing.T) {
	ops := &fakeLifecycle{mea: testMEA()}
	events := &fakeEvents{}
	d := newTestDispatcher(t, ops, events, "")

	require.NoError(t, d.Invoke(context.Background(), "log", ops.mea, nil))
	require.Len(t, events.details, 1)
	assert.Equal(t, "policy action log succeeded", events.details[0])
	assert.Empty(t, ops.calls)
}

func TestInvokeLogAndKillDeletesInstance(t *testing.T) {
	ops := &fakeLifecycle{mea: testMEA()}
	d := newTestDispatcher(t, ops, &fakeEvents{}, "")

	require.NoError(t, d.Invoke(context.Background(), "log_and_kill", ops.mea, nil))
	assert.Equal(t, []string{"delete"}, ops.calls)
}

func TestInvokeCompositeMutatingFailureAbortsChain(t *testing.T) {
	ops := &fakeLifecycle{mea: testMEA(), markDeadErr: fmt.Errorf("db down")}
	events := &fakeEvents{}
	d := newTestDispatcher(t, ops, events, "")

	err := d.Invoke(context.Background(), "respawn%log", ops.mea, nil)
	require.ErrorContains(t, err, "db down")
	// respawn failed before log could run
	require.Len(t, events.details, 1)
	assert.Contains(t, events.details[0], "respawn failed")
}

func TestInvokeCompositeLoggingFailureContinues(t *testing.T) {
	ops := &fakeLifecycle{mea: testMEA(), findPolicyErr: fmt.Errorf("no such policy")}
	events := &fakeEvents{}
	d := newTestDispatcher(t, ops, events, "")

	err := d.Invoke(context.Background(), "bogus%log", ops.mea, nil)
	require.Error(t, err)
	require.Len(t, events.details, 2)
	assert.Contains(t, events.details[0], "bogus failed")
	assert.Equal(t, "policy action log succeeded", events.details[1])
}

func TestInvokeResolvesScalingPolicyReference(t *testing.T) {
	ops := &fakeLifecycle{
		mea:        testMEA(),
		findPolicy: &model.PolicyDef{Name: "SP1", Type: model.PolicyTypeScaling},
	}
	d := newTestDispatcher(t, ops, &fakeEvents{}, "")

	require.NoError(t, d.Invoke(context.Background(), "SP1-out", ops.mea, nil))
	assert.Equal(t, []string{"find_policy", "scale"}, ops.calls)
	assert.Equal(t, "SP1", ops.scalePolicy)
	assert.Equal(t, model.ScaleTypeOut, ops.scaleType)
}

func TestInvokeRejectsNonScalingPolicyReference(t *testing.T) {
	ops := &fakeLifecycle{
		mea:        testMEA(),
		findPolicy: &model.PolicyDef{Name: "SP1", Type: model.PolicyTypeAlarming},
	}
	d := newTestDispatcher(t, ops, &fakeEvents{}, "")

	err := d.Invoke(context.Background(), "SP1-in", ops.mea, nil)
	require.ErrorContains(t, err, "not a scaling policy")
	assert.NotContains(t, ops.calls, "scale")
}

func TestAutoscalingRequiresArgs(t *testing.T) {
	act := &autoscalingAction{ops: &fakeLifecycle{mea: testMEA()}}
	err := act.Execute(context.Background(), testMEA(), nil)
	require.ErrorContains(t, err, "policy_name and scale_type")
}

func TestRespawnReplacesInstance(t *testing.T) {
	ops := &fakeLifecycle{mea: testMEA()}
	events := &fakeEvents{}
	d := newTestDispatcher(t, ops, events, "")

	require.NoError(t, d.Invoke(context.Background(), "respawn", ops.mea, nil))
	assert.Equal(t, []string{"mark_dead", "purge", "retire", "create_sync", "register_monitor", "rebind_alarms"}, ops.calls)

	req := ops.createReq
	assert.Equal(t, "webapp", req.Name)
	assert.Equal(t, "mead-1", req.MEADID)
	assert.Equal(t, "vim-1", req.VIMID)
	assert.Equal(t, "3", req.Attributes[model.AttrFailureCount])
	assert.Equal(t, "stack-1", req.Attributes["dead_instance_id_3"])
	assert.Equal(t, "kept", req.Attributes["custom"])
	assert.NotContains(t, req.Attributes, model.AttrAlarmingPolicy)
}

func TestNotifyPostsFailureNotice(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	ops := &fakeLifecycle{mea: testMEA()}
	d := newTestDispatcher(t, ops, &fakeEvents{}, srv.URL)

	require.NoError(t, d.Invoke(context.Background(), "notify", ops.mea, nil))
	assert.Equal(t, "mea-1", got["mea_id"])
	assert.Equal(t, "webapp", got["name"])
	assert.Equal(t, model.StatusActive, got["status"])
}

func TestNotifyFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	act := newNotifyAction(srv.URL)
	err := act.Execute(context.Background(), testMEA(), nil)
	require.ErrorContains(t, err, "unexpected status 502")
}
