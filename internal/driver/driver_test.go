package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/apmec/internal/config"
	"github.com/edvin/apmec/internal/model"
)

func TestRegistryUnknownDriver(t *testing.T) {
	r := NewRegistry[InfraDriver]("infra")
	r.Register("noop", NewNoopInfra())

	_, err := r.Get("openstack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown infra driver "openstack"`)

	d, err := r.Get("noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", d.Type())
}

func TestBuildRegistries(t *testing.T) {
	cfg := &config.Config{
		InfraDrivers:   []string{"noop"},
		MonitorDrivers: []string{"ping", "http_ping"},
		MgmtDrivers:    []string{"noop"},
		AlarmDrivers:   []string{"webhook"},
		AlarmBaseURL:   "http://apmec.example/api/v1",
	}

	r, err := BuildRegistries(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"noop"}, r.Infra.Names())
	assert.Equal(t, []string{"http_ping", "ping"}, r.Monitor.Names())

	cfg.MonitorDrivers = []string{"ceilometer"}
	_, err = BuildRegistries(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNoopInfraLifecycle(t *testing.T) {
	ctx := context.Background()
	d := NewNoopInfra()
	auth := model.VIMAuth{}

	id, err := d.Create(ctx, auth, CreateSpec{Name: "mea-1"})
	require.NoError(t, err)

	mgmtURL, err := d.CreateWait(ctx, auth, id)
	require.NoError(t, err)
	assert.NotEmpty(t, mgmtURL)

	require.NoError(t, d.Update(ctx, auth, id, CreateSpec{}))

	resources, err := d.GetResourceInfo(ctx, auth, id)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	require.NoError(t, d.Delete(ctx, auth, id))
	assert.Error(t, d.Delete(ctx, auth, id), "double delete must fail")
	assert.Error(t, d.Update(ctx, auth, id, CreateSpec{}), "update after delete must fail")
}

func TestHTTPPingHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	d := NewHTTPPing(zerolog.Nop())
	result, err := d.MonitorCall(context.Background(), MonitorTarget{
		InstanceID: "i-1",
		VDU:        "VDU1",
		MgmtIP:     u.Hostname(),
	}, map[string]string{"port": u.Port()})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestHTTPPingFailure(t *testing.T) {
	// Reserve a port and close it again so nothing listens there.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(srv.URL)
	srv.Close()

	d := NewHTTPPing(zerolog.Nop())
	result, err := d.MonitorCall(context.Background(), MonitorTarget{
		InstanceID: "i-1",
		VDU:        "VDU1",
		MgmtIP:     u.Hostname(),
	}, map[string]string{"port": u.Port(), "retry": "2"})
	require.NoError(t, err)
	assert.Equal(t, "failure", result)
}

func TestWebhookAlarmURL(t *testing.T) {
	d := NewWebhook("http://apmec.example/api/v1")
	mea := &model.MEA{ID: "2d1c9e04-4dd0-4c28-9c9d-2b9272f0b3a5"}

	url1 := d.CallAlarmURL(mea, "vdu1_cpu_usage_monitoring_policy", "respawn")
	prefix := "http://apmec.example/api/v1/meas/" + mea.ID + "/triggers/vdu1_cpu_usage_monitoring_policy/respawn/"
	require.True(t, strings.HasPrefix(url1, prefix), url1)
	assert.Len(t, strings.TrimPrefix(url1, prefix), 8)

	url2 := d.CallAlarmURL(mea, "vdu1_cpu_usage_monitoring_policy", "respawn")
	assert.NotEqual(t, url1, url2, "access keys must differ per binding")
}

func TestWebhookProcessAlarm(t *testing.T) {
	d := NewWebhook("")
	assert.True(t, d.ProcessAlarm(AlarmPayload{AlarmID: "a-1", State: "alarm"}))
	assert.False(t, d.ProcessAlarm(AlarmPayload{AlarmID: "a-1", State: "ok"}))
	assert.False(t, d.ProcessAlarm(AlarmPayload{State: "alarm"}))
}

func TestParamInt(t *testing.T) {
	params := map[string]string{"count": "3", "bad": "x", "zero": "0"}
	assert.Equal(t, 3, paramInt(params, "count", 5))
	assert.Equal(t, 5, paramInt(params, "bad", 5))
	assert.Equal(t, 5, paramInt(params, "zero", 5))
	assert.Equal(t, 5, paramInt(params, "missing", 5))
}
