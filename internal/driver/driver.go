// Package driver defines the pluggable driver contracts (infra, monitor,
// mgmt, alarm) and the built-in implementations. Drivers are looked up by
// name through per-category registries populated from configuration at
// startup; an unknown name is a configuration error surfaced at call time.
package driver

import (
	"context"

	"github.com/edvin/apmec/internal/model"
)

// CreateSpec carries everything an infra driver needs to instantiate a
// backend stack for one application.
type CreateSpec struct {
	Name          string
	Descriptor    string
	ParamValues   map[string]string
	Attributes    map[string]string
	PlacementAttr map[string]string
}

// Resource is one backend resource belonging to a stack.
type Resource struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// InfraDriver provisions and tears down backend stacks. The *Wait methods
// block until the backend reports a terminal state for the operation and are
// always called from a worker goroutine, never a request handler.
type InfraDriver interface {
	Type() string

	Create(ctx context.Context, auth model.VIMAuth, spec CreateSpec) (instanceID string, err error)
	CreateWait(ctx context.Context, auth model.VIMAuth, instanceID string) (mgmtURL string, err error)
	Update(ctx context.Context, auth model.VIMAuth, instanceID string, spec CreateSpec) error
	UpdateWait(ctx context.Context, auth model.VIMAuth, instanceID string) (mgmtURL string, err error)
	Delete(ctx context.Context, auth model.VIMAuth, instanceID string) error
	DeleteWait(ctx context.Context, auth model.VIMAuth, instanceID string) error
	Scale(ctx context.Context, auth model.VIMAuth, instanceID, policy, scaleType string) (resourceID string, err error)
	ScaleWait(ctx context.Context, auth model.VIMAuth, instanceID, resourceID string) (mgmtURL string, err error)
	GetResourceInfo(ctx context.Context, auth model.VIMAuth, instanceID string) ([]Resource, error)
}

// MonitorTarget identifies what a monitor driver probes.
type MonitorTarget struct {
	InstanceID string
	VDU        string
	MgmtIP     string
}

// MonitorDriver runs one health check and returns a result key ("failure",
// "unhealthy", ...) that is matched against the VDU's actions map. An empty
// key means healthy.
type MonitorDriver interface {
	Type() string
	MonitorCall(ctx context.Context, target MonitorTarget, params map[string]string) (string, error)
}

// MgmtDriver hooks application-level configuration around lifecycle steps.
type MgmtDriver interface {
	Type() string
	CreatePre(ctx context.Context, mea *model.MEA) error
	CreatePost(ctx context.Context, mea *model.MEA) error
	UpdatePre(ctx context.Context, mea *model.MEA) error
	UpdatePost(ctx context.Context, mea *model.MEA) error
	DeletePre(ctx context.Context, mea *model.MEA) error
	DeletePost(ctx context.Context, mea *model.MEA) error
}

// AlarmPayload is an inbound alarm notification.
type AlarmPayload struct {
	AlarmID string `json:"alarm_id"`
	State   string `json:"current"`
}

// AlarmDriver binds alarm endpoints to policies and validates inbound
// notifications.
type AlarmDriver interface {
	Type() string
	// CallAlarmURL returns the URL an external alarm source should hit for
	// the given policy/action pair on this instance.
	CallAlarmURL(mea *model.MEA, policyName, actionName string) string
	// ProcessAlarm reports whether the payload represents a firing alarm
	// that should trigger policy actions.
	ProcessAlarm(payload AlarmPayload) bool
}
