// Package monitor runs the background health-check loop over registered
// application instances and invokes policy actions when a check result
// matches the instance's monitoring policy.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/metrics"
	"github.com/edvin/apmec/internal/model"
)

// ActionFunc is invoked when a health check result matches a policy action.
type ActionFunc func(action string)

// EventFunc records a MONITOR event for an instance.
type EventFunc func(instanceID, details string)

// HostingInstance is the in-memory registration of one monitored instance.
type HostingInstance struct {
	ID            string
	// ManagementIPs maps VDU name to its management address, decoded
	// from the instance's mgmt_url.
	ManagementIPs map[string]string
	Policy        model.MonitoringPolicy
	OnAction      ActionFunc

	BootAt time.Time
	dead   bool
}

// NewHostingInstance builds a registration from a stored instance record.
// The instance must carry a mgmt_url and a monitoring_policy attribute.
func NewHostingInstance(mea *model.MEA, onAction ActionFunc) (*HostingInstance, error) {
	if mea.MgmtURL == nil || *mea.MgmtURL == "" {
		return nil, fmt.Errorf("monitor: instance %s has no mgmt_url", mea.ID)
	}
	raw, ok := mea.Attributes[model.AttrMonitoringPolicy]
	if !ok {
		return nil, fmt.Errorf("monitor: instance %s has no monitoring policy", mea.ID)
	}

	var ips map[string]string
	if err := json.Unmarshal([]byte(*mea.MgmtURL), &ips); err != nil {
		return nil, fmt.Errorf("monitor: instance %s: decode mgmt_url: %w", mea.ID, err)
	}

	var policy model.MonitoringPolicy
	if err := json.Unmarshal([]byte(raw), &policy); err != nil {
		return nil, fmt.Errorf("monitor: instance %s: decode monitoring policy: %w", mea.ID, err)
	}

	return &HostingInstance{
		ID:            mea.ID,
		ManagementIPs: ips,
		Policy:        policy,
		OnAction:      onAction,
	}, nil
}

// Engine polls every registered instance on a fixed interval.
type Engine struct {
	drivers  *driver.Registry[driver.MonitorDriver]
	interval time.Duration
	bootWait time.Duration
	logger   zerolog.Logger
	events   EventFunc

	mu        sync.Mutex
	instances map[string]*HostingInstance

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(drivers *driver.Registry[driver.MonitorDriver], interval, bootWait time.Duration, events EventFunc, logger zerolog.Logger) *Engine {
	if events == nil {
		events = func(string, string) {}
	}
	return &Engine{
		drivers:   drivers,
		interval:  interval,
		bootWait:  bootWait,
		logger:    logger.With().Str("component", "monitor").Logger(),
		events:    events,
		instances: make(map[string]*HostingInstance),
	}
}

// Start launches the polling loop. Stop terminates it and waits for the
// in-flight cycle to finish.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.runCycle(ctx)
			}
		}
	}()
}

func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// Add registers an instance for monitoring. BootAt is stamped here so the
// monitoring delay counts from registration.
func (e *Engine) Add(inst *HostingInstance) {
	inst.BootAt = time.Now()

	e.mu.Lock()
	e.instances[inst.ID] = inst
	e.mu.Unlock()

	e.logger.Debug().Str("instance_id", inst.ID).Msg("instance registered for monitoring")
	e.events(inst.ID, fmt.Sprintf("Instance added for monitoring, policy vdus=%d", len(inst.Policy.VDUs)))
}

// Delete removes an instance from monitoring.
func (e *Engine) Delete(instanceID string) {
	e.mu.Lock()
	_, existed := e.instances[instanceID]
	delete(e.instances, instanceID)
	e.mu.Unlock()

	if existed {
		e.logger.Debug().Str("instance_id", instanceID).Msg("instance removed from monitoring")
	}
}

// MarkDead stops monitoring an instance without unregistering it. A dead
// instance is skipped until deleted or re-registered.
func (e *Engine) MarkDead(instanceID string) {
	e.mu.Lock()
	if inst, ok := e.instances[instanceID]; ok {
		inst.dead = true
	}
	e.mu.Unlock()
}

// InstanceSource yields the registrations to restore at startup.
type InstanceSource func(ctx context.Context) ([]*HostingInstance, error)

// Reconcile re-registers instances that were being monitored before a
// restart, typically every ACTIVE instance with a monitoring policy.
func (e *Engine) Reconcile(ctx context.Context, source InstanceSource) error {
	insts, err := source(ctx)
	if err != nil {
		return fmt.Errorf("monitor reconcile: %w", err)
	}
	for _, inst := range insts {
		e.Add(inst)
	}
	e.logger.Info().Int("instances", len(insts)).Msg("monitor registrations reconciled")
	return nil
}

func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	snapshot := make([]*HostingInstance, 0, len(e.instances))
	for _, inst := range e.instances {
		if !inst.dead {
			snapshot = append(snapshot, inst)
		}
	}
	e.mu.Unlock()

	for _, inst := range snapshot {
		e.runInstance(ctx, inst)
	}
	metrics.MonitorCycles.Inc()
}

func (e *Engine) runInstance(ctx context.Context, inst *HostingInstance) {
	instDelay := e.bootWait
	if inst.Policy.MonitoringDelay > 0 {
		instDelay = time.Duration(inst.Policy.MonitoringDelay) * time.Second
	}

	for vdu, byDriver := range inst.Policy.VDUs {
		if e.isDead(inst.ID) {
			return
		}

		for driverName, mon := range byDriver {
			delay := instDelay
			if v, ok := mon.Params["monitoring_delay"]; ok {
				if n, err := strconv.Atoi(v); err == nil && n >= 0 {
					delay = time.Duration(n) * time.Second
				}
			}
			if time.Since(inst.BootAt) < delay {
				continue
			}

			drv, err := e.drivers.Get(driverName)
			if err != nil {
				e.logger.Error().Str("instance_id", inst.ID).Str("vdu", vdu).Err(err).Msg("monitor driver lookup failed")
				e.events(inst.ID, fmt.Sprintf("Monitor driver lookup failed: %v", err))
				continue
			}

			result, err := drv.MonitorCall(ctx, driver.MonitorTarget{
				InstanceID: inst.ID,
				VDU:        vdu,
				MgmtIP:     inst.ManagementIPs[vdu],
			}, mon.Params)
			if err != nil {
				e.logger.Error().Str("instance_id", inst.ID).Str("vdu", vdu).Err(err).Msg("monitor call failed")
				continue
			}
			if result == "" {
				continue
			}

			if action, ok := mon.Actions[result]; ok {
				metrics.MonitorFailures.WithLabelValues(driverName).Inc()
				e.logger.Info().
					Str("instance_id", inst.ID).
					Str("vdu", vdu).
					Str("result", result).
					Str("action", action).
					Msg("monitor check triggered policy action")
				inst.OnAction(action)
			}
		}
	}
}

func (e *Engine) isDead(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[instanceID]
	return ok && inst.dead
}
