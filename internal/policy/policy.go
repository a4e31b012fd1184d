// Package policy dispatches monitor and alarm actions against running
// instances. Actions are registered by name from configuration; composite
// actions join names with '%' and run left to right.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/metrics"
	"github.com/edvin/apmec/internal/model"
)

// Lifecycle is the slice of the instance service that actions operate on.
type Lifecycle interface {
	GetByID(ctx context.Context, id string) (*model.MEA, error)
	MarkDead(ctx context.Context, id string) (*model.MEA, error)
	PurgeBackend(ctx context.Context, mea *model.MEA) error
	Retire(ctx context.Context, id string) error
	CreateSync(ctx context.Context, req core.CreateMEARequest) (*model.MEA, error)
	Delete(ctx context.Context, id string) error
	Scale(ctx context.Context, id, policyName, scaleType string) (*model.MEA, error)
	RegisterMonitor(mea *model.MEA) error
	RebindAlarms(ctx context.Context, mea *model.MEA) error
	FindPolicy(ctx context.Context, meaID, name string) (*model.PolicyDef, error)
}

// Events records audit events for dispatched actions.
type Events interface {
	Record(ctx context.Context, resourceID, resourceType, resourceState, eventType, details string) error
}

// Action is one policy action. Mutating actions abort the remainder of a
// composite chain when they fail; logging actions do not.
type Action interface {
	Name() string
	Mutating() bool
	Execute(ctx context.Context, mea *model.MEA, args map[string]any) error
}

// Dispatcher resolves action names to registered actions and runs them. It
// satisfies the invoker interface the instance service calls back into.
type Dispatcher struct {
	ops     Lifecycle
	events  Events
	actions map[string]Action
	logger  zerolog.Logger
}

// NewDispatcher builds a dispatcher with the named actions enabled. Unknown
// names and a notify action without a target URL fail construction.
func NewDispatcher(ops Lifecycle, events Events, enabled []string, notifyURL string, logger zerolog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		ops:     ops,
		events:  events,
		actions: make(map[string]Action),
		logger:  logger,
	}
	for _, name := range enabled {
		switch name {
		case "log":
			d.actions[name] = &logAction{logger: logger}
		case "log_and_kill":
			d.actions[name] = &logAndKillAction{ops: ops, logger: logger}
		case "respawn":
			d.actions[name] = &respawnAction{ops: ops, events: events, logger: logger}
		case "autoscaling":
			d.actions[name] = &autoscalingAction{ops: ops}
		case "notify":
			if notifyURL == "" {
				return nil, fmt.Errorf("policy: notify action enabled but NOTIFY_URL is empty")
			}
			d.actions[name] = newNotifyAction(notifyURL)
		default:
			return nil, fmt.Errorf("policy: unknown action %q", name)
		}
	}
	return d, nil
}

// Invoke runs the named action against an instance. Composite names split on
// '%'. A failing mutating action stops the chain; logging failures are
// recorded and the chain continues.
func (d *Dispatcher) Invoke(ctx context.Context, action string, mea *model.MEA, args map[string]any) error {
	var errs []error
	for _, part := range strings.Split(action, "%") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		act, actArgs, err := d.resolve(ctx, part, mea, args)
		if err != nil {
			d.record(ctx, mea, part, err)
			errs = append(errs, err)
			continue
		}

		err = act.Execute(ctx, mea, actArgs)
		d.record(ctx, mea, part, err)
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("policy action %s: %w", part, err))
		if act.Mutating() {
			break
		}
	}
	return errors.Join(errs...)
}

// resolve maps an action name to a registered action. Names that are not
// registered directly are tried as scaling policy references of the form
// <policy>-in or <policy>-out.
func (d *Dispatcher) resolve(ctx context.Context, name string, mea *model.MEA, args map[string]any) (Action, map[string]any, error) {
	if act, ok := d.actions[name]; ok {
		return act, args, nil
	}

	idx := strings.LastIndex(name, "-")
	if idx <= 0 {
		return nil, nil, fmt.Errorf("policy: unknown action %q", name)
	}
	policyName, scaleType := name[:idx], name[idx+1:]
	if scaleType != model.ScaleTypeIn && scaleType != model.ScaleTypeOut {
		return nil, nil, fmt.Errorf("policy: unknown action %q", name)
	}

	def, err := d.ops.FindPolicy(ctx, mea.ID, policyName)
	if err != nil {
		return nil, nil, fmt.Errorf("policy: resolve action %q: %w", name, err)
	}
	if def == nil {
		return nil, nil, fmt.Errorf("policy: unknown action %q", name)
	}
	if def.Type != model.PolicyTypeScaling {
		return nil, nil, fmt.Errorf("policy: %q is not a scaling policy", policyName)
	}
	act, ok := d.actions["autoscaling"]
	if !ok {
		return nil, nil, fmt.Errorf("policy: autoscaling action is not enabled")
	}
	return act, map[string]any{"policy_name": policyName, "scale_type": scaleType}, nil
}

func (d *Dispatcher) record(ctx context.Context, mea *model.MEA, action string, execErr error) {
	outcome := "success"
	details := fmt.Sprintf("policy action %s succeeded", action)
	if execErr != nil {
		outcome = "failure"
		details = fmt.Sprintf("policy action %s failed: %s", action, execErr.Error())
	}
	metrics.PolicyActions.WithLabelValues(action, outcome).Inc()
	if err := d.events.Record(ctx, mea.ID, model.ResTypeMEA, mea.Status, model.EventMonitor, details); err != nil {
		d.logger.Error().Str("mea_id", mea.ID).Err(err).Msg("failed to record policy event")
	}
}
