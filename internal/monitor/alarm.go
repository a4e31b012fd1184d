package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/model"
)

// PolicyFinder resolves a backend policy by name on an instance's
// descriptor. It returns nil without error when no policy matches.
type PolicyFinder func(ctx context.Context, meaID, name string) (*model.PolicyDef, error)

// AlarmMonitor binds alarming-policy triggers to callback URLs and validates
// inbound alarm notifications.
type AlarmMonitor struct {
	drivers    *driver.Registry[driver.AlarmDriver]
	driverName string
	events     EventFunc
	logger     zerolog.Logger
}

func NewAlarmMonitor(drivers *driver.Registry[driver.AlarmDriver], driverName string, events EventFunc, logger zerolog.Logger) *AlarmMonitor {
	if events == nil {
		events = func(string, string) {}
	}
	return &AlarmMonitor{
		drivers:    drivers,
		driverName: driverName,
		events:     events,
		logger:     logger.With().Str("component", "alarm_monitor").Logger(),
	}
}

// UpdateMEAWithAlarm composes one callback URL per trigger of an alarming
// policy. Action names that resolve to a scaling policy are suffixed with
// the scale direction derived from the trigger's comparison operator;
// multiple actions are joined with '%'.
func (m *AlarmMonitor) UpdateMEAWithAlarm(ctx context.Context, mea *model.MEA, policy model.PolicyDef, find PolicyFinder) (map[string]string, error) {
	drv, err := m.drivers.Get(m.driverName)
	if err != nil {
		return nil, err
	}

	urls := make(map[string]string, len(policy.Triggers))
	for triggerName, trigger := range policy.Triggers {
		if len(trigger.Actions) == 0 {
			m.events(mea.ID, "Alarm not set: policy action missing")
			return nil, fmt.Errorf("alarm: trigger %s of policy %s has no actions", triggerName, policy.Name)
		}

		actions := make([]string, len(trigger.Actions))
		copy(actions, trigger.Actions)

		for i, name := range actions {
			backend, err := find(ctx, mea.ID, name)
			if err != nil {
				return nil, fmt.Errorf("alarm: resolve policy %s: %w", name, err)
			}
			if backend != nil && backend.Type == model.PolicyTypeScaling {
				actions[i] = name + "-" + trigger.ScalingType()
			}
		}

		url := drv.CallAlarmURL(mea, triggerName, strings.Join(actions, "%"))
		urls[triggerName] = url
		m.events(mea.ID, fmt.Sprintf("Alarm URL set successfully: %s", url))
		m.logger.Debug().Str("instance_id", mea.ID).Str("trigger", triggerName).Str("url", url).Msg("alarm trigger bound")
	}

	return urls, nil
}

// ProcessAlarm reports whether an inbound notification should fire the
// trigger's policy actions.
func (m *AlarmMonitor) ProcessAlarm(mea *model.MEA, payload driver.AlarmPayload) (bool, error) {
	drv, err := m.drivers.Get(m.driverName)
	if err != nil {
		return false, err
	}
	return drv.ProcessAlarm(payload), nil
}
