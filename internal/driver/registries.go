package driver

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/config"
)

// Registries bundles the per-category driver registries the orchestrator
// dispatches through.
type Registries struct {
	Infra   *Registry[InfraDriver]
	Monitor *Registry[MonitorDriver]
	Mgmt    *Registry[MgmtDriver]
	Alarm   *Registry[AlarmDriver]
}

// BuildRegistries instantiates the drivers enabled in configuration. A name
// with no built-in implementation fails startup.
func BuildRegistries(cfg *config.Config, logger zerolog.Logger) (*Registries, error) {
	r := &Registries{
		Infra:   NewRegistry[InfraDriver]("infra"),
		Monitor: NewRegistry[MonitorDriver]("monitor"),
		Mgmt:    NewRegistry[MgmtDriver]("mgmt"),
		Alarm:   NewRegistry[AlarmDriver]("alarm"),
	}

	for _, name := range cfg.InfraDrivers {
		switch name {
		case "noop":
			r.Infra.Register(name, NewNoopInfra())
		default:
			return nil, fmt.Errorf("no infra driver implementation for %q", name)
		}
	}

	for _, name := range cfg.MonitorDrivers {
		switch name {
		case "ping":
			r.Monitor.Register(name, NewPing(logger))
		case "http_ping":
			r.Monitor.Register(name, NewHTTPPing(logger))
		default:
			return nil, fmt.Errorf("no monitor driver implementation for %q", name)
		}
	}

	for _, name := range cfg.MgmtDrivers {
		switch name {
		case "noop":
			r.Mgmt.Register(name, NoopMgmt{})
		default:
			return nil, fmt.Errorf("no mgmt driver implementation for %q", name)
		}
	}

	for _, name := range cfg.AlarmDrivers {
		switch name {
		case "webhook":
			r.Alarm.Register(name, NewWebhook(cfg.AlarmBaseURL))
		default:
			return nil, fmt.Errorf("no alarm driver implementation for %q", name)
		}
	}

	return r, nil
}
