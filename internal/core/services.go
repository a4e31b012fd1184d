package core

import (
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/apmec/internal/driver"
	"github.com/edvin/apmec/internal/monitor"
	"github.com/edvin/apmec/internal/secrets"
)

type Services struct {
	Event *EventService
	VIM   *VIMService
	MEAD  *MEADService
	MEA   *MEAService
	MESD  *MESDService
	MES   *MESService
	MECAD *MECADService
	MECA  *MECAService
}

func NewServices(db DB, tc temporalclient.Client, vault *secrets.Vault,
	drivers *driver.Registries, mon *monitor.Engine, alarms *monitor.AlarmMonitor,
	pool *Pool, bootWait time.Duration, logger zerolog.Logger) *Services {

	events := NewEventService(db)
	vims := NewVIMService(db, vault, events)
	meads := NewMEADService(db, events)
	meas := NewMEAService(db, events, meads, vims, drivers, mon, alarms, pool, bootWait, logger)
	mesds := NewMESDService(db, events)
	mess := NewMESService(db, events, mesds, meads, meas, pool, logger)
	mecads := NewMECADService(db, events)
	mecas := NewMECAService(db, tc, events, mecads, pool, logger)

	return &Services{
		Event: events,
		VIM:   vims,
		MEAD:  meads,
		MEA:   meas,
		MESD:  mesds,
		MES:   mess,
		MECAD: mecads,
		MECA:  mecas,
	}
}
