package policy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
)

// respawnAction replaces a failed instance. The dead row is purged from the
// backend and retired, then a fresh instance is created from the same
// template under the same name, carrying the accumulated failure count and
// the ids of every dead predecessor in its attributes.
type respawnAction struct {
	ops    Lifecycle
	events Events
	logger zerolog.Logger
}

func (a *respawnAction) Name() string   { return "respawn" }
func (a *respawnAction) Mutating() bool { return true }

func (a *respawnAction) Execute(ctx context.Context, mea *model.MEA, args map[string]any) error {
	dead, err := a.ops.MarkDead(ctx, mea.ID)
	if err != nil {
		return fmt.Errorf("respawn %s: mark dead: %w", mea.ID, err)
	}

	if err := a.ops.PurgeBackend(ctx, dead); err != nil {
		return fmt.Errorf("respawn %s: %w", dead.ID, err)
	}
	if err := a.ops.Retire(ctx, dead.ID); err != nil {
		return fmt.Errorf("respawn %s: %w", dead.ID, err)
	}

	failures := 1
	if prev, err := strconv.Atoi(dead.Attributes[model.AttrFailureCount]); err == nil {
		failures = prev + 1
	}
	attrs := make(map[string]string, len(dead.Attributes)+2)
	for k, v := range dead.Attributes {
		if k == model.AttrAlarmingPolicy {
			continue
		}
		attrs[k] = v
	}
	attrs[model.AttrFailureCount] = strconv.Itoa(failures)
	if id := dead.BackendInstanceID(); id != "" {
		attrs[fmt.Sprintf("dead_instance_id_%d", failures)] = id
	}

	replacement, err := a.ops.CreateSync(ctx, core.CreateMEARequest{
		TenantID:    dead.TenantID,
		Name:        dead.Name,
		Description: dead.Description,
		MEADID:      dead.MEADID,
		VIMID:       dead.VIMID,
		Region:      dead.RegionName(),
		Attributes:  attrs,
	})
	if err != nil {
		return fmt.Errorf("respawn %s: create replacement: %w", dead.ID, err)
	}

	if err := a.ops.RegisterMonitor(replacement); err != nil {
		a.logger.Warn().Str("mea_id", replacement.ID).Err(err).Msg("replacement not registered with monitor")
	}
	if err := a.ops.RebindAlarms(ctx, replacement); err != nil {
		a.logger.Warn().Str("mea_id", replacement.ID).Err(err).Msg("failed to rebind alarm policies")
	}

	a.events.Record(ctx, replacement.ID, model.ResTypeMEA, replacement.Status, model.EventMonitor,
		fmt.Sprintf("respawned from dead instance %s (failure %d)", dead.ID, failures))
	a.logger.Info().
		Str("dead_mea_id", dead.ID).
		Str("mea_id", replacement.ID).
		Int("failures", failures).
		Msg("instance respawned")
	return nil
}
