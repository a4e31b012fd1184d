package driver

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

// Ping probes a VDU's management address with ICMP echo via the system ping
// binary. Any non-zero exit maps to the "failure" result key.
type Ping struct {
	logger zerolog.Logger
}

func NewPing(logger zerolog.Logger) *Ping {
	return &Ping{logger: logger.With().Str("monitor_driver", "ping").Logger()}
}

func (d *Ping) Type() string { return "ping" }

func (d *Ping) MonitorCall(ctx context.Context, target MonitorTarget, params map[string]string) (string, error) {
	count := paramInt(params, "count", 5)
	timeout := paramInt(params, "timeout", 1)
	interval := params["interval"]
	if interval == "" {
		interval = "1"
	}

	addr := target.MgmtIP
	if override := params["mgmt_ip"]; override != "" {
		addr = override
	}

	cmd := exec.CommandContext(ctx, "ping",
		"-c", strconv.Itoa(count),
		"-W", strconv.Itoa(timeout),
		"-i", interval,
		addr)
	if err := cmd.Run(); err != nil {
		d.logger.Debug().
			Str("instance_id", target.InstanceID).
			Str("vdu", target.VDU).
			Str("addr", addr).
			Err(err).
			Msg("ping check failed")
		return "failure", nil
	}
	return "", nil
}

func paramInt(params map[string]string, key string, fallback int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
