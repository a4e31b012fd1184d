package driver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPPing probes a VDU with an HTTP GET against its management address.
// Any transport error across the retry budget maps to the "failure" key;
// the response status is not inspected, reachability is the check.
type HTTPPing struct {
	client *http.Client
	logger zerolog.Logger
}

func NewHTTPPing(logger zerolog.Logger) *HTTPPing {
	return &HTTPPing{
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger.With().Str("monitor_driver", "http_ping").Logger(),
	}
}

func (d *HTTPPing) Type() string { return "http_ping" }

func (d *HTTPPing) MonitorCall(ctx context.Context, target MonitorTarget, params map[string]string) (string, error) {
	retries := paramInt(params, "retry", 5)
	port := paramInt(params, "port", 80)

	addr := target.MgmtIP
	if override := params["mgmt_ip"]; override != "" {
		addr = override
	}
	url := fmt.Sprintf("http://%s:%d/", addr, port)

	var lastErr error
	for i := 0; i < retries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		resp, err := d.client.Do(req)
		if err == nil {
			resp.Body.Close()
			return "", nil
		}
		lastErr = err
	}

	d.logger.Debug().
		Str("instance_id", target.InstanceID).
		Str("vdu", target.VDU).
		Str("url", url).
		Err(lastErr).
		Msg("http ping check failed")
	return "failure", nil
}
