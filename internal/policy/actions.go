package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/apmec/internal/model"
)

type logAction struct {
	logger zerolog.Logger
}

func (a *logAction) Name() string   { return "log" }
func (a *logAction) Mutating() bool { return false }

func (a *logAction) Execute(ctx context.Context, mea *model.MEA, args map[string]any) error {
	a.logger.Warn().
		Str("mea_id", mea.ID).
		Str("name", mea.Name).
		Str("status", mea.Status).
		Msg("monitor reported instance failure")
	return nil
}

// logAndKillAction logs the failure and tears the instance down through the
// regular delete chain.
type logAndKillAction struct {
	ops    Lifecycle
	logger zerolog.Logger
}

func (a *logAndKillAction) Name() string   { return "log_and_kill" }
func (a *logAndKillAction) Mutating() bool { return true }

func (a *logAndKillAction) Execute(ctx context.Context, mea *model.MEA, args map[string]any) error {
	a.logger.Warn().
		Str("mea_id", mea.ID).
		Str("name", mea.Name).
		Msg("monitor reported instance failure, deleting instance")
	return a.ops.Delete(ctx, mea.ID)
}

// notifyAction POSTs a JSON failure notice to a configured endpoint.
type notifyAction struct {
	url    string
	client *http.Client
}

func newNotifyAction(url string) *notifyAction {
	return &notifyAction{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *notifyAction) Name() string   { return "notify" }
func (a *notifyAction) Mutating() bool { return false }

func (a *notifyAction) Execute(ctx context.Context, mea *model.MEA, args map[string]any) error {
	payload := map[string]string{
		"mea_id":    mea.ID,
		"name":      mea.Name,
		"status":    mea.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", a.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify %s: unexpected status %d", a.url, resp.StatusCode)
	}
	return nil
}

// autoscalingAction triggers a backend scale on the instance. The policy name
// and direction arrive through args, filled in by the dispatcher when it
// resolves a <policy>-in / <policy>-out action name.
type autoscalingAction struct {
	ops Lifecycle
}

func (a *autoscalingAction) Name() string   { return "autoscaling" }
func (a *autoscalingAction) Mutating() bool { return true }

func (a *autoscalingAction) Execute(ctx context.Context, mea *model.MEA, args map[string]any) error {
	policyName, _ := args["policy_name"].(string)
	scaleType, _ := args["scale_type"].(string)
	if policyName == "" || scaleType == "" {
		return fmt.Errorf("autoscaling requires policy_name and scale_type")
	}
	_, err := a.ops.Scale(ctx, mea.ID, policyName, scaleType)
	return err
}
