package driver

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/edvin/apmec/internal/model"
)

const accessKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Webhook is the alarm driver: it hands out per-binding trigger URLs that an
// external alarm source (a telemetry service, a watchdog) calls back into,
// and validates inbound notifications.
type Webhook struct {
	// BaseURL is the externally reachable prefix of this service's API,
	// e.g. "http://apmec.example:9896/api/v1".
	BaseURL string
}

func NewWebhook(baseURL string) *Webhook {
	return &Webhook{BaseURL: baseURL}
}

func (d *Webhook) Type() string { return "webhook" }

// CallAlarmURL composes the trigger callback URL for one policy/action
// binding. The trailing access key makes the URL unguessable.
func (d *Webhook) CallAlarmURL(mea *model.MEA, policyName, actionName string) string {
	return fmt.Sprintf("%s/meas/%s/triggers/%s/%s/%s",
		d.BaseURL, mea.ID, policyName, actionName, accessKey(8))
}

// ProcessAlarm reports whether the notification represents a firing alarm.
func (d *Webhook) ProcessAlarm(payload AlarmPayload) bool {
	return payload.AlarmID != "" && payload.State == "alarm"
}

func accessKey(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(accessKeyAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform is broken; fall
			// back to a fixed character rather than panic.
			b[i] = accessKeyAlphabet[0]
			continue
		}
		b[i] = accessKeyAlphabet[idx.Int64()]
	}
	return string(b)
}
