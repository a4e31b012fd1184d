package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL     string
	TemporalAddress string
	HTTPListenAddr  string
	// MetricsAddr serves /metrics on the worker, which has no API
	// listener of its own. Empty disables it.
	MetricsAddr string
	ServiceName string
	LogLevel    string

	// BootWait is the seconds to wait for a VM to boot before the first
	// monitor check and before pushing instance config.
	BootWait int
	// MonitorCheckInterval is the seconds between monitor cycles.
	MonitorCheckInterval int
	// WorkerPoolSize bounds the number of concurrent background wait tasks.
	WorkerPoolSize int

	// Enabled driver lists per category, in lookup order.
	InfraDrivers   []string
	MonitorDrivers []string
	AlarmDrivers   []string
	MgmtDrivers    []string
	PolicyActions  []string

	// VIMAuthKey is the hex-encoded 32-byte key used to encrypt VIM
	// credentials at rest.
	VIMAuthKey string
	// NotifyURL receives POSTs from the notify policy action.
	NotifyURL string
	// AlarmBaseURL is the externally reachable API prefix embedded in
	// alarm trigger URLs handed to telemetry sources.
	AlarmBaseURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		TemporalAddress:      getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:       getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		ServiceName:          getEnv("SERVICE_NAME", "apmec"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		BootWait:             getEnvInt("BOOT_WAIT", 30),
		MonitorCheckInterval: getEnvInt("MONITOR_CHECK_INTERVAL", 10),
		WorkerPoolSize:       getEnvInt("WORKER_POOL_SIZE", 64),
		InfraDrivers:         getEnvList("INFRA_DRIVERS", "noop"),
		MonitorDrivers:       getEnvList("MONITOR_DRIVERS", "ping,http_ping"),
		AlarmDrivers:         getEnvList("ALARM_DRIVERS", "webhook"),
		MgmtDrivers:          getEnvList("MGMT_DRIVERS", "noop"),
		PolicyActions:        getEnvList("POLICY_ACTIONS", "autoscaling,respawn,log,log_and_kill"),
		VIMAuthKey:           getEnv("VIM_AUTH_KEY", ""),
		NotifyURL:            getEnv("NOTIFY_URL", ""),
		AlarmBaseURL:         getEnv("ALARM_BASE_URL", "http://localhost:8090/api/v1"),
	}

	return cfg, nil
}

// Validate checks the fields required by the named binary.
func (c *Config) Validate(service string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch service {
	case "apmec-api":
		if c.VIMAuthKey == "" {
			return fmt.Errorf("VIM_AUTH_KEY is required")
		}
	case "apmec-worker":
		if c.TemporalAddress == "" {
			return fmt.Errorf("TEMPORAL_ADDRESS is required")
		}
		if c.VIMAuthKey == "" {
			return fmt.Errorf("VIM_AUTH_KEY is required")
		}
	}

	// Both binaries build the alarm monitor and the policy dispatcher, so
	// a configuration that cannot construct them must fail here rather
	// than at startup.
	if len(c.AlarmDrivers) == 0 {
		return fmt.Errorf("ALARM_DRIVERS must name at least one driver")
	}
	for _, action := range c.PolicyActions {
		if action == "notify" && c.NotifyURL == "" {
			return fmt.Errorf("NOTIFY_URL is required when the notify policy action is enabled")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	v := getEnv(key, fallback)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
