package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "hype/pkg/logx"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMetricsAddr    = "127.0.0.1:9464"
)

// Validate reports every problem found in cfg, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.BotAccount.Server) == "" {
		add("bot_account.server is required")
	}
	if strings.TrimSpace(cfg.BotAccount.AccessToken) == "" {
		add("bot_account.access_token is required (or set %s)", EnvAccessToken)
	}

	seen := map[string]bool{}
	for i, in := range cfg.SubscribedInstances {
		name := strings.ToLower(strings.TrimSpace(in.Name))
		switch {
		case name == "":
			add("subscribed_instances[%d].name is required", i)
		case seen[name]:
			add("subscribed_instances[%d]: duplicate instance %q", i, in.Name)
		}
		seen[name] = true
		if in.Limit < 0 {
			add("subscribed_instances[%d].limit must be >= 0", i)
		}
	}

	if strings.TrimSpace(cfg.Schedule) == "" {
		if cfg.Interval < 1 {
			add("interval must be >= 1 minute (or set schedule)")
		}
	}
	if _, err := ParseDurationField("cycle_timeout", cfg.CycleTimeout); err != nil {
		errs = append(errs, err)
	}

	for i, f := range cfg.Fields {
		if strings.TrimSpace(f.Name) == "" {
			add("fields[%d].name is required", i)
		}
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.level: unknown level %q", lvl)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add("logging.file.path is required when file logging is enabled")
	}

	if cfg.Client.RatePerSec < 0 {
		add("client.rate_per_sec must be >= 0")
	}
	if cfg.Client.Burst < 0 {
		add("client.burst must be >= 0")
	}
	if _, err := ParseDurationField("client.request_timeout", cfg.Client.RequestTimeout); err != nil {
		errs = append(errs, err)
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "file", "sqlite", "sqlite3", "memory", "none":
		default:
			add("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Metrics.Enabled {
		addr := cfg.Metrics.MetricsAddr()
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			add("metrics.addr: %v", err)
		} else if !isLoopbackHost(host) && strings.TrimSpace(cfg.Metrics.Token) == "" && !cfg.Metrics.AllowInsecure {
			add("metrics.addr %q is not loopback: set metrics.token or metrics.allow_insecure", addr)
		}
		for path, raw := range map[string]string{
			"metrics.read_timeout":  cfg.Metrics.ReadTimeout,
			"metrics.write_timeout": cfg.Metrics.WriteTimeout,
			"metrics.idle_timeout":  cfg.Metrics.IdleTimeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// IntervalDuration returns the configured interval (minutes) as a duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Minute
}

// ScheduleSpec returns the schedule string the scheduler should use: the
// explicit schedule when set, otherwise the interval as a Go duration.
func (c *Config) ScheduleSpec() string {
	if s := strings.TrimSpace(c.Schedule); s != "" {
		return s
	}
	return c.IntervalDuration().String()
}

// CycleTimeoutDuration returns the per-cycle ceiling; 0 disables it.
func (c *Config) CycleTimeoutDuration() time.Duration {
	d, _ := ParseDurationField("cycle_timeout", c.CycleTimeout)
	return d
}

func (c ClientConfig) Timeout() time.Duration {
	d, _ := ParseDurationOrDefault("client.request_timeout", c.RequestTimeout, DefaultRequestTimeout)
	return d
}

func (m MetricsConfig) MetricsAddr() string {
	if a := strings.TrimSpace(m.Addr); a != "" {
		return a
	}
	return DefaultMetricsAddr
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(host)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
