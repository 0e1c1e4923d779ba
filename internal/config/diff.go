package config

import (
	"reflect"
	"slices"
	"strings"

	logx "hype/pkg/logx"
)

// Change is a secret-free summary of a config reload.
type Change struct {
	// Sections lists changed top-level areas in a stable order.
	Sections []string
	// Attrs are safe structured fields for logging; tokens are reported only as *_set flags.
	Attrs []logx.Field
	// RestartRequired lists changed sections that only take effect after a restart.
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool { return slices.Contains(c.Sections, section) }

// SummarizeConfigChange compares two snapshots.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
	}

	// Bot account (never log token).
	if !strings.EqualFold(strings.TrimSpace(oldCfg.BotAccount.Server), strings.TrimSpace(newCfg.BotAccount.Server)) ||
		oldCfg.BotAccount.AccessToken != newCfg.BotAccount.AccessToken {
		mark("bot_account", true,
			logx.String("bot_account.server", strings.TrimSpace(newCfg.BotAccount.Server)),
			logx.Bool("bot_account.token_changed", oldCfg.BotAccount.AccessToken != newCfg.BotAccount.AccessToken),
		)
	}

	if !reflect.DeepEqual(oldCfg.SubscribedInstances, newCfg.SubscribedInstances) {
		names := make([]string, 0, len(newCfg.SubscribedInstances))
		for _, in := range newCfg.SubscribedInstances {
			names = append(names, in.Name)
		}
		mark("subscribed_instances", false,
			logx.Int("subscribed_instances.count", len(names)),
			logx.Strings("subscribed_instances.names", names),
		)
	}

	if !reflect.DeepEqual(oldCfg.FilteredInstances, newCfg.FilteredInstances) {
		mark("filtered_instances", false, logx.Int("filtered_instances.count", len(newCfg.FilteredInstances)))
	}

	if oldCfg.Interval != newCfg.Interval ||
		strings.TrimSpace(oldCfg.Schedule) != strings.TrimSpace(newCfg.Schedule) ||
		strings.TrimSpace(oldCfg.CycleTimeout) != strings.TrimSpace(newCfg.CycleTimeout) {
		mark("schedule", false,
			logx.String("schedule.spec", newCfg.ScheduleSpec()),
			logx.String("schedule.cycle_timeout", strings.TrimSpace(newCfg.CycleTimeout)),
		)
	}

	// The profile is pushed once at startup.
	if oldCfg.ProfilePrefix != newCfg.ProfilePrefix || !reflect.DeepEqual(oldCfg.Fields, newCfg.Fields) {
		mark("profile", true, logx.Int("profile.fields", len(newCfg.Fields)))
	}

	if oldCfg.Logging != newCfg.Logging {
		restart := oldCfg.Logging.Console != newCfg.Logging.Console || oldCfg.Logging.File != newCfg.Logging.File
		mark("logging", restart,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Client != newCfg.Client {
		mark("client", true,
			logx.String("client.user_agent", newCfg.Client.UserAgent),
			logx.String("client.request_timeout", newCfg.Client.RequestTimeout),
		)
	}

	var oldStore, newStore StorageConfig
	if oldCfg.Storage != nil {
		oldStore = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newStore = *newCfg.Storage
	}
	if oldStore != newStore {
		mark("storage", true,
			logx.String("storage.driver", newStore.Driver),
			logx.String("storage.path", newStore.Path),
		)
	}

	// Metrics (never log token).
	if oldCfg.Metrics != newCfg.Metrics {
		mark("metrics", true,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.MetricsAddr()),
			logx.Bool("metrics.token_set", strings.TrimSpace(newCfg.Metrics.Token) != ""),
		)
	}

	return ch
}
