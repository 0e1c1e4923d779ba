package config

type Config struct {
	BotAccount BotAccountConfig `json:"bot_account"`

	// SubscribedInstances are polled in order; each limit caps the posts
	// considered per cycle from that server.
	SubscribedInstances []InstanceConfig `json:"subscribed_instances"`
	FilteredInstances   []string         `json:"filtered_instances,omitempty"`

	// Interval is the cycle period in minutes. Schedule, when set, overrides it
	// and accepts a cron expression or a Go duration.
	Interval     int    `json:"interval"`
	Schedule     string `json:"schedule,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`

	ProfilePrefix string        `json:"profile_prefix"`
	Fields        []FieldConfig `json:"fields,omitempty"`

	Logging LoggingConfig  `json:"logging"`
	Client  ClientConfig   `json:"client,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics MetricsConfig  `json:"metrics,omitempty"`
}

type BotAccountConfig struct {
	Server      string `json:"server"`
	AccessToken string `json:"access_token"`
}

type InstanceConfig struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

// FieldConfig is one profile metadata row. Order is preserved.
type FieldConfig struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ClientConfig tunes the HTTP clients for the home and source servers.
//
// Defaults (when fields are omitted/zero):
//   - user_agent: "hype"
//   - rate_per_sec: 0 (unlimited; server rate-limit headers still apply)
//   - request_timeout: "30s"
//   - app_name: "hype"
type ClientConfig struct {
	UserAgent      string  `json:"user_agent,omitempty"`
	RatePerSec     float64 `json:"rate_per_sec,omitempty"`
	Burst          int     `json:"burst,omitempty"`
	RequestTimeout string  `json:"request_timeout,omitempty"`

	// AppName and Website identify the application registered on source servers.
	AppName string `json:"app_name,omitempty"`
	Website string `json:"website,omitempty"`
}

// StorageConfig controls where source server credentials and the run journal live.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./secrets/hype" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MetricsConfig controls the optional metrics/pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
