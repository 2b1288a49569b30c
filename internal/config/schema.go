package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version      string           `yaml:"version"`
	UserEmail    string           `yaml:"user_email"`
	LogLevel     string           `yaml:"log_level"`
	Engine       EngineConf       `yaml:"engine"`
	Storage      StorageConf      `yaml:"storage"`
	Connectivity ConnectivityConf `yaml:"connectivity"`
	Geolocation  GeoConf          `yaml:"geolocation"`
	Transmitters TransmittersConf `yaml:"transmitters"`
	Retry        RetryConf        `yaml:"retry"`

	// Routes maps a source tag (or "default") to transmitter names.
	Routes map[string][]string `yaml:"routes"`
}

// EngineConf holds tunable concurrency and timeout settings.
type EngineConf struct {
	EventWorkers       int           `yaml:"event_workers"`
	QueueDepth         int           `yaml:"queue_depth"`
	SendTimeout        time.Duration `yaml:"send_timeout"`
	GeolocationTimeout time.Duration `yaml:"geolocation_timeout"`
}

// StorageConf selects the durable event store and the key index location.
type StorageConf struct {
	Driver    string `yaml:"driver"` // "sqlite" | "memory"
	Path      string `yaml:"path"`
	IndexDir  string `yaml:"index_dir"` // empty = in-memory slots
	IndexSlot string `yaml:"index_slot"`
}

// ConnectivityConf selects how online/offline is observed.
type ConnectivityConf struct {
	Mode          string        `yaml:"mode"` // "manual" | "probe"
	InitialOnline bool          `yaml:"initial_online"`
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// GeoConf selects the location provider.
type GeoConf struct {
	Provider string   `yaml:"provider"` // "static" | "http" | "none"
	Lat      *float64 `yaml:"lat"`
	Lng      *float64 `yaml:"lng"`
	URL      string   `yaml:"url"`
}

// TransmittersConf configures each delivery channel.
type TransmittersConf struct {
	SOSHTTP SOSHTTPConf `yaml:"sos_http"`
	MQTT    MQTTConf    `yaml:"mqtt"`
	Log     LogConf     `yaml:"log"`
}

// SOSHTTPConf points at the backend's SOS endpoint.
type SOSHTTPConf struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConf points at a broker relaying alerts to responders.
type MQTTConf struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConf enables the logging stub transmitter.
type LogConf struct {
	Enabled bool `yaml:"enabled"`
}

// RetryConf bounds in-attempt retries of a single send.
type RetryConf struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}
