package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var knownTransmitters = map[string]bool{"sos_http": true, "mqtt": true, "log": true}

var knownRouteKeys = map[string]bool{"default": true, "manual": true, "voice": true, "ocr": true}

// Validate checks the config for:
//   - Required fields (version, user email for the SOS endpoint)
//   - Known storage driver, connectivity mode and geolocation provider
//   - Transmitters referenced by routes exist and are enabled
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	switch cfg.Storage.Driver {
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, "storage.path is required for the sqlite driver")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not one of sqlite, memory", cfg.Storage.Driver))
	}

	switch cfg.Connectivity.Mode {
	case "manual":
	case "probe":
		if err := checkURL(cfg.Connectivity.ProbeURL); err != nil {
			errs = append(errs, fmt.Sprintf("connectivity.probe_url: %s", err))
		}
		if cfg.Connectivity.ProbeInterval <= 0 {
			errs = append(errs, "connectivity.probe_interval must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("connectivity.mode %q is not one of manual, probe", cfg.Connectivity.Mode))
	}

	switch cfg.Geolocation.Provider {
	case "none":
	case "static":
		if cfg.Geolocation.Lat == nil || cfg.Geolocation.Lng == nil {
			errs = append(errs, "geolocation: static provider needs lat and lng")
		}
	case "http":
		if err := checkURL(cfg.Geolocation.URL); err != nil {
			errs = append(errs, fmt.Sprintf("geolocation.url: %s", err))
		}
	default:
		errs = append(errs, fmt.Sprintf("geolocation.provider %q is not one of none, static, http", cfg.Geolocation.Provider))
	}

	t := cfg.Transmitters
	if t.SOSHTTP.Enabled {
		if err := checkURL(t.SOSHTTP.URL); err != nil {
			errs = append(errs, fmt.Sprintf("transmitters.sos_http.url: %s", err))
		}
		if cfg.UserEmail == "" {
			errs = append(errs, "user_email is required when sos_http is enabled")
		}
	}
	if t.MQTT.Enabled {
		if t.MQTT.Broker == "" {
			errs = append(errs, "transmitters.mqtt.broker is required")
		}
		if t.MQTT.QoS > 2 {
			errs = append(errs, fmt.Sprintf("transmitters.mqtt.qos %d out of range 0-2", t.MQTT.QoS))
		}
	}

	enabled := map[string]bool{"sos_http": t.SOSHTTP.Enabled, "mqtt": t.MQTT.Enabled, "log": t.Log.Enabled}
	if len(cfg.Routes["default"]) == 0 {
		errs = append(errs, "routes.default must name at least one enabled transmitter")
	}
	routeKeys := make([]string, 0, len(cfg.Routes))
	for k := range cfg.Routes {
		routeKeys = append(routeKeys, k)
	}
	sort.Strings(routeKeys)
	for _, key := range routeKeys {
		if !knownRouteKeys[key] {
			errs = append(errs, fmt.Sprintf("routes.%s: unknown source tag", key))
		}
		for _, name := range cfg.Routes[key] {
			switch {
			case !knownTransmitters[name]:
				errs = append(errs, fmt.Sprintf("routes.%s: unknown transmitter %q", key, name))
			case !enabled[name]:
				errs = append(errs, fmt.Sprintf("routes.%s: transmitter %q is not enabled", key, name))
			}
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if cfg.Engine.EventWorkers < 1 || cfg.Engine.QueueDepth < 1 {
		errs = append(errs, "engine.event_workers and engine.queue_depth must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}
