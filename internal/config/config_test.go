package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
)

const sampleYAML = `
version: v1
user_email: asha@example.com
engine:
  send_timeout: 3s
storage:
  driver: sqlite
  path: /tmp/sherox.db
connectivity:
  mode: manual
  initial_online: true
geolocation:
  provider: static
  lat: 18.5204
  lng: 73.8567
transmitters:
  sos_http:
    enabled: true
    url: http://localhost:5000/api/contacts/send-sos
  log:
    enabled: true
routes:
  default: [sos_http]
  voice: [sos_http, log]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sherox.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_DefaultsAndValues(t *testing.T) {
	l, err := config.NewLoader(writeConfig(t, sampleYAML), nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Config()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Engine.SendTimeout != 3*time.Second {
		t.Errorf("send_timeout = %v, want 3s", cfg.Engine.SendTimeout)
	}
	if cfg.Engine.GeolocationTimeout != 5*time.Second {
		t.Errorf("geolocation_timeout default = %v, want 5s", cfg.Engine.GeolocationTimeout)
	}
	if cfg.Storage.IndexSlot != "emergency-keys" {
		t.Errorf("index slot default = %q", cfg.Storage.IndexSlot)
	}
	if got := cfg.Routes["voice"]; len(got) != 2 || got[1] != "log" {
		t.Errorf("voice route = %v", got)
	}
	if cfg.Geolocation.Lat == nil || *cfg.Geolocation.Lat != 18.5204 {
		t.Errorf("lat not decoded: %v", cfg.Geolocation.Lat)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("SHEROX_SOS_API_KEY", "secret-key")
	t.Setenv("SHEROX_USER_EMAIL", "override@example.com")
	t.Setenv("SHEROX_INITIAL_ONLINE", "false")

	l, err := config.NewLoader(writeConfig(t, sampleYAML), nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Config()
	if cfg.Transmitters.SOSHTTP.APIKey != "secret-key" {
		t.Errorf("api key override not applied")
	}
	if cfg.UserEmail != "override@example.com" {
		t.Errorf("user email = %q", cfg.UserEmail)
	}
	if cfg.Connectivity.InitialOnline {
		t.Errorf("initial_online override not applied")
	}
}

func TestLoader_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := config.NewLoader(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	var got *config.Config
	l.OnChange(func(c *config.Config) { got = c })

	updated := strings.Replace(sampleYAML, "user_email: asha@example.com", "user_email: meera@example.com", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got == nil || got.UserEmail != "meera@example.com" {
		t.Fatalf("OnChange callback not invoked with new config: %+v", got)
	}
	if l.Config().UserEmail != "meera@example.com" {
		t.Errorf("Config() not updated")
	}
}

func TestLoader_ReloadKeepsPreviousOnInvalid(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := config.NewLoader(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	called := false
	l.OnChange(func(*config.Config) { called = true })

	invalid := strings.Replace(sampleYAML, "version: v1", "version: \"\"", 1)
	if err := os.WriteFile(path, []byte(invalid), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("Reload err = %v, want ErrInvalidConfig", err)
	}
	if l.Config().Version != "v1" {
		t.Errorf("previous config not kept: %+v", l.Config())
	}
	if called {
		t.Error("OnChange must not fire for a rejected config")
	}
}

func TestLoader_DefaultRouteFromEnabled(t *testing.T) {
	cfg, err := config.Parse([]byte("version: v1\ntransmitters:\n  log:\n    enabled: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Routes["default"]; len(got) != 1 || got[0] != "log" {
		t.Errorf("default route = %v, want [log]", got)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoader_DefaultRouteSkipsLog(t *testing.T) {
	cfg, err := config.Parse([]byte("version: v1\nuser_email: a@b.c\ntransmitters:\n  sos_http:\n    enabled: true\n    url: http://sos.local/api\n  log:\n    enabled: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Routes["default"]; len(got) != 1 || got[0] != "sos_http" {
		t.Errorf("default route = %v, want [sos_http]", got)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing version", "user_email: a@b.c", "version is required"},
		{"bad driver", "version: v1\nstorage:\n  driver: redis\ntransmitters:\n  log:\n    enabled: true", "storage.driver"},
		{"probe without url", "version: v1\nconnectivity:\n  mode: probe\ntransmitters:\n  log:\n    enabled: true", "probe_url"},
		{"static without coords", "version: v1\ngeolocation:\n  provider: static\ntransmitters:\n  log:\n    enabled: true", "static provider needs lat and lng"},
		{"sos without email", "version: v1\ntransmitters:\n  sos_http:\n    enabled: true\n    url: http://x/api", "user_email is required"},
		{"route to disabled", "version: v1\ntransmitters:\n  log:\n    enabled: true\nroutes:\n  default: [mqtt]", `transmitter "mqtt" is not enabled`},
		{"unknown route key", "version: v1\ntransmitters:\n  log:\n    enabled: true\nroutes:\n  default: [log]\n  panic: [log]", "routes.panic"},
		{"no transmitters", "version: v1", "routes.default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			err = config.Validate(cfg)
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	if err := config.LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SHEROX_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHEROX_TEST_DOTENV", "")
	os.Unsetenv("SHEROX_TEST_DOTENV")
	if err := config.LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("SHEROX_TEST_DOTENV") != "loaded" {
		t.Errorf("dotenv variable not loaded")
	}
}
