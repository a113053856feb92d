package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
database:
  dsn: "postgres://localhost/tvlink"
jwt:
  secret: "test-secret"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.API.Host != "0.0.0.0" || cfg.API.Port != 8080 {
		t.Errorf("api defaults = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.TV.ConnectTimeout != 10*time.Second {
		t.Errorf("connect_timeout = %s", cfg.TV.ConnectTimeout)
	}
	if cfg.TV.PairingWindow != 60*time.Second {
		t.Errorf("pairing_window = %s", cfg.TV.PairingWindow)
	}
	if cfg.TV.SecurePort != 3001 || cfg.TV.InsecurePort != 3000 {
		t.Errorf("ports = %d/%d", cfg.TV.SecurePort, cfg.TV.InsecurePort)
	}
	if cfg.Integration.MQTT.TopicPattern != "tvlink/{address}/{event}" {
		t.Errorf("topic_pattern = %q", cfg.Integration.MQTT.TopicPattern)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  dsn: "postgres://localhost/tvlink"
jwt:
  secret: "test-secret"
tv:
  connect_timeout: 3s
  pairing_window: 30s
  secure_port: 13001
  insecure_port: 13000
  auto_reconnect: true
discovery:
  timeout: 2s
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.TV.ConnectTimeout != 3*time.Second {
		t.Errorf("connect_timeout = %s", cfg.TV.ConnectTimeout)
	}
	if cfg.TV.SecurePort != 13001 || cfg.TV.InsecurePort != 13000 {
		t.Errorf("ports = %d/%d", cfg.TV.SecurePort, cfg.TV.InsecurePort)
	}
	if !cfg.TV.AutoReconnect {
		t.Error("auto_reconnect not parsed")
	}
	if cfg.Discovery.Timeout != 2*time.Second {
		t.Errorf("discovery timeout = %s", cfg.Discovery.Timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/db")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.DSN != "postgres://override/db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("jwt secret not overridden")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing dsn",
			yaml: `
jwt:
  secret: "x"
`,
		},
		{
			name: "missing jwt secret",
			yaml: `
database:
  dsn: "postgres://localhost/tvlink"
`,
		},
		{
			name: "pairing window too short",
			yaml: minimalConfig + `
tv:
  pairing_window: 2s
`,
		},
		{
			name: "mqtt enabled without broker",
			yaml: minimalConfig + `
integration:
  mqtt:
    enabled: true
`,
		},
		{
			name: "http enabled without endpoint",
			yaml: minimalConfig + `
integration:
  http:
    enabled: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}
