package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `http:
  address: ":9000"
  jwt_secret: "0123456789abcdef"
store:
  type: sqlite
  conf:
    path: /var/lib/ridefleet/fleet.db
locks:
  type: redis
  wait_ms: 500
  conf:
    url: redis://localhost:6379/0
audit:
  backend: sqlite
  path: audit.db
metrics:
  prometheus_address: ":9100"
  sinks:
    - type: "nop"
events:
  publishers:
    - type: mqtt
      conf:
        broker: tcp://localhost:1883
        topic_prefix: fleet
sentry:
  dsn: ""
seed:
  file: seed.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http.address", cfg.HTTP.Address, ":9000"},
		{"http.read_timeout default", cfg.HTTP.ReadTimeoutSeconds, 10},
		{"store.type", cfg.Store.Type, "sqlite"},
		{"store.conf.path", cfg.Store.Conf["path"], "/var/lib/ridefleet/fleet.db"},
		{"locks.type", cfg.Locks.Type, "redis"},
		{"locks.wait_ms", cfg.Locks.WaitMs, 500},
		{"locks.conf.url", cfg.Locks.Conf["url"], "redis://localhost:6379/0"},
		{"audit.backend", cfg.Audit.Backend, "sqlite"},
		{"metrics.prometheus_address", cfg.Metrics.PrometheusAddress, ":9100"},
		{"metrics.sinks", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"events.publishers", cfg.Events.Publishers[0].Type, "mqtt"},
		{"logging.level default", cfg.Logging.Level, "info"},
		{"seed.file", cfg.Seed.File, "seed.yaml"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", `{"http":{"address":":9000"}}`)
	t.Setenv("RIDEFLEET_HTTP__ADDRESS", ":7000")
	t.Setenv("RIDEFLEET_LOGGING__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "memory", cfg.Locks.Type)
	assert.Equal(t, "jsonl", cfg.Audit.Backend)
	assert.Equal(t, "audit.log", cfg.Audit.Path)
	assert.Equal(t, Default().HTTP, cfg.HTTP)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"format":   "",
		"audit":    "audit:\n  backend: csv\n",
		"locks":    "locks:\n  type: etcd\n",
		"logging":  "logging:\n  level: loud\n",
		"secret":   "http:\n  jwt_secret: short\n",
		"negative": "locks:\n  wait_ms: -5\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			file := "config.yaml"
			if name == "format" {
				file = "config.toml"
			}
			_, err := Load(writeFile(t, file, data))
			assert.Error(t, err)
		})
	}
}
