package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
broker:
  api_key: test-key
  account_id: "101-001-1234567-001"
  instruments:
    - EUR_USD
    - GBP_USD
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Environment != "development" {
		t.Errorf("environment = %q, want development", c.Environment)
	}
	if c.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", c.Server.Port)
	}
	if c.Trading.CycleInterval != 5*time.Minute {
		t.Errorf("cycle interval = %v, want 5m", c.Trading.CycleInterval)
	}
	if c.Classifier.NeighborsCount != 8 || c.Classifier.FeatureCount != 5 {
		t.Errorf("classifier defaults = %+v", c.Classifier)
	}
	if c.Optimizer.Retry.MaxAttempts != 5 || c.Optimizer.Retry.BaseDelay != 200*time.Millisecond {
		t.Errorf("retry defaults = %+v", c.Optimizer.Retry)
	}
	if len(c.Broker.Instruments) != 2 {
		t.Errorf("instruments = %v, want 2 entries", c.Broker.Instruments)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+`
server:
  port: 9999
trading:
  max_trades_per_day: 7
  quiet_windows:
    - "23:00-01:00"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", c.Server.Port)
	}
	if c.Trading.MaxTradesPerDay != 7 {
		t.Errorf("max trades = %d, want 7", c.Trading.MaxTradesPerDay)
	}
	if len(c.Trading.QuietWindows) != 1 {
		t.Errorf("quiet windows = %v, want 1 entry", c.Trading.QuietWindows)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
broker:
  account_id: "101"
  instruments: [EUR_USD]
`))
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("err = %v, want missing api_key error", err)
	}

	_, err = Load(writeConfig(t, `
broker:
  api_key: k
  account_id: "101"
`))
	if err == nil || !strings.Contains(err.Error(), "instruments") {
		t.Fatalf("err = %v, want missing instruments error", err)
	}
}

func TestLoadRejectsIncompleteInfra(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
kafka:
  enabled: true
`))
	if err == nil || !strings.Contains(err.Error(), "kafka.brokers") {
		t.Fatalf("err = %v, want kafka.brokers error", err)
	}

	_, err = Load(writeConfig(t, minimalYAML+`
clickhouse:
  enabled: true
`))
	if err == nil || !strings.Contains(err.Error(), "clickhouse.host") {
		t.Fatalf("err = %v, want clickhouse.host error", err)
	}
}

func TestLoadRejectsMalformedQuietWindow(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
trading:
  quiet_windows: ["2300"]
`))
	if err == nil || !strings.Contains(err.Error(), "quiet_windows") {
		t.Fatalf("err = %v, want quiet window format error", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("BROKER_API_KEY", "env-key")
	t.Setenv("INSTRUMENTS", "USD_JPY,AUD_USD")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Broker.APIKey != "env-key" {
		t.Errorf("api key = %q, want the env override", c.Broker.APIKey)
	}
	if len(c.Broker.Instruments) != 2 || c.Broker.Instruments[0] != "USD_JPY" {
		t.Errorf("instruments = %v, want the env override", c.Broker.Instruments)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded for a missing file")
	}
}
