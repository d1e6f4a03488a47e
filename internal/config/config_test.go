package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_HasSaneAlarmDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 80.0, cfg.Alarm.AlarmFactor1)
	assert.Equal(t, 95.0, cfg.Alarm.AlarmFactor2)
	assert.Equal(t, 2000, cfg.Reconnect.InitialDelayMs)
	assert.Equal(t, 30000, cfg.Reconnect.MaxDelayMs)
}

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, DefaultConfig().Server.ListenAddr, cfg.Server.ListenAddr)
}

func TestLoadConfig_ParsesYAMLAndRoundTripsSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
alarm:
  alarm_battery: 15
server:
  listen_addr: ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg := LoadConfig(path)
	assert.Equal(t, 15.0, cfg.Alarm.AlarmBattery)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)

	require.NoError(t, cfg.Save())
	reloaded := LoadConfig(path)
	assert.Equal(t, cfg.Alarm.AlarmBattery, reloaded.Alarm.AlarmBattery)
}

func TestConfig_EnvOverrideWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alarm:\n  alarm_battery: 15\n"), 0644))

	t.Setenv("WHEELCORE_ALARM_BATTERY", "25")
	cfg := LoadConfig(path)
	assert.Equal(t, 25.0, cfg.Alarm.AlarmBattery)
}

func TestConfig_UpdateFromJSONMergesPartialPatch(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.UpdateFromJSON([]byte(`{"alarm":{"alarmBattery":30}}`))
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.Alarm.AlarmBattery)
	// Untouched fields survive the merge.
	assert.Equal(t, 80.0, cfg.Alarm.AlarmFactor1)
}

func TestAlarmConfig_ToAlarmConfigConvertsPeriodMsToDuration(t *testing.T) {
	a := AlarmConfig{WarningSpeedPeriodMs: 5000}
	converted := a.ToAlarmConfig()
	assert.Equal(t, int64(5000), converted.WarningSpeedPeriod.Milliseconds())
}
