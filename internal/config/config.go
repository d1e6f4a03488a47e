// Package config loads and persists WheelCore's runtime configuration:
// the AlarmChecker's 18-field AlarmConfig, reconnect back-off tuning,
// per-vendor keepalive overrides, and the telemetry server's listen
// address. Grounded on the teacher's server/config.go YAML-plus-env
// pattern.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/eucdash/wheelcore/internal/wheel/alarm"
)

// AlarmConfig mirrors alarm.Config with YAML/JSON tags; callers convert
// it with ToAlarmConfig (LoadConfig returns it unconverted).
type AlarmConfig struct {
	PwmBasedAlarms bool    `yaml:"pwm_based_alarms" json:"pwmBasedAlarms"`
	AlarmFactor1   float64 `yaml:"alarm_factor1" json:"alarmFactor1"`
	AlarmFactor2   float64 `yaml:"alarm_factor2" json:"alarmFactor2"`
	WarningPwm     float64 `yaml:"warning_pwm" json:"warningPwm"`
	WarningSpeed   float64 `yaml:"warning_speed" json:"warningSpeed"`
	// WarningSpeedPeriodMs is the minimum spacing between pre-warning
	// repeats, in milliseconds (YAML can't carry a time.Duration cleanly).
	WarningSpeedPeriodMs int `yaml:"warning_speed_period_ms" json:"warningSpeedPeriodMs"`

	Alarm1Speed   float64 `yaml:"alarm1_speed" json:"alarm1Speed"`
	Alarm1Battery float64 `yaml:"alarm1_battery" json:"alarm1Battery"`
	Alarm2Speed   float64 `yaml:"alarm2_speed" json:"alarm2Speed"`
	Alarm2Battery float64 `yaml:"alarm2_battery" json:"alarm2Battery"`
	Alarm3Speed   float64 `yaml:"alarm3_speed" json:"alarm3Speed"`
	Alarm3Battery float64 `yaml:"alarm3_battery" json:"alarm3Battery"`

	AlarmCurrent          float64 `yaml:"alarm_current" json:"alarmCurrent"`
	AlarmPhaseCurrent     float64 `yaml:"alarm_phase_current" json:"alarmPhaseCurrent"`
	AlarmTemperature      float64 `yaml:"alarm_temperature" json:"alarmTemperature"`
	AlarmMotorTemperature float64 `yaml:"alarm_motor_temperature" json:"alarmMotorTemperature"`
	AlarmBattery          float64 `yaml:"alarm_battery" json:"alarmBattery"`
	AlarmWheel            bool    `yaml:"alarm_wheel" json:"alarmWheel"`
}

// ToAlarmConfig converts the YAML-shaped config into alarm.Config.
func (a AlarmConfig) ToAlarmConfig() alarm.Config {
	return alarm.Config{
		PwmBasedAlarms:        a.PwmBasedAlarms,
		AlarmFactor1:          a.AlarmFactor1,
		AlarmFactor2:          a.AlarmFactor2,
		WarningPwm:            a.WarningPwm,
		WarningSpeed:          a.WarningSpeed,
		WarningSpeedPeriod:    time.Duration(a.WarningSpeedPeriodMs) * time.Millisecond,
		Alarm1Speed:           a.Alarm1Speed,
		Alarm1Battery:         a.Alarm1Battery,
		Alarm2Speed:           a.Alarm2Speed,
		Alarm2Battery:         a.Alarm2Battery,
		Alarm3Speed:           a.Alarm3Speed,
		Alarm3Battery:         a.Alarm3Battery,
		AlarmCurrent:          a.AlarmCurrent,
		AlarmPhaseCurrent:     a.AlarmPhaseCurrent,
		AlarmTemperature:      a.AlarmTemperature,
		AlarmMotorTemperature: a.AlarmMotorTemperature,
		AlarmBattery:          a.AlarmBattery,
		AlarmWheel:            a.AlarmWheel,
	}
}

// ReconnectConfig holds back-off delays for a connection manager. Nothing
// passes it to connection.NewManager, which uses its own default delays.
type ReconnectConfig struct {
	InitialDelayMs int `yaml:"initial_delay_ms" json:"initialDelayMs"`
	MaxDelayMs     int `yaml:"max_delay_ms" json:"maxDelayMs"`
}

// KeepaliveConfig holds per-vendor keepalive intervals. No decoder reads
// it: each decoder always uses its built-in keepalive interval.
type KeepaliveConfig struct {
	NinebotZMs   int `yaml:"ninebot_z_ms" json:"ninebotZMs"`
	InMotionV2Ms int `yaml:"in_motion_v2_ms" json:"inMotionV2Ms"`
}

// TelemetryServerConfig configures the websocket broadcast server.
type TelemetryServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// CSVLogConfig configures ride CSV export.
type CSVLogConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
	InMiles bool   `yaml:"in_miles" json:"inMiles"`
}

// Config holds all of WheelCore's runtime configuration.
type Config struct {
	mu sync.RWMutex

	Alarm     AlarmConfig           `yaml:"alarm" json:"alarm"`
	Reconnect ReconnectConfig       `yaml:"reconnect" json:"reconnect"`
	Keepalive KeepaliveConfig       `yaml:"keepalive" json:"keepalive"`
	Server    TelemetryServerConfig `yaml:"server" json:"server"`
	CSV       CSVLogConfig          `yaml:"csv" json:"csv"`

	path string
}

// DefaultConfig returns a config with sensible defaults, mirroring the
// teacher's DefaultConfig shape.
func DefaultConfig() *Config {
	return &Config{
		Alarm: AlarmConfig{
			AlarmFactor1:         80,
			AlarmFactor2:         95,
			WarningSpeedPeriodMs: 5000,
			AlarmBattery:         20,
		},
		Reconnect: ReconnectConfig{
			InitialDelayMs: 2000,
			MaxDelayMs:     30000,
		},
		Server: TelemetryServerConfig{
			ListenAddr: ":8080",
		},
		CSV: CSVLogConfig{
			Enabled: false,
			Dir:     "/var/log/wheelcore",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and
// environment variable overrides. Falls back to defaults if the file
// can't be read or parsed.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path
	log := logrus.WithField("component", "config")

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithField("path", path).Info("no config file found, using defaults")
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.WithError(err).WithField("path", path).Warn("error parsing config, using defaults")
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.WithField("path", path).Info("config loaded")
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}
	cfg.applyEnvOverrides()
	return cfg
}

func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads WHEELCORE_* environment variables over the
// parsed/defaulted config, same precedence as the teacher's pattern.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WHEELCORE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("WHEELCORE_ALARM_BATTERY"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Alarm.AlarmBattery = n
		}
	}
	if v := os.Getenv("WHEELCORE_RECONNECT_INITIAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reconnect.InitialDelayMs = n
		}
	}
	if v := os.Getenv("WHEELCORE_RECONNECT_MAX_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reconnect.MaxDelayMs = n
		}
	}
	if v := os.Getenv("WHEELCORE_CSV_DIR"); v != "" {
		c.CSV.Dir = v
	}
	if v := os.Getenv("WHEELCORE_CSV_ENABLED"); v != "" {
		c.CSV.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("WHEELCORE_IN_MILES"); v != "" {
		c.CSV.InMiles = v == "1" || v == "true" || v == "yes"
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = "/etc/wheelcore/config.yaml"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for an API/UI boundary.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config, same as the teacher's
// UpdateFromJSON/deepMerge pair.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal current: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("config: unmarshal current: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("config: unmarshal patch: %w", err)
	}
	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("config: marshal merged: %w", err)
	}
	return json.Unmarshal(merged, c)
}

func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
