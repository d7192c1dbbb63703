package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bogenrs/silverline-hood/internal/hood"
)

const (
	DefaultHTTPAddr = "0.0.0.0:8080"
)

// MQTT holds optional bridge settings. The bridge is enabled when a
// broker URL is present.
type MQTT struct {
	BrokerURL   string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

func (m MQTT) Enabled() bool {
	return m.BrokerURL != ""
}

// Config is the full hoodd runtime configuration, read from environment
// variables.
type Config struct {
	DeviceHost   string
	DevicePort   int
	HTTPAddr     string
	PollInterval time.Duration
	Timeouts     hood.Timeouts
	Profile      hood.Profile
	MQTT         MQTT
}

// Load reads config from the environment, applies defaults, and
// validates.
func Load() (Config, error) {
	cfg := Config{
		DeviceHost: os.Getenv("HOODD_DEVICE_HOST"),
		HTTPAddr:   envOrDefault("HOODD_HTTP_ADDR", DefaultHTTPAddr),
		MQTT: MQTT{
			BrokerURL:   os.Getenv("HOODD_MQTT_BROKER"),
			Username:    os.Getenv("HOODD_MQTT_USERNAME"),
			Password:    os.Getenv("HOODD_MQTT_PASSWORD"),
			TopicPrefix: envOrDefault("HOODD_MQTT_TOPIC_PREFIX", "hoodd"),
			ClientID:    os.Getenv("HOODD_MQTT_CLIENT_ID"),
		},
	}

	if cfg.DeviceHost == "" {
		return Config{}, fmt.Errorf("HOODD_DEVICE_HOST is required")
	}

	var err error
	if cfg.DevicePort, err = envInt("HOODD_DEVICE_PORT", hood.DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.DevicePort < 1 || cfg.DevicePort > 65535 {
		return Config{}, fmt.Errorf("HOODD_DEVICE_PORT %d out of range", cfg.DevicePort)
	}

	interval, err := envDuration("HOODD_POLL_INTERVAL", hood.DefaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = hood.ClampPollInterval(interval)

	if cfg.Timeouts.Connect, err = envDuration("HOODD_CONNECT_TIMEOUT", hood.DefaultConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.Handshake, err = envDuration("HOODD_HANDSHAKE_TIMEOUT", hood.DefaultHandshakeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.Response, err = envDuration("HOODD_RESPONSE_TIMEOUT", hood.DefaultResponseTimeout); err != nil {
		return Config{}, err
	}

	if cfg.Profile, err = loadProfile(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadProfile applies firmware mapping overrides on top of the default
// profile. The on/off values are empirically derived and differ between
// firmware revisions, so each one is overridable.
func loadProfile() (hood.Profile, error) {
	profile := hood.DefaultProfile()

	var err error
	if profile.LightOn, err = envInt("HOODD_PROFILE_LIGHT_ON", profile.LightOn); err != nil {
		return hood.Profile{}, err
	}
	if profile.LightOff, err = envInt("HOODD_PROFILE_LIGHT_OFF", profile.LightOff); err != nil {
		return hood.Profile{}, err
	}
	if profile.MotorOff, err = envInt("HOODD_PROFILE_MOTOR_OFF", profile.MotorOff); err != nil {
		return hood.Profile{}, err
	}
	for i := range profile.MotorSpeeds {
		key := fmt.Sprintf("HOODD_PROFILE_MOTOR_SPEED_%d", i+1)
		if profile.MotorSpeeds[i], err = envInt(key, profile.MotorSpeeds[i]); err != nil {
			return hood.Profile{}, err
		}
	}
	if name := os.Getenv("HOODD_PROFILE_NAME"); name != "" {
		profile.Name = name
	}

	if err := profile.Validate(); err != nil {
		return hood.Profile{}, err
	}
	return profile, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
