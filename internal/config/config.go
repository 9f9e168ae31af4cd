package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the lookout screen service.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the monitoring server.
// - UIAddr: The listen address of the screen UI server.
// - DeviceID: The key under which the last known position is stored.
// - TickRate: The maximum number of screen renders per second.
// - PersistInterval: How often the last rendered position is written to the database.
// - Source: Configuration of the location source.
// - Map: Configuration of the static map provider.
// - Database: Configuration settings for the PostgreSQL database.
type Config struct {
	Env             string         `mapstructure:"env"`                                   // Env is the current environment: local, development, production.
	Port            int            `mapstructure:"health_port" validate:"min=1,max=65535"` // Port is the monitoring server port.
	UIAddr          string         `mapstructure:"ui_addr"     validate:"required"`        // UIAddr is the screen UI listen address.
	DeviceID        string         `mapstructure:"device_id"   validate:"required"`        // DeviceID identifies this screen's position record.
	TickRate        float64        `mapstructure:"tick_rate"   validate:"gt=0,lte=60"`     // TickRate is the render cap in renders per second.
	PersistInterval time.Duration  `mapstructure:"persist_interval" validate:"gt=0"`       // PersistInterval is the position write cadence.
	Source          SourceConfig   `mapstructure:"source"`                                // Source holds the location source configuration.
	Map             MapConfig      `mapstructure:"map"`                                   // Map holds the static map configuration.
	Database        PostgresConfig `mapstructure:"postgres"`                              // Database holds the postgres database configuration.
}

// SourceConfig describes where location samples come from.
type SourceConfig struct {
	Type         string  `mapstructure:"type"          validate:"oneof=simulated nmea-serial nmea-file mqtt"`
	SerialPort   string  `mapstructure:"serial_port"   validate:"required_if=Type nmea-serial"`
	BaudRate     uint    `mapstructure:"serial_baud"   validate:"gt=0"`
	ReplayFile   string  `mapstructure:"replay_file"   validate:"required_if=Type nmea-file"`
	MQTTBroker   string  `mapstructure:"mqtt_broker"   validate:"required_if=Type mqtt"`
	MQTTTopic    string  `mapstructure:"mqtt_topic"    validate:"required_if=Type mqtt"`
	MQTTClientID string  `mapstructure:"mqtt_client_id"`
	SimRate      float64 `mapstructure:"sim_rate"      validate:"gt=0"`
	SimLatitude  float64 `mapstructure:"sim_lat"       validate:"latitude"`
	SimLongitude float64 `mapstructure:"sim_lon"       validate:"longitude"`
	SimAltitude  float64 `mapstructure:"sim_alt"`
	SimSpeed     float64 `mapstructure:"sim_speed"     validate:"gte=0"`
	SimBearing   float64 `mapstructure:"sim_bearing"   validate:"gte=0,lt=360"`
}

// MapConfig describes the static map provider and the map widget.
type MapConfig struct {
	ProviderType string        `mapstructure:"provider"   validate:"oneof=google http"`
	APIKey       string        `mapstructure:"api_key"    validate:"required_if=ProviderType google"`
	BaseURL      string        `mapstructure:"base_url"   validate:"required_if=ProviderType http,omitempty,url"`
	Zoom         int           `mapstructure:"zoom"       validate:"min=0,max=21"`
	Width        int           `mapstructure:"width"      validate:"gt=0"`
	Height       int           `mapstructure:"height"     validate:"gt=0"`
	Timeout      time.Duration `mapstructure:"timeout"    validate:"gt=0"`
	RateLimit    int           `mapstructure:"rate_limit" validate:"gte=0"`
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`     // Host is the database server address.
	Port     string `mapstructure:"port"`     // Port is the database server port.
	User     string `mapstructure:"user"`     // User is the database user.
	Password string `mapstructure:"password"` // Password is the database user's password.
	Name     string `mapstructure:"db_name"`  // Name is the name of the database.
}

// Enabled reports whether a database is configured. Without one the last
// known position is neither loaded nor saved.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// keys maps every configuration key to its environment variable and default.
var keys = []struct {
	key, env, def string
}{
	{"env", "LOOKOUT_ENV", "production"},
	{"health_port", "LOOKOUT_HEALTH_PORT", "8080"},
	{"ui_addr", "LOOKOUT_UI_ADDR", ":8090"},
	{"device_id", "LOOKOUT_DEVICE_ID", "default"},
	{"tick_rate", "LOOKOUT_TICK_RATE", "4"},
	{"persist_interval", "LOOKOUT_PERSIST_INTERVAL", "5s"},
	{"source.type", "LOOKOUT_SOURCE_TYPE", "simulated"},
	{"source.serial_port", "LOOKOUT_SERIAL_PORT", "/dev/serial0"},
	{"source.serial_baud", "LOOKOUT_SERIAL_BAUD", "9600"},
	{"source.replay_file", "LOOKOUT_REPLAY_FILE", ""},
	{"source.mqtt_broker", "LOOKOUT_MQTT_BROKER", "tcp://localhost:1883"},
	{"source.mqtt_topic", "LOOKOUT_MQTT_TOPIC", "lookout/gps"},
	{"source.mqtt_client_id", "LOOKOUT_MQTT_CLIENT_ID", "lookout-screen"},
	{"source.sim_rate", "LOOKOUT_SIM_RATE", "50"},
	{"source.sim_lat", "LOOKOUT_SIM_LAT", "37.42"},
	{"source.sim_lon", "LOOKOUT_SIM_LON", "-122.08"},
	{"source.sim_alt", "LOOKOUT_SIM_ALT", "10"},
	{"source.sim_speed", "LOOKOUT_SIM_SPEED", "1.5"},
	{"source.sim_bearing", "LOOKOUT_SIM_BEARING", "45"},
	{"map.provider", "LOOKOUT_MAP_PROVIDER", "http"},
	{"map.api_key", "LOOKOUT_MAP_KEY", ""},
	{"map.base_url", "LOOKOUT_MAP_BASE_URL", "https://maps.googleapis.com/maps/api/staticmap"},
	{"map.zoom", "LOOKOUT_MAP_ZOOM", "20"},
	{"map.width", "LOOKOUT_MAP_WIDTH", "700"},
	{"map.height", "LOOKOUT_MAP_HEIGHT", "500"},
	{"map.timeout", "LOOKOUT_MAP_TIMEOUT", "10s"},
	{"map.rate_limit", "LOOKOUT_MAP_RATE_LIMIT", "5"},
	{"postgres.host", "DB_HOST", ""},
	{"postgres.port", "DB_PORT", "5432"},
	{"postgres.user", "DB_USERNAME", ""},
	{"postgres.password", "DB_PASSWORD", ""},
	{"postgres.db_name", "DB_NAME", ""},
}

// MustLoad loads the configuration from the environment, an optional .env file
// and an optional YAML file named by LOOKOUT_CONFIG_FILE, in that order of precedence.
// A configuration file without an extension is read as YAML.
// It panics when a value cannot be parsed or the result is invalid.
func MustLoad() *Config {
	_ = godotenv.Load()

	v := viper.New()
	for _, k := range keys {
		v.SetDefault(k.key, k.def)
		_ = v.BindEnv(k.key, k.env)
	}

	_ = v.BindEnv("config_file", "LOOKOUT_CONFIG_FILE")
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			panic("failed to read configuration file")
		}
	}

	cfg := &Config{
		Env:             v.GetString("env"),
		Port:            mustInt(v, "health_port", "failed to parse port for monitoring server from configuration"),
		UIAddr:          v.GetString("ui_addr"),
		DeviceID:        v.GetString("device_id"),
		TickRate:        mustFloat(v, "tick_rate", "failed to parse tick rate from configuration"),
		PersistInterval: mustDuration(v, "persist_interval", "failed to parse persist interval from configuration"),
		Source: SourceConfig{
			Type:         v.GetString("source.type"),
			SerialPort:   v.GetString("source.serial_port"),
			BaudRate:     uint(mustInt(v, "source.serial_baud", "failed to parse serial baud rate from configuration")),
			ReplayFile:   v.GetString("source.replay_file"),
			MQTTBroker:   v.GetString("source.mqtt_broker"),
			MQTTTopic:    v.GetString("source.mqtt_topic"),
			MQTTClientID: v.GetString("source.mqtt_client_id"),
			SimRate:      mustFloat(v, "source.sim_rate", "failed to parse simulator rate from configuration"),
			SimLatitude:  mustFloat(v, "source.sim_lat", "failed to parse simulator latitude from configuration"),
			SimLongitude: mustFloat(v, "source.sim_lon", "failed to parse simulator longitude from configuration"),
			SimAltitude:  mustFloat(v, "source.sim_alt", "failed to parse simulator altitude from configuration"),
			SimSpeed:     mustFloat(v, "source.sim_speed", "failed to parse simulator speed from configuration"),
			SimBearing:   mustFloat(v, "source.sim_bearing", "failed to parse simulator bearing from configuration"),
		},
		Map: MapConfig{
			ProviderType: v.GetString("map.provider"),
			APIKey:       v.GetString("map.api_key"),
			BaseURL:      v.GetString("map.base_url"),
			Zoom:         mustInt(v, "map.zoom", "failed to parse map zoom from configuration"),
			Width:        mustInt(v, "map.width", "failed to parse map width from configuration"),
			Height:       mustInt(v, "map.height", "failed to parse map height from configuration"),
			Timeout:      mustDuration(v, "map.timeout", "failed to parse map timeout from configuration"),
			RateLimit:    mustInt(v, "map.rate_limit", "failed to parse map rate limit from configuration"),
		},
		Database: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Name:     v.GetString("postgres.db_name"),
		},
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	return cfg
}

// TickInterval is the minimum time between two renders.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRate)
}

func mustInt(v *viper.Viper, key, msg string) int {
	value, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		panic(msg)
	}

	return value
}

func mustFloat(v *viper.Viper, key, msg string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil {
		panic(msg)
	}

	return value
}

func mustDuration(v *viper.Viper, key, msg string) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		panic(msg)
	}

	return value
}
