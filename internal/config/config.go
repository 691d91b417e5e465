// Package config loads the scand service configuration and the scan control
// policy document.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/pkg/common/logger"
)

// EnvPrefix prefixes environment overrides, e.g. SCAND_HTTP_ADDR.
const EnvPrefix = "SCAND"

// Config is the service configuration.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Device    DeviceConfig    `mapstructure:"device"`
}

// ServiceConfig identifies this instance.
type ServiceConfig struct {
	Name     string `mapstructure:"name" validate:"required"`
	DeviceID string `mapstructure:"device_id" validate:"required"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// HTTPConfig configures the control API and the auxiliary servers. An empty
// DebugAddr or MetricsAddr disables that server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	DebugAddr       string        `mapstructure:"debug_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
}

// PostgresConfig enables durable scan result storage when DSN is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// KafkaConfig enables callback event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	Topic    string   `mapstructure:"topic" validate:"required_with=Brokers"`
}

// ScanConfig holds the scan timing and PNO thresholds.
type ScanConfig struct {
	DefaultBand              string        `mapstructure:"default_band" validate:"required"`
	PolicyFile               string        `mapstructure:"policy_file"`
	WaitResultTimeout        time.Duration `mapstructure:"wait_result_timeout" validate:"gt=0"`
	SoftwarePnoInterval      time.Duration `mapstructure:"software_pno_interval" validate:"gt=0"`
	SystemScanMinInterval    time.Duration `mapstructure:"system_scan_min_interval" validate:"gt=0"`
	SystemScanMaxInterval    time.Duration `mapstructure:"system_scan_max_interval" validate:"gtefield=SystemScanMinInterval"`
	DisconnectedScanInterval time.Duration `mapstructure:"disconnected_scan_interval" validate:"gt=0"`
	MaxPnoFailures           int           `mapstructure:"max_pno_failures" validate:"gte=1"`
	PnoRestartInitialBackoff time.Duration `mapstructure:"pno_restart_initial_backoff" validate:"gt=0"`
	PnoRestartMaxBackoff     time.Duration `mapstructure:"pno_restart_max_backoff" validate:"gtefield=PnoRestartInitialBackoff"`
	PnoScanInterval          time.Duration `mapstructure:"pno_scan_interval" validate:"gt=0"`
	PnoMinRssi2Dot4GHz       int           `mapstructure:"pno_min_rssi_2g" validate:"lte=0"`
	PnoMinRssi5GHz           int           `mapstructure:"pno_min_rssi_5g" validate:"lte=0"`
}

// Band returns the parsed default band.
func (c ScanConfig) Band() wifi.Band { return wifi.ParseBand(c.DefaultBand) }

// DriverConfig configures the simulated radio.
type DriverConfig struct {
	ScanLatency time.Duration `mapstructure:"scan_latency" validate:"gte=0"`
	PnoLatency  time.Duration `mapstructure:"pno_latency" validate:"gte=0"`
	HardwarePno bool          `mapstructure:"hardware_pno"`
	Air         []AirNetwork  `mapstructure:"air" validate:"dive"`
}

// AirNetwork is an access point visible to the simulated radio.
type AirNetwork struct {
	BSSID        string `mapstructure:"bssid" validate:"required,mac"`
	SSID         string `mapstructure:"ssid" validate:"max=32"`
	Frequency    int    `mapstructure:"frequency" validate:"gte=2400,lte=7125"`
	RSSI         int    `mapstructure:"rssi" validate:"lte=0"`
	Capabilities string `mapstructure:"capabilities"`
}

// DeviceConfig seeds the settings store.
type DeviceConfig struct {
	ScreenOn      bool           `mapstructure:"screen_on"`
	SavedNetworks []SavedNetwork `mapstructure:"saved_networks" validate:"dive"`
}

// SavedNetwork is a saved network configuration.
type SavedNetwork struct {
	ID     int    `mapstructure:"id"`
	SSID   string `mapstructure:"ssid" validate:"required,max=32"`
	BSSID  string `mapstructure:"bssid" validate:"omitempty,mac"`
	Hidden bool   `mapstructure:"hidden"`
}

// LogLevel maps the configured level name.
func (c Config) LogLevel() logger.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

// AirNetworks converts the simulated access points.
func (c DriverConfig) AirNetworks() []wifi.ScanInfo {
	out := make([]wifi.ScanInfo, 0, len(c.Air))
	for _, ap := range c.Air {
		out = append(out, wifi.ScanInfo{
			BSSID:        strings.ToLower(ap.BSSID),
			SSID:         ap.SSID,
			Frequency:    ap.Frequency,
			RSSI:         ap.RSSI,
			Capabilities: ap.Capabilities,
		})
	}
	return out
}

// NetworkConfigs converts the saved networks.
func (c DeviceConfig) NetworkConfigs() []wifi.NetworkConfig {
	out := make([]wifi.NetworkConfig, 0, len(c.SavedNetworks))
	for _, n := range c.SavedNetworks {
		out = append(out, wifi.NetworkConfig{
			NetworkID:  n.ID,
			SSID:       n.SSID,
			BSSID:      strings.ToLower(n.BSSID),
			HiddenSSID: n.Hidden,
		})
	}
	return out
}

var validate = validator.New()

// Load reads the service configuration. path may be empty, in which case
// scand.yaml is searched in /etc/scand and the working directory; a missing
// file leaves defaults and SCAND_* environment overrides in effect.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scand")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/scand/")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the default band name.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Scan.Band() == wifi.BandUnspecified {
		return fmt.Errorf("invalid config: unknown scan.default_band %q", c.Scan.DefaultBand)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "scand")
	v.SetDefault("service.device_id", "scand-local")

	v.SetDefault("log.level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.debug_addr", ":6060")
	v.SetDefault("http.metrics_addr", ":9090")
	v.SetDefault("http.read_timeout", 5*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.rate_burst", 40)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "scand")
	v.SetDefault("kafka.topic", "wifi-scan-events")

	v.SetDefault("scan.default_band", wifi.BandBoth.String())
	v.SetDefault("scan.policy_file", "")
	v.SetDefault("scan.wait_result_timeout", 10*time.Second)
	v.SetDefault("scan.software_pno_interval", 60*time.Second)
	v.SetDefault("scan.system_scan_min_interval", 20*time.Second)
	v.SetDefault("scan.system_scan_max_interval", 160*time.Second)
	v.SetDefault("scan.disconnected_scan_interval", 120*time.Second)
	v.SetDefault("scan.max_pno_failures", 5)
	v.SetDefault("scan.pno_restart_initial_backoff", 5*time.Second)
	v.SetDefault("scan.pno_restart_max_backoff", 5*time.Minute)
	v.SetDefault("scan.pno_scan_interval", 60*time.Second)
	v.SetDefault("scan.pno_min_rssi_2g", -80)
	v.SetDefault("scan.pno_min_rssi_5g", -77)

	v.SetDefault("driver.scan_latency", 3*time.Second)
	v.SetDefault("driver.pno_latency", 10*time.Second)
	v.SetDefault("driver.hardware_pno", true)

	v.SetDefault("device.screen_on", true)
}
