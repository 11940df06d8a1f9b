package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values used when the config file leaves a setting empty
const (
	DefaultAPIBaseURL        = "https://api.purpleair.com/v1/sensors/"
	DefaultAPIKeyEnv         = "PURPLEAIR_API_KEY"
	DefaultRequestTimeout    = 10
	DefaultConcurrency       = 4
	DefaultStaleAfterSeconds = 600
	DefaultMinConfidence     = 75
	DefaultMarkerRadius      = 200
	DefaultServerPort        = 8501
	DefaultTopicPrefix       = "purpleair"
)

// DefaultFields is the field list requested for every sensor
var DefaultFields = []string{
	"name", "model", "hardware", "last_seen", "confidence", "rssi", "uptime",
	"latitude", "longitude", "pm2.5", "pm2.5_60minute", "temperature_a",
}

// DefaultSensorIndices is the reference deployment's sensor list
var DefaultSensorIndices = []int{
	270898, 279253, 279251, 133435, 155503, 155501, 155521, 155533,
	155537, 155567, 155569, 155591, 155595, 155597, 155601, 155607,
	155605, 155613, 155629, 155639, 155673, 155679, 155691, 162991,
	163031, 163169,
}

// PurpleAirConfig holds the external sensor API settings
type PurpleAirConfig struct {
	APIBaseURL     string   `yaml:"api_base_url"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	Fields         []string `yaml:"fields"`
	SensorIndices  []int    `yaml:"sensor_indices"`
	RequestTimeout int      `yaml:"request_timeout"`
	Concurrency    int      `yaml:"concurrency"`

	// APIKey is resolved from the environment, never from YAML
	APIKey string `yaml:"-"`
}

// StatusConfig holds the health classification thresholds. A nil value
// means unset; an explicit 0 is kept.
type StatusConfig struct {
	StaleAfterSeconds *int64 `yaml:"stale_after_seconds"`
	MinConfidence     *int   `yaml:"min_confidence"`
}

// Thresholds returns the configured values, falling back to the defaults
func (s StatusConfig) Thresholds() (staleAfterSeconds int64, minConfidence int) {
	staleAfterSeconds, minConfidence = DefaultStaleAfterSeconds, DefaultMinConfidence
	if s.StaleAfterSeconds != nil {
		staleAfterSeconds = *s.StaleAfterSeconds
	}
	if s.MinConfidence != nil {
		minConfidence = *s.MinConfidence
	}
	return staleAfterSeconds, minConfidence
}

// ViewConfig describes a map camera position
type ViewConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Zoom      float64 `yaml:"zoom"`
	Pitch     float64 `yaml:"pitch"`
}

// MapConfig holds map rendering settings
type MapConfig struct {
	DefaultView  *ViewConfig `yaml:"default_view"`
	MarkerRadius int         `yaml:"marker_radius"`
}

// ServerConfig holds the web dashboard settings
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds all database configuration
type DatabaseConfig struct {
	Driver         string         `yaml:"driver"`
	MySQL          MySQLConfig    `yaml:"mysql"`
	PostgreSQL     PostgresConfig `yaml:"postgres"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	ConnectionPool PoolConfig     `yaml:"connection_pool"`
}

// MySQLConfig holds MySQL specific configuration
type MySQLConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`
}

// PostgresConfig holds PostgreSQL specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// SQLiteConfig holds SQLite specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxIdleConns    int `yaml:"max_idle_conns"`
	MaxOpenConns    int `yaml:"max_open_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// HistoryConfig toggles the refresh audit trail
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MigrationConfig holds migration specific configuration
type MigrationConfig struct {
	AutoMigrate    bool   `yaml:"auto_migrate"`
	MigrationTable string `yaml:"migration_table"`
	MigrationDir   string `yaml:"migration_dir"`
}

// MQTTConfig holds the status publisher settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	LogFile      string `yaml:"log_file"`
	LogToConsole bool   `yaml:"log_to_console"`
	LogLevel     string `yaml:"log_level"`
}

// Config holds the complete application configuration
type Config struct {
	PurpleAir PurpleAirConfig `yaml:"purpleair"`
	Status    StatusConfig    `yaml:"status"`
	Map       MapConfig       `yaml:"map"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	Migration MigrationConfig `yaml:"migration"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load loads configuration from the specified YAML file. A missing file is
// not an error: every setting has a default except the API key.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	// .env is optional, real environment variables win
	_ = godotenv.Load()

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// run on defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.ApplyDefaults()
	config.PurpleAir.APIKey = strings.TrimSpace(os.Getenv(config.PurpleAir.APIKeyEnv))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills every unset value with its default
func (c *Config) ApplyDefaults() {
	pa := &c.PurpleAir
	if pa.APIBaseURL == "" {
		pa.APIBaseURL = DefaultAPIBaseURL
	}
	if !strings.HasSuffix(pa.APIBaseURL, "/") {
		pa.APIBaseURL += "/"
	}
	if pa.APIKeyEnv == "" {
		pa.APIKeyEnv = DefaultAPIKeyEnv
	}
	if len(pa.Fields) == 0 {
		pa.Fields = append([]string(nil), DefaultFields...)
	}
	if len(pa.SensorIndices) == 0 {
		pa.SensorIndices = append([]int(nil), DefaultSensorIndices...)
	}
	if pa.RequestTimeout == 0 {
		pa.RequestTimeout = DefaultRequestTimeout
	}
	if pa.Concurrency == 0 {
		pa.Concurrency = DefaultConcurrency
	}

	// Thresholds are pointers so an explicit 0 survives
	if c.Status.StaleAfterSeconds == nil {
		stale := int64(DefaultStaleAfterSeconds)
		c.Status.StaleAfterSeconds = &stale
	}
	if c.Status.MinConfidence == nil {
		minConfidence := DefaultMinConfidence
		c.Status.MinConfidence = &minConfidence
	}

	if c.Map.DefaultView == nil {
		c.Map.DefaultView = &ViewConfig{Latitude: 37.9577, Longitude: -121.2908, Zoom: 10, Pitch: 0}
	}
	if c.Map.MarkerRadius == 0 {
		c.Map.MarkerRadius = DefaultMarkerRadius
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "purpleair_status.db"
	}

	if c.Migration.MigrationTable == "" {
		c.Migration.MigrationTable = "migrations"
	}
	if c.Migration.MigrationDir == "" {
		c.Migration.MigrationDir = "migrations"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "purpleair-status"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "result.log"
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	seen := make(map[int]bool, len(c.PurpleAir.SensorIndices))
	for _, idx := range c.PurpleAir.SensorIndices {
		if idx <= 0 {
			return fmt.Errorf("sensor index must be positive, got %d", idx)
		}
		if seen[idx] {
			return fmt.Errorf("duplicate sensor index: %d", idx)
		}
		seen[idx] = true
	}
	if c.PurpleAir.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if c.PurpleAir.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	staleAfter, minConfidence := c.Status.Thresholds()
	if staleAfter < 0 {
		return fmt.Errorf("stale_after_seconds must not be negative")
	}
	if minConfidence < 0 || minConfidence > 100 {
		return fmt.Errorf("min_confidence must be between 0 and 100, got %d", minConfidence)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql host is required")
		}
		if c.Database.MySQL.User == "" {
			return fmt.Errorf("mysql user is required")
		}
		if c.Database.MySQL.DBName == "" {
			return fmt.Errorf("mysql database name is required")
		}
	case "postgres":
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Database.PostgreSQL.User == "" {
			return fmt.Errorf("postgres user is required")
		}
		if c.Database.PostgreSQL.DBName == "" {
			return fmt.Errorf("postgres database name is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

// RequireAPIKey reports a missing secret for commands that call the API
func (c *Config) RequireAPIKey() error {
	if c.PurpleAir.APIKey == "" {
		return fmt.Errorf("API key not set: export %s or add it to .env", c.PurpleAir.APIKeyEnv)
	}
	return nil
}

// RequestTimeoutDuration returns the per-request timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.PurpleAir.RequestTimeout) * time.Second
}

// GetDSN returns the database connection string based on the configured driver
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "mysql":
		mysql := c.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
			mysql.User, mysql.Password, mysql.Host, mysql.Port, mysql.DBName,
			mysql.Charset, mysql.ParseTime, mysql.Loc)
		return dsn
	case "postgres":
		pg := c.Database.PostgreSQL
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode, pg.TimeZone)
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}
