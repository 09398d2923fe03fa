package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Cargo    CargoConfig    `yaml:"cargo"`
	Branches []BranchConfig `yaml:"branches"`
}

type DatabaseConfig struct {
	// Driver is "postgres" (default) or "memory".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds a pgx connection URL.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	BookingEventsTopicName string `yaml:"booking_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CargoConfig struct {
	HTTPAddr               string   `yaml:"http_addr"`
	JWTSecret              string   `yaml:"jwt_secret"`
	CORSAllowedOrigins     []string `yaml:"cors_allowed_origins"`
	KafkaConsumerGroup     string   `yaml:"kafka_consumer_group"`
	BookingCacheTTLSeconds int      `yaml:"booking_cache_ttl_seconds"`

	LRNumberWidth         int    `yaml:"lr_number_width"`
	DefaultDeliveryRemark string `yaml:"default_delivery_remark"`
	DefaultCancelRemark   string `yaml:"default_cancel_remark"`

	RelayHTTPAddr            string `yaml:"relay_http_addr"`
	RelayPollIntervalSeconds int    `yaml:"relay_poll_interval_seconds"`
	RelayBatchSize           int    `yaml:"relay_batch_size"`
	RelayConcurrency         int    `yaml:"relay_concurrency"`
	RelayLeaseSeconds        int    `yaml:"relay_lease_seconds"`
	RelayRateLimitPerMinute  int    `yaml:"relay_rate_limit_per_minute"`

	// Retry schedule for failed publishes. If not set: 5/15/30/60 minutes.
	RelayBackoff1Seconds int `yaml:"relay_backoff_1_seconds"`
	RelayBackoff2Seconds int `yaml:"relay_backoff_2_seconds"`
	RelayBackoff3Seconds int `yaml:"relay_backoff_3_seconds"`
	RelayBackoff4Seconds int `yaml:"relay_backoff_4_seconds"`
}

type BranchConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
