package config

import (
	"fmt"
	"os"

	"github.com/BearBump/CourierBid/internal/logger"
	"go.yaml.in/yaml/v4"
)

const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"

	LedgerPostgres = "postgres"
)

type Config struct {
	// Backend selects the substrate for locations, notifications and, unless Ledger is set, jobs/bids.
	Backend string `yaml:"backend"`
	// Ledger optionally moves jobs and bids to another store of record ("postgres").
	Ledger string `yaml:"ledger"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logger   logger.Config  `yaml:"logger"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Courier  CourierConfig  `yaml:"courier"`
	Audit    AuditConfig    `yaml:"audit"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type KafkaConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	OutcomesTopicName string `yaml:"outcomes_topic_name"`
	PublishOutcomes   bool   `yaml:"publish_outcomes"`
}

type DispatchConfig struct {
	AcceptanceWindowSeconds int    `yaml:"acceptance_window_seconds"`
	MaxCandidates           int    `yaml:"max_candidates"`
	Cycles                  int    `yaml:"cycles"`
	CycleDelaySeconds       int    `yaml:"cycle_delay_seconds"`
	HTTPAddr                string `yaml:"http_addr"`
	SwaggerPath             string `yaml:"swagger_path"`
}

type CourierConfig struct {
	ReportIntervalSeconds  int     `yaml:"report_interval_seconds"`
	DecisionDelayMinMillis int     `yaml:"decision_delay_min_millis"`
	DecisionDelayMaxMillis int     `yaml:"decision_delay_max_millis"`
	DeliveryMinSeconds     int     `yaml:"delivery_min_seconds"`
	DeliveryMaxSeconds     int     `yaml:"delivery_max_seconds"`
	RetryDelaySeconds      int     `yaml:"retry_delay_seconds"`
	AcceptProbability      float64 `yaml:"accept_probability"`
	// DedupTTLSeconds bounds how long a handled offer id is remembered.
	DedupTTLSeconds int `yaml:"dedup_ttl_seconds"`
}

type AuditConfig struct {
	ConsumerGroup string `yaml:"consumer_group"`
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

	if config.Backend == "" {
		config.Backend = BackendRedis
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Ledger {
	case "", LedgerPostgres:
	default:
		return fmt.Errorf("unknown ledger %q", c.Ledger)
	}
	if c.Courier.AcceptProbability < 0 || c.Courier.AcceptProbability > 1 {
		return fmt.Errorf("courier.accept_probability must be within [0,1], got %v", c.Courier.AcceptProbability)
	}
	return nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (c *Config) PostgresConnString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) OutcomesTopic() string {
	if c.Kafka.OutcomesTopicName == "" {
		return "dispatch.outcomes"
	}
	return c.Kafka.OutcomesTopicName
}
