package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config/local.yaml"

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	Log      Log      `yaml:"log"`
	HTTP     HTTP     `yaml:"http"`
	Postgres PG       `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Auth     Auth     `yaml:"auth"`
	Sync     Sync     `yaml:"sync"`
	Limiter  Limiter  `yaml:"limiter"`
	Breaker  Breaker  `yaml:"breaker"`
	Tracing  Tracing  `yaml:"tracing"`
	Checkout Checkout `yaml:"checkout"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	// Empty URL disables the remote store; the storefront then runs local-only.
	URL        string `yaml:"url" env:"DB_URL"`
	Migrations string `yaml:"migrations" env:"MIGRATIONS_PATH" env-default:"file://migrations"`
	MaxConns   int32  `yaml:"max_conns" env-default:"10"`
}

type Redis struct {
	// Empty Addr keeps profile state in process memory.
	Addr string `yaml:"addr" env:"REDIS_ADDR"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID      string        `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"storefront-stats-group"`
	ClientID     string        `yaml:"client_id" env-default:"storefront"`
	Retries      int           `yaml:"retries" env-default:"3"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env-default:"500ms"`
}

type Auth struct {
	Secret   string        `yaml:"secret" env:"ACCESS_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" env-default:"24h"`
}

type Sync struct {
	Interval          time.Duration `yaml:"interval" env:"SYNC_INTERVAL" env-default:"30s"`
	ReadinessAttempts int           `yaml:"readiness_attempts" env-default:"10"`
	ReadinessSpacing  time.Duration `yaml:"readiness_spacing" env-default:"1s"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout" env-default:"5s"`
	CartIdleTTL       time.Duration `yaml:"cart_idle_ttl" env-default:"30m"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Breaker struct {
	MaxRequests uint32        `yaml:"max_requests" env-default:"3"`
	Interval    time.Duration `yaml:"interval" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	ServiceName string  `yaml:"service_name" env-default:"storefront"`
	Endpoint    string  `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	SampleRatio float64 `yaml:"sample_ratio" env-default:"1"`
}

type Checkout struct {
	// Session TTL for abandoned wizards.
	WizardTTL time.Duration `yaml:"wizard_ttl" env-default:"30m"`
}

func MustLoad() *Config {
	configPath := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
