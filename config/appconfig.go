package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// PostgresConfig selects the durable store. An empty URL keeps payments in memory.
type PostgresConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	StreamName   string `mapstructure:"stream_name"`
	StreamGroup  string `mapstructure:"stream_group"`
	ConsumerName string `mapstructure:"consumer_name"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// EventsConfig chooses where payment outcome events go: "none", "redis" or "kafka".
type EventsConfig struct {
	Driver     string `mapstructure:"driver"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	JaegerURL   string  `mapstructure:"jaeger_url"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type BreakerConfig struct {
	WindowSize           int           `mapstructure:"window_size"`
	MinimumCalls         int           `mapstructure:"minimum_calls"`
	FailureRateThreshold float64       `mapstructure:"failure_rate_threshold"`
	OpenWait             time.Duration `mapstructure:"open_wait"`
	HalfOpenCalls        int           `mapstructure:"half_open_calls"`
}

// FxConfig describes how the rate service is reached.
type FxConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

type AppConfig struct {
	Server    *ServerConfig    `mapstructure:"server"`
	Postgres  *PostgresConfig  `mapstructure:"postgres"`
	Redis     *RedisConfig     `mapstructure:"redis"`
	Kafka     *KafkaConfig     `mapstructure:"kafka"`
	Events    *EventsConfig    `mapstructure:"events"`
	Telemetry *TelemetryConfig `mapstructure:"telemetry"`
	Log       *LogConfig       `mapstructure:"log"`
	Fx        *FxConfig        `mapstructure:"fx"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*AppConfig, error) {
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.stream_name", "payments")
	v.SetDefault("redis.stream_group", "payments-audit")
	v.SetDefault("redis.consumer_name", "worker-1")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "payment-outcomes")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.buffer_size", 1000)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "fxpay-api")
	v.SetDefault("telemetry.jaeger_url", "http://jaeger:14268/api/traces")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("fx.base_url", "http://localhost:8081")
	v.SetDefault("fx.connect_timeout", 5000*time.Millisecond)
	v.SetDefault("fx.read_timeout", 10000*time.Millisecond)
	v.SetDefault("fx.call_timeout", 15*time.Second)
	v.SetDefault("fx.retry.max_attempts", 3)
	v.SetDefault("fx.retry.delay", 1000*time.Millisecond)
	v.SetDefault("fx.retry.multiplier", 1.0)
	v.SetDefault("fx.retry.max_delay", 10*time.Second)
	v.SetDefault("fx.breaker.window_size", 10)
	v.SetDefault("fx.breaker.minimum_calls", 5)
	v.SetDefault("fx.breaker.failure_rate_threshold", 50.0)
	v.SetDefault("fx.breaker.open_wait", 10*time.Second)
	v.SetDefault("fx.breaker.half_open_calls", 3)

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.host", "SERVER_HOST")
	_ = v.BindEnv("postgres.url", "POSTGRES_URL")
	_ = v.BindEnv("postgres.migrate", "POSTGRES_MIGRATE")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("redis.stream_name", "REDIS_STREAM_NAME")
	_ = v.BindEnv("redis.stream_group", "REDIS_STREAM_GROUP")
	_ = v.BindEnv("redis.consumer_name", "REDIS_CONSUMER_NAME")
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	_ = v.BindEnv("events.driver", "EVENTS_DRIVER")
	_ = v.BindEnv("events.buffer_size", "EVENTS_BUFFER_SIZE")
	_ = v.BindEnv("telemetry.enabled", "TELEMETRY_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "TELEMETRY_SERVICE_NAME")
	_ = v.BindEnv("telemetry.jaeger_url", "JAEGER_URL")
	_ = v.BindEnv("telemetry.sample_ratio", "TELEMETRY_SAMPLE_RATIO")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("fx.base_url", "FX_BASE_URL")
	_ = v.BindEnv("fx.connect_timeout", "FX_CONNECT_TIMEOUT")
	_ = v.BindEnv("fx.read_timeout", "FX_READ_TIMEOUT")
	_ = v.BindEnv("fx.call_timeout", "FX_CALL_TIMEOUT")
	_ = v.BindEnv("fx.retry.max_attempts", "FX_RETRY_MAX_ATTEMPTS")
	_ = v.BindEnv("fx.retry.delay", "FX_RETRY_DELAY")
	_ = v.BindEnv("fx.retry.multiplier", "FX_RETRY_MULTIPLIER")
	_ = v.BindEnv("fx.retry.max_delay", "FX_RETRY_MAX_DELAY")
	_ = v.BindEnv("fx.breaker.window_size", "FX_BREAKER_WINDOW_SIZE")
	_ = v.BindEnv("fx.breaker.minimum_calls", "FX_BREAKER_MINIMUM_CALLS")
	_ = v.BindEnv("fx.breaker.failure_rate_threshold", "FX_BREAKER_FAILURE_RATE_THRESHOLD")
	_ = v.BindEnv("fx.breaker.open_wait", "FX_BREAKER_OPEN_WAIT")
	_ = v.BindEnv("fx.breaker.half_open_calls", "FX_BREAKER_HALF_OPEN_CALLS")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &config, nil
}
