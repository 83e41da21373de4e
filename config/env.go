package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Broker    BrokerConfig
	Register  RegisterConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	HTTPPort        string
	HealthPort      string
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the postgres connection string. POS_DSN overrides the parts.
func (c DBConfig) DSN() string {
	if dsn := os.Getenv("POS_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// IssueTokens enables the development token endpoint.
	IssueTokens bool
}

type BrokerConfig struct {
	// Kind is one of redis, rabbitmq, kafka or none.
	Kind string

	RabbitHost     string
	RabbitPort     int
	RabbitUser     string
	RabbitPassword string
	RabbitVHost    string
	RabbitExchange string

	KafkaBrokers []string
	KafkaTopic   string
}

type RegisterConfig struct {
	TimeZone       string
	CashMethodCode string
}

// Location resolves the register time zone, falling back to local time.
func (c RegisterConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Printf("Unknown REGISTER_TZ %q, using local time", c.TimeZone)
		return time.Local
	}
	return loc
}

type RateLimitConfig struct {
	// Rate uses the limiter format, e.g. "100-M".
	Rate string
}

type LogConfig struct {
	Level       string
	Development bool
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Server: ServerConfig{
			HTTPPort:        getEnv("HTTP_PORT", "8080"),
			HealthPort:      getEnv("GRPC_HEALTH_PORT", "50051"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "pizzeria"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Enabled:  getBool("REDIS_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", "change-me"),
			TokenTTL:    getDuration("JWT_TTL", 12*time.Hour),
			IssueTokens: getBool("AUTH_ISSUE_TOKENS", false),
		},
		Broker: BrokerConfig{
			Kind:           strings.ToLower(getEnv("EVENT_BROKER", "redis")),
			RabbitHost:     getEnv("RABBITMQ_HOST", "localhost"),
			RabbitPort:     getInt("RABBITMQ_PORT", 5672),
			RabbitUser:     getEnv("RABBITMQ_USER", "guest"),
			RabbitPassword: getEnv("RABBITMQ_PASSWORD", "guest"),
			RabbitVHost:    getEnv("RABBITMQ_VHOST", "/"),
			RabbitExchange: getEnv("RABBITMQ_EXCHANGE", "pos.events"),
			KafkaBrokers:   strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			KafkaTopic:     getEnv("KAFKA_TOPIC", "pos-events"),
		},
		Register: RegisterConfig{
			TimeZone:       getEnv("REGISTER_TZ", ""),
			CashMethodCode: getEnv("REGISTER_CASH_METHOD", "CASH"),
		},
		RateLimit: RateLimitConfig{
			Rate: getEnv("RATE_LIMIT", "100-M"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBool("LOG_DEVELOPMENT", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
