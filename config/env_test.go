package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("EVENT_BROKER", "")
	t.Setenv("JWT_TTL", "")

	cfg := LoadConfig()
	if cfg.Server.HTTPPort != "8080" {
		t.Errorf("http port = %q", cfg.Server.HTTPPort)
	}
	if cfg.Broker.Kind != "redis" {
		t.Errorf("broker = %q", cfg.Broker.Kind)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("token ttl = %v", cfg.Auth.TokenTTL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("EVENT_BROKER", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("REDIS_ENABLED", "false")

	cfg := LoadConfig()
	if cfg.Broker.Kind != "kafka" || len(cfg.Broker.KafkaBrokers) != 2 {
		t.Errorf("broker = %+v", cfg.Broker)
	}
	if cfg.DB.MaxOpenConns != 7 || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("db %d shutdown %v", cfg.DB.MaxOpenConns, cfg.Server.ShutdownTimeout)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled")
	}
}

func TestDSN(t *testing.T) {
	t.Setenv("POS_DSN", "")
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "pos", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=pos sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("dsn = %q", got)
	}

	t.Setenv("POS_DSN", "postgres://x")
	if got := c.DSN(); got != "postgres://x" {
		t.Errorf("override dsn = %q", got)
	}
}

func TestRegisterLocation(t *testing.T) {
	if loc := (RegisterConfig{TimeZone: "UTC"}).Location(); loc != time.UTC {
		t.Errorf("location = %v", loc)
	}
	if loc := (RegisterConfig{TimeZone: "Nowhere/Else"}).Location(); loc != time.Local {
		t.Errorf("fallback location = %v", loc)
	}
}
