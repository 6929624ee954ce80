package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: 9090
database:
  driver: postgres
  host: db.local
auth:
  jwt_secret: from-file
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic:
    settlement: wallet.settlement
business:
  min_withdrawal: 20
  default_rollover_multiplier: 3
providers:
  poker-games:
    prefix: PG
    base_url: https://api.example
    currency: BRL
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Database.Driver != "postgres" {
		t.Fatalf("server/database = %+v %+v", cfg.Server, cfg.Database)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic.Settlement != "wallet.settlement" {
		t.Fatalf("kafka = %+v", cfg.Kafka)
	}
	if cfg.Business.DefaultRolloverMultiplier != 3 || cfg.Business.MinWithdrawal != 20 {
		t.Fatalf("business = %+v", cfg.Business)
	}

	// 未配置项取默认值
	if cfg.Server.WorkerID != 1 || cfg.Business.DepositTimeoutMinutes != 30 || !cfg.Business.DefaultRolloverActive {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Server, cfg.Business)
	}
	if cfg.Scheduler.VipWeeklyCron != "0 0 * * 1" || cfg.Scheduler.LockTTLSeconds != 600 {
		t.Fatalf("scheduler defaults = %+v", cfg.Scheduler)
	}

	p, ok := cfg.Provider("Poker-Games")
	if !ok || p.Prefix != "PG" {
		t.Fatalf("provider = %+v, %v", p, ok)
	}
	if p.Timeout() != 10*time.Second {
		t.Fatalf("default timeout = %v", p.Timeout())
	}
	if _, ok := cfg.Provider("other"); ok {
		t.Fatalf("unexpected provider")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WALLET_SERVER_PORT", "7070")
	t.Setenv("WALLET_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
