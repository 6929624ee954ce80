package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Kafka     KafkaConfig               `mapstructure:"kafka"`
	Log       LogConfig                 `mapstructure:"log"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Business  BusinessConfig            `mapstructure:"business"`
	Scheduler SchedulerConfig           `mapstructure:"scheduler"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	WorkerID int `mapstructure:"worker_id"`
}

// DatabaseConfig 支持 mysql 与 postgres 两种驱动
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Settlement string `mapstructure:"settlement"`
	Deposit    string `mapstructure:"deposit"`
	Withdrawal string `mapstructure:"withdrawal"`
	Vip        string `mapstructure:"vip"`
	Affiliate  string `mapstructure:"affiliate"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AuthConfig 只做令牌校验，签发由账户系统负责
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	AdminAPIKey   string `mapstructure:"admin_api_key"`
	GatewaySecret string `mapstructure:"gateway_secret"`
}

// BusinessConfig 业务默认值，可被 setting 表覆盖
type BusinessConfig struct {
	DepositTimeoutMinutes     int     `mapstructure:"deposit_timeout_minutes"`
	MaxRetryCount             int     `mapstructure:"max_retry_count"`
	DefaultRolloverActive     bool    `mapstructure:"default_rollover_active"`
	DefaultRolloverMultiplier float64 `mapstructure:"default_rollover_multiplier"`
	MinWithdrawal             float64 `mapstructure:"min_withdrawal"`
	MinDeposit                float64 `mapstructure:"min_deposit"`
	DefaultCurrency           string  `mapstructure:"default_currency"`
}

type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	VipWeeklyCron  string `mapstructure:"vip_weekly_cron"`
	VipMonthlyCron string `mapstructure:"vip_monthly_cron"`
	RakebackCron   string `mapstructure:"rakeback_cron"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

// ProviderConfig 游戏供应商配置，key 为回调路由中的 provider 名称
type ProviderConfig struct {
	Prefix         string `mapstructure:"prefix"`
	BaseURL        string `mapstructure:"base_url"`
	AgentCode      string `mapstructure:"agent_code"`
	AgentToken     string `mapstructure:"agent_token"`
	AgentSecret    string `mapstructure:"agent_secret"`
	Currency       string `mapstructure:"currency"`
	Lang           string `mapstructure:"lang"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Provider 按名称查找供应商配置
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[strings.ToLower(name)]
	return p, ok
}

// LoadConfig 加载配置文件，环境变量以 WALLET_ 为前缀覆盖
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("business.deposit_timeout_minutes", 30)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.default_rollover_active", true)
	v.SetDefault("business.default_rollover_multiplier", 2)
	v.SetDefault("business.default_currency", "BRL")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.vip_weekly_cron", "0 0 * * 1")
	v.SetDefault("scheduler.vip_monthly_cron", "0 0 1 * *")
	v.SetDefault("scheduler.rakeback_cron", "59 23 * * *")
	v.SetDefault("scheduler.lock_ttl_seconds", 600)
}
