package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Service      ServiceConfig      `mapstructure:"service"`
	Upstream     UpstreamConfig     `mapstructure:"upstream"`
	OSS          OSSConfig          `mapstructure:"oss"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Poll         PollConfig         `mapstructure:"poll"`
	Retention    RetentionConfig    `mapstructure:"retention"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ServiceConfig elevated access for trusted server contexts (the analysis
// engine and auth/billing hooks). KeyHash is a bcrypt hash of the shared
// service API key; the plaintext key never lives in config.
type ServiceConfig struct {
	KeyHash string `mapstructure:"key_hash"`
}

// UpstreamConfig the external analysis engine this gateway forwards to.
type UpstreamConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type SubscriptionConfig struct {
	Plans map[string]PlanConfig `mapstructure:"plans"`
}

// PlanConfig MonthlyLimit <= 0 means unlimited.
type PlanConfig struct {
	MonthlyLimit int     `mapstructure:"monthly_limit"`
	Price        float64 `mapstructure:"price"`
}

type PollConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

type RetentionConfig struct {
	Days               int  `mapstructure:"days"`
	ArchiveToOSS       bool `mapstructure:"archive_to_oss"`
	SweepIntervalHours int  `mapstructure:"sweep_interval_hours"`
}

func Load(configPath string) (*Config, error) {
	// Prefer config.local.yaml (real secrets, not committed) when present
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Environment overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
