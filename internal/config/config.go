package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/DevNectorFoods/Email-Automation/pkg/config"
)

// SecretsConfig carries the credential sealing key, 32 bytes of hex.
type SecretsConfig struct {
	Key string `yaml:"key"`
}

// IngestConfig tunes the background fetch loop.
type IngestConfig struct {
	IntervalSeconds    int    `yaml:"interval_seconds"`
	Workers            int    `yaml:"workers"`
	FetchLimit         int    `yaml:"fetch_limit"`
	IMAPTimeoutSeconds int    `yaml:"imap_timeout_seconds"`
	GuardTTLHours      int    `yaml:"guard_ttl_hours"`
	Categorizer        string `yaml:"categorizer"` // hierarchy / weighted
}

type Config struct {
	DB      config.DBConfig     `yaml:"db"`
	MQ      config.MQConfig     `yaml:"mq"`
	Redis   config.RedisConfig  `yaml:"redis"`
	JWT     config.JWTConfig    `yaml:"jwt"`
	Server  config.ServerConfig `yaml:"server"`
	Secrets SecretsConfig       `yaml:"secrets"`
	Ingest  IngestConfig        `yaml:"ingest"`
}

func Load() *Config {
	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 转换为 Config 结构
	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	if key := os.Getenv("SECRETS_KEY"); key != "" {
		cfg.Secrets.Key = key
	}
	overrideIngestFromEnv(&cfg.Ingest)

	applyDefaults(&cfg)
	return &cfg
}

func overrideIngestFromEnv(cfg *IngestConfig) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt("INGEST_INTERVAL_SECONDS", &cfg.IntervalSeconds)
	setInt("INGEST_WORKERS", &cfg.Workers)
	setInt("INGEST_FETCH_LIMIT", &cfg.FetchLimit)
	setInt("INGEST_IMAP_TIMEOUT_SECONDS", &cfg.IMAPTimeoutSeconds)
	setInt("INGEST_GUARD_TTL_HOURS", &cfg.GuardTTLHours)
	if v := os.Getenv("INGEST_CATEGORIZER"); v != "" {
		cfg.Categorizer = v
	}
}

// applyDefaults covers only the knobs consumed raw by their components; the
// scheduler defaults its own interval, workers and fetch limit.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Ingest.IMAPTimeoutSeconds <= 0 {
		cfg.Ingest.IMAPTimeoutSeconds = 30
	}
	if cfg.Ingest.GuardTTLHours <= 0 {
		cfg.Ingest.GuardTTLHours = 24
	}
	if cfg.Ingest.Categorizer == "" {
		cfg.Ingest.Categorizer = "hierarchy"
	}
}
