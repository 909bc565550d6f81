package config

import (
	"log"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codezest-academy/codezest-notifications/internal/queue"
	"github.com/codezest-academy/codezest-notifications/pkg/config"
)

type Config struct {
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	Queue  config.QueueConfig  `yaml:"queue"`
	Worker config.WorkerConfig `yaml:"worker"`
	SMTP   config.SMTPConfig   `yaml:"smtp"`
	SMS    config.SMSConfig    `yaml:"sms"`
	Push   config.PushConfig   `yaml:"push"`
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
	config.OverrideSMTPFromEnv(&cfg.SMTP)

	return &cfg
}

// QueuePolicy maps the YAML queue section onto the queue's retry and
// lease policy, falling back to the documented defaults.
func (c *Config) QueuePolicy() queue.Config {
	policy := queue.DefaultConfig()
	if c.Queue.MaxAttempts > 0 {
		policy.MaxAttempts = c.Queue.MaxAttempts
	}
	if c.Queue.BackoffBaseSeconds > 0 {
		policy.BackoffBase = time.Duration(c.Queue.BackoffBaseSeconds) * time.Second
	}
	if c.Queue.BackoffCapSeconds > 0 {
		policy.BackoffCap = time.Duration(c.Queue.BackoffCapSeconds) * time.Second
	}
	if c.Queue.LeaseSeconds > 0 {
		policy.Lease = time.Duration(c.Queue.LeaseSeconds) * time.Second
	}
	return policy
}
