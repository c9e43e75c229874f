package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port       int    `mapstructure:"port"`
		NodeID     string `mapstructure:"nodeId"`
		EnableCORS bool   `mapstructure:"enableCors"`
		HistoryCap int    `mapstructure:"historyCap"`
		// 同时处理提交的 WebSocket 连接数上限
		SubmitConcurrency int `mapstructure:"submitConcurrency"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers   []string      `mapstructure:"brokers"`
		Topic     string        `mapstructure:"topic"`
		QueueSize int           `mapstructure:"queueSize"`
		Workers   int           `mapstructure:"workers"`
		MaxRetry  int           `mapstructure:"maxRetry"`
		Backoff   time.Duration `mapstructure:"backoff"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
}

var ErrInvalidConfig = errors.New("invalid config")

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8081)
	v.SetDefault("running.enableCors", true)
	v.SetDefault("running.historyCap", 1024)
	v.SetDefault("running.submitConcurrency", 100)
	v.SetDefault("kafka.topic", "collab-doc-ops")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("kafka.backoff", 50*time.Millisecond)
}

// Load 读取 collabConfig.yaml，环境变量 COLLAB_<SECTION>_<KEY> 覆盖文件中的值。
// 找不到配置文件时只用默认值和环境变量
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		// 兼容从项目根目录或 backend 目录启动
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)
	v.SetEnvPrefix("COLLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 只对已知 key 生效，没有默认值的 key 要显式绑定
	for _, key := range []string{"running.nodeId", "mysql.dsn", "redis.addrs", "redis.password", "kafka.brokers", "auth.secret"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Running.Port <= 0 || c.Running.Port > 65535 {
		return fmt.Errorf("%w: running.port %d", ErrInvalidConfig, c.Running.Port)
	}
	if c.Running.HistoryCap < 0 {
		return fmt.Errorf("%w: running.historyCap %d", ErrInvalidConfig, c.Running.HistoryCap)
	}
	if c.Mysql.DSN != "" {
		if _, err := mysql.ParseDSN(c.Mysql.DSN); err != nil {
			return fmt.Errorf("%w: mysql.dsn: %v", ErrInvalidConfig, err)
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("%w: kafka.topic is required when brokers are set", ErrInvalidConfig)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("%w: auth.secret is required", ErrInvalidConfig)
	}
	return nil
}
