package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port int
		Mode string // debug | release | test
	}

	// 管道内核
	Kernel struct {
		ExceptionMatch string        // exact | wrapped
		DefaultTimeout time.Duration // 0 表示不启用全局超时拦截器
	}

	JWT struct {
		Secret     string
		Issuer     string
		TTL        time.Duration
		RefreshTTL time.Duration
	}

	RateLimit struct {
		Limit  int64
		Window time.Duration
	}

	// 数据库
	PgSQL struct {
		Enabled  bool
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		MaxIdle  int
		MaxOpen  int
		LogLevel string
	}

	// Redis
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		CacheTTL time.Duration
	}

	// MinIO
	Minio struct {
		Enabled         bool
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		UseSSL          bool
		Bucket          string
	}

	Elastic struct {
		Enabled   bool
		Addresses []string
		Username  string
		Password  string
		Index     string
	}

	Kafka struct {
		Enabled   bool
		Brokers   []string
		Group     string
		Topics    []string
		DLQSuffix string
	}

	Log struct {
		Dir      string
		AuditDir string
		Env      string
	}
}

// Default 返回无需外部依赖即可启动的默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.Mode = "debug"
	cfg.Kernel.ExceptionMatch = "exact"
	cfg.JWT.Secret = "change-me"
	cfg.JWT.Issuer = "gnest"
	cfg.JWT.TTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 7 * 24 * time.Hour
	cfg.RateLimit.Limit = 60
	cfg.RateLimit.Window = time.Minute
	cfg.PgSQL.Host = "127.0.0.1"
	cfg.PgSQL.Port = 5432
	cfg.PgSQL.SSLMode = "disable"
	cfg.PgSQL.MaxIdle = 5
	cfg.PgSQL.MaxOpen = 20
	cfg.Redis.Addr = "127.0.0.1:6379"
	cfg.Redis.CacheTTL = 30 * time.Second
	cfg.Minio.Bucket = "incidents"
	cfg.Elastic.Index = "incidents"
	cfg.Kafka.Group = "gnest"
	cfg.Kafka.DLQSuffix = ".dlq"
	cfg.Log.Env = "dev"
	return cfg
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Kernel.ExceptionMatch {
	case "", "exact", "wrapped":
	default:
		errs = append(errs, fmt.Errorf("kernel.exceptionMatch must be exact or wrapped, got %q", c.Kernel.ExceptionMatch))
	}
	if c.Kernel.DefaultTimeout < 0 {
		errs = append(errs, errors.New("kernel.defaultTimeout must not be negative"))
	}
	if c.RateLimit.Limit < 0 || c.RateLimit.Window < 0 {
		errs = append(errs, errors.New("rateLimit.limit and rateLimit.window must not be negative"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// LoadConfig 读取 YAML 配置并允许 GNEST_ 前缀的环境变量覆盖。
// 路径为空时依次尝试 GNEST_CONFIG 和 internal/config/config.yaml。
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path == "" {
		path = os.Getenv("GNEST_CONFIG")
	}
	if path == "" {
		// 获取程序当前的工作目录
		currentDir, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %s", err)
		}
		path = filepath.Join(currentDir, "internal", "config", "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetEnvPrefix("GNEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults 注册默认值，AutomaticEnv 只会覆盖 viper 已知的键
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("kernel.exceptionMatch", d.Kernel.ExceptionMatch)
	v.SetDefault("kernel.defaultTimeout", d.Kernel.DefaultTimeout)
	v.SetDefault("jwt.secret", d.JWT.Secret)
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.ttl", d.JWT.TTL)
	v.SetDefault("jwt.refreshTTL", d.JWT.RefreshTTL)
	v.SetDefault("rateLimit.limit", d.RateLimit.Limit)
	v.SetDefault("rateLimit.window", d.RateLimit.Window)
	v.SetDefault("pgsql.enabled", d.PgSQL.Enabled)
	v.SetDefault("pgsql.host", d.PgSQL.Host)
	v.SetDefault("pgsql.port", d.PgSQL.Port)
	v.SetDefault("pgsql.user", d.PgSQL.User)
	v.SetDefault("pgsql.password", d.PgSQL.Password)
	v.SetDefault("pgsql.dbName", d.PgSQL.DBName)
	v.SetDefault("pgsql.sslMode", d.PgSQL.SSLMode)
	v.SetDefault("pgsql.maxIdle", d.PgSQL.MaxIdle)
	v.SetDefault("pgsql.maxOpen", d.PgSQL.MaxOpen)
	v.SetDefault("pgsql.logLevel", d.PgSQL.LogLevel)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.cacheTTL", d.Redis.CacheTTL)
	v.SetDefault("minio.enabled", d.Minio.Enabled)
	v.SetDefault("minio.endpoint", d.Minio.Endpoint)
	v.SetDefault("minio.accessKeyID", d.Minio.AccessKeyID)
	v.SetDefault("minio.secretAccessKey", d.Minio.SecretAccessKey)
	v.SetDefault("minio.useSSL", d.Minio.UseSSL)
	v.SetDefault("minio.bucket", d.Minio.Bucket)
	v.SetDefault("elastic.enabled", d.Elastic.Enabled)
	v.SetDefault("elastic.addresses", d.Elastic.Addresses)
	v.SetDefault("elastic.username", d.Elastic.Username)
	v.SetDefault("elastic.password", d.Elastic.Password)
	v.SetDefault("elastic.index", d.Elastic.Index)
	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.group", d.Kafka.Group)
	v.SetDefault("kafka.topics", d.Kafka.Topics)
	v.SetDefault("kafka.dlqSuffix", d.Kafka.DLQSuffix)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.auditDir", d.Log.AuditDir)
	v.SetDefault("log.env", d.Log.Env)
}
