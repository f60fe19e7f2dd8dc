package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/flowcore/tracking"
)

// Loader 配置加载器
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FLOWCORE").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "FLOWCORE"}
}

// WithConfigPath 指定 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 指定环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 加载配置: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置
func (l *Loader) applyEnv(cfg *Config) {
	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)

	l.envInt("SERVER_HTTP_PORT", &cfg.Server.HTTPPort)
	l.envInt("SERVER_METRICS_PORT", &cfg.Server.MetricsPort)
	l.envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("TELEMETRY_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	l.envString("TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	if v, ok := l.lookup("TRACKING_TYPE"); ok {
		cfg.Tracking.Type = tracking.StoreType(v)
	}
	l.envString("TRACKING_REDIS_ADDR", &cfg.Tracking.Redis.Addr)
	l.envString("TRACKING_REDIS_PASSWORD", &cfg.Tracking.Redis.Password)
	l.envString("TRACKING_DATABASE_DRIVER", &cfg.Tracking.Database.Driver)
	l.envString("TRACKING_DATABASE_DSN", &cfg.Tracking.Database.DSN)
	l.envString("TRACKING_MONGO_URI", &cfg.Tracking.Mongo.URI)
	l.envString("TRACKING_MONGO_DATABASE", &cfg.Tracking.Mongo.Database)

	l.envBool("AUTH_ENABLED", &cfg.Auth.Enabled)
	l.envString("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
}

func (l *Loader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(l.envPrefix + "_" + key)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
