// =============================================================================
// 📦 flowcore 配置
// =============================================================================
// 统一配置结构与默认值
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/flowcore/tracking"
)

// Config 是 flowcore 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Tracking 会话追踪存储配置
	Tracking tracking.Config `yaml:"tracking"`

	// Registry 注册表静态配置
	Registry RegistryConfig `yaml:"registry"`

	// Auth 鉴权配置
	Auth AuthConfig `yaml:"auth"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// 每秒请求限制，0 表示不限流
	RateLimit float64 `yaml:"rate_limit"`
	// 限流突发容量
	RateBurst int `yaml:"rate_burst"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用 OTel 导出
	Enabled bool `yaml:"enabled"`
	// 服务名称
	ServiceName string `yaml:"service_name"`
	// OTLP gRPC 端点
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// 是否使用明文连接
	Insecure bool `yaml:"insecure"`
	// 指标导出间隔
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// RegistryConfig 注册表静态配置
// Workflow modules are Go values and register themselves in code; the static
// configuration contributes the alias table loaded by Registry.Init.
type RegistryConfig struct {
	// 别名表: alias -> 目标类型（单级）
	Aliases map[string]string `yaml:"aliases"`
}

// AuthConfig 鉴权配置
type AuthConfig struct {
	// 是否启用 JWT 鉴权
	Enabled bool `yaml:"enabled"`
	// HMAC 签名密钥
	JWTSecret string `yaml:"jwt_secret"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       100,
			RateBurst:       200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    "flowcore",
			OTLPEndpoint:   "localhost:4317",
			Insecure:       true,
			MetricInterval: 30 * time.Second,
		},
		Tracking: tracking.Config{
			Type: tracking.StoreTypeMemory,
			Redis: tracking.RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
			Database: tracking.DatabaseConfig{
				Driver:      "sqlite",
				DSN:         "flowcore.db",
				AutoMigrate: true,
			},
			Mongo: tracking.MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "flowcore",
			},
		},
		Registry: RegistryConfig{
			Aliases: map[string]string{},
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics_port: %d", c.Server.MetricsPort)
	}
	if c.Server.HTTPPort == c.Server.MetricsPort {
		return fmt.Errorf("http_port and metrics_port must differ")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch c.Tracking.Type {
	case "", tracking.StoreTypeMemory, tracking.StoreTypeRedis, tracking.StoreTypeDatabase, tracking.StoreTypeMongo:
	default:
		return fmt.Errorf("invalid tracking store type: %s", c.Tracking.Type)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but jwt_secret is empty")
	}
	return nil
}
