package nostrsigner

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dep2p/go-nostrsigner/internal/config"
)

// UserConfig 用户配置结构
//
// 这是面向用户的简化配置结构，从 YAML 文件加载。
// 内部会转换为详细的组件配置；零值字段取默认值。
//
// 配置文件的读取和环境变量处理由应用层（cmd/*）负责，
// 库本身只提供解析与转换。示例用法：
//
//	cfg, _ := nostrsigner.LoadConfigFile("signer.yaml")
//	d, _ := nostrsigner.New(nostrsigner.WithUserConfig(cfg))
type UserConfig struct {
	// LogLevel 日志级别（debug/info/warn/error）
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFile 日志文件路径，为空输出到 stderr
	LogFile string `yaml:"log_file,omitempty"`

	// Relays 中继 URL 列表
	Relays []string `yaml:"relays"`

	// DataDir 存储数据目录
	DataDir string `yaml:"data_dir"`

	// KeysDir 密钥文件目录，为空时取 <data_dir>/keys
	KeysDir string `yaml:"keys_dir,omitempty"`

	// Keys 托管密钥列表
	Keys []UserKeyConfig `yaml:"keys"`

	// Health 健康检查配置
	Health *UserHealthConfig `yaml:"health,omitempty"`

	// Token 委托令牌配置
	Token *UserTokenConfig `yaml:"token,omitempty"`

	// Metrics 指标配置
	Metrics *UserMetricsConfig `yaml:"metrics,omitempty"`
}

// UserKeyConfig 单个托管密钥配置
type UserKeyConfig struct {
	// Name 密钥名
	Name string `yaml:"name"`

	// ConnectSecret 管理员 connect 共享秘密，可为空
	ConnectSecret string `yaml:"connect_secret,omitempty"`

	// Relays 本密钥专用中继，为空使用全局列表
	Relays []string `yaml:"relays,omitempty"`
}

// UserHealthConfig 健康检查配置
type UserHealthConfig struct {
	// TickInterval 健康检查节拍间隔
	TickInterval time.Duration `yaml:"tick_interval,omitempty"`

	// ProbeTimeout 探测 EOSE 等待超时
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`
}

// UserTokenConfig 委托令牌配置
type UserTokenConfig struct {
	// DefaultTTL 新建令牌默认有效期
	DefaultTTL time.Duration `yaml:"default_ttl,omitempty"`
}

// UserMetricsConfig 指标配置
type UserMetricsConfig struct {
	// Enabled 暴露 Prometheus 指标
	Enabled bool `yaml:"enabled,omitempty"`

	// ListenAddr 指标监听地址，默认 "127.0.0.1:9186"
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// LoadConfigFile 从 YAML 文件加载用户配置
func LoadConfigFile(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := &UserConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// toInternal 转换为内部配置，零值字段保持默认
func (u *UserConfig) toInternal(cfg *config.Config) {
	if u.LogLevel != "" {
		cfg.LogLevel = u.LogLevel
	}
	if u.LogFile != "" {
		cfg.LogFile = u.LogFile
	}
	if len(u.Relays) > 0 {
		cfg.Relays = append([]string(nil), u.Relays...)
	}
	if u.DataDir != "" {
		cfg.DataDir = u.DataDir
	}
	if u.KeysDir != "" {
		cfg.KeysDir = u.KeysDir
	}
	for _, k := range u.Keys {
		cfg.Keys = append(cfg.Keys, config.KeyConfig{
			Name:          k.Name,
			ConnectSecret: k.ConnectSecret,
			Relays:        append([]string(nil), k.Relays...),
		})
	}
	if u.Health != nil {
		if u.Health.TickInterval > 0 {
			cfg.Health.TickInterval = u.Health.TickInterval
		}
		if u.Health.ProbeTimeout > 0 {
			cfg.Health.ProbeTimeout = u.Health.ProbeTimeout
		}
	}
	if u.Token != nil && u.Token.DefaultTTL > 0 {
		cfg.Token.DefaultTTL = u.Token.DefaultTTL
	}
	if u.Metrics != nil {
		cfg.Metrics.Enabled = u.Metrics.Enabled
		if u.Metrics.ListenAddr != "" {
			cfg.Metrics.ListenAddr = u.Metrics.ListenAddr
		} else {
			cfg.Metrics.ListenAddr = "127.0.0.1:9186"
		}
	}
}
