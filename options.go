package nostrsigner

import (
	"fmt"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/dep2p/go-nostrsigner/internal/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	userConfig *UserConfig

	logLevel       string
	relays         []string
	dataDir        string
	keysDir        string
	keysPassphrase string
	keys           []config.KeyConfig
	metricsAddr    string

	userFxOptions []fx.Option
}

// KeyOptions 单个托管密钥的选项
type KeyOptions struct {
	// ConnectSecret 管理员 connect 共享秘密，可为空
	ConnectSecret string

	// Relays 本密钥专用中继，为空使用全局列表
	Relays []string
}

// WithUserConfig 应用 YAML 用户配置
//
// 之后的 With* 选项可以覆盖其中的值。
func WithUserConfig(cfg *UserConfig) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("user config is nil")
		}
		o.userConfig = cfg
		return nil
	}
}

// WithLogLevel 设置日志级别
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.logLevel = level
		return nil
	}
}

// WithRelays 设置全局中继列表
func WithRelays(urls ...string) Option {
	return func(o *options) error {
		if len(urls) == 0 {
			return fmt.Errorf("at least one relay URL required")
		}
		o.relays = append(o.relays, urls...)
		return nil
	}
}

// WithDataDir 设置数据目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = dir
		return nil
	}
}

// WithKeysDir 设置密钥文件目录
//
// 不设置时取 <dataDir>/keys。
func WithKeysDir(dir string) Option {
	return func(o *options) error {
		o.keysDir = dir
		return nil
	}
}

// WithPassphrase 设置密钥文件口令
func WithPassphrase(passphrase string) Option {
	return func(o *options) error {
		o.keysPassphrase = passphrase
		return nil
	}
}

// WithKey 托管一个签名密钥
//
// 密钥文件不存在时首次启动自动生成。
func WithKey(name string, opts KeyOptions) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("key name must not be empty")
		}
		o.keys = append(o.keys, config.KeyConfig{
			Name:          name,
			ConnectSecret: opts.ConnectSecret,
			Relays:        opts.Relays,
		})
		return nil
	}
}

// WithMetrics 启用 Prometheus 指标端点
func WithMetrics(listenAddr string) Option {
	return func(o *options) error {
		if listenAddr == "" {
			return fmt.Errorf("metrics listen addr must not be empty")
		}
		o.metricsAddr = listenAddr
		return nil
	}
}

// WithFxOption 追加用户自定义 fx 选项（扩展点）
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}

// buildConfig 将选项叠加到默认配置上
//
// 叠加顺序：默认值 → YAML 用户配置 → With* 选项。
func (o *options) buildConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	if o.userConfig != nil {
		o.userConfig.toInternal(cfg)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if len(o.relays) > 0 {
		cfg.Relays = o.relays
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.keysDir != "" {
		cfg.KeysDir = o.keysDir
	}
	if o.keysPassphrase != "" {
		cfg.KeysPassphrase = o.keysPassphrase
	}
	if len(o.keys) > 0 {
		cfg.Keys = append(cfg.Keys, o.keys...)
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = o.metricsAddr
	}

	if cfg.KeysDir == "" && cfg.DataDir != "" {
		cfg.KeysDir = filepath.Join(cfg.DataDir, "keys")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
