// Package config 提供签名守护进程的配置管理层
//
// config 包负责：
// - 定义内部配置结构
// - 提供默认值
// - 配置校验
// - 配置转换（YAML/用户配置 → 内部配置）
package config

import (
	"time"
)

// Config 内部配置结构
//
// 这是详细的内部配置结构，用于组件初始化。
// 用户配置（根包 UserConfig / YAML 文件）会被转换为此结构。
type Config struct {
	// LogLevel 日志级别（debug/info/warn/error）
	LogLevel string

	// LogFile 日志文件路径，为空时输出到 stderr
	LogFile string

	// Relays 中继 URL 列表（ws:// 或 wss://）
	Relays []string

	// DataDir 存储引擎数据目录
	DataDir string

	// KeysDir 加密密钥文件目录
	KeysDir string

	// KeysPassphrase 密钥文件口令（来自环境变量或配置文件）
	KeysPassphrase string

	// Pool 连接池配置
	Pool PoolConfig

	// Health 订阅健康检查配置
	Health HealthConfig

	// Signer 协议处理器配置
	Signer SignerConfig

	// Gate 授权门配置
	Gate GateConfig

	// Token 委托令牌配置
	Token TokenConfig

	// Metrics 指标配置
	Metrics MetricsConfig

	// Keys 托管的签名密钥
	Keys []KeyConfig
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// DialTimeout 单次拨号超时
	DialTimeout time.Duration

	// WriteTimeout 单次写超时
	WriteTimeout time.Duration

	// PingInterval websocket ping 间隔
	PingInterval time.Duration

	// ReconnectBaseDelay 重连退避基数
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay 重连退避上限
	ReconnectMaxDelay time.Duration

	// GapCheckInterval 时间跳变检测间隔
	GapCheckInterval time.Duration

	// SleepGapThreshold 判定宿主机休眠的时间跳变阈值
	SleepGapThreshold time.Duration

	// HealthFailureThreshold 触发整体重置的连续失败次数
	HealthFailureThreshold int
}

// HealthConfig 订阅健康检查配置
type HealthConfig struct {
	// TickInterval 健康检查节拍间隔
	TickInterval time.Duration

	// ProbeTimeout 轮转探测的 EOSE 等待超时
	ProbeTimeout time.Duration

	// SleepFactor 休眠判定系数：节拍间隔 × SleepFactor
	SleepFactor int

	// RestartSettleDelay 防抖重启的静默延迟
	RestartSettleDelay time.Duration
}

// SignerConfig 协议处理器配置
type SignerConfig struct {
	// AuthTimeout 交互授权等待上限
	AuthTimeout time.Duration

	// ConversationCacheSize 会话密钥 LRU 容量
	ConversationCacheSize int
}

// GateConfig 授权门配置
type GateConfig struct {
	// ApprovalTimeout 单次审批等待上限
	ApprovalTimeout time.Duration

	// DecisionCacheSize 决策 LRU 缓存容量
	DecisionCacheSize int
}

// TokenConfig 委托令牌配置
type TokenConfig struct {
	// DefaultTTL 新建令牌的默认有效期
	DefaultTTL time.Duration
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否暴露 Prometheus 指标
	Enabled bool

	// ListenAddr 指标 HTTP 监听地址
	ListenAddr string
}

// KeyConfig 单个托管密钥配置
type KeyConfig struct {
	// Name 密钥名（订阅 id 为 nip46-<Name>）
	Name string

	// ConnectSecret 管理员配置的 connect 共享秘密，可为空
	ConnectSecret string

	// Relays 本密钥专用中继，为空时使用全局列表
	Relays []string
}
