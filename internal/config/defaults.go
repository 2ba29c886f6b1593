package config

import "time"

// ============================================================================
//                              预设默认值
// ============================================================================

// 连接池默认值
const (
	// DefaultDialTimeout 默认拨号超时
	DefaultDialTimeout = 10 * time.Second

	// DefaultWriteTimeout 默认写超时
	DefaultWriteTimeout = 10 * time.Second

	// DefaultPingInterval 默认 websocket ping 间隔
	DefaultPingInterval = 30 * time.Second

	// DefaultReconnectBaseDelay 默认重连退避基数
	DefaultReconnectBaseDelay = 1 * time.Second

	// DefaultReconnectMaxDelay 默认重连退避上限
	DefaultReconnectMaxDelay = 2 * time.Minute

	// DefaultGapCheckInterval 默认时间跳变检测间隔
	DefaultGapCheckInterval = 30 * time.Second

	// DefaultSleepGapThreshold 默认休眠判定阈值
	DefaultSleepGapThreshold = 2 * time.Minute

	// DefaultHealthFailureThreshold 默认整体重置的连续失败次数
	DefaultHealthFailureThreshold = 2
)

// 健康检查默认值
const (
	// DefaultTickInterval 默认健康检查节拍
	DefaultTickInterval = 1 * time.Minute

	// DefaultProbeTimeout 默认探测 EOSE 等待超时
	DefaultProbeTimeout = 10 * time.Second

	// DefaultSleepFactor 默认休眠判定系数
	DefaultSleepFactor = 3

	// DefaultRestartSettleDelay 默认防抖静默延迟
	DefaultRestartSettleDelay = 500 * time.Millisecond
)

// 协议处理器默认值
const (
	// DefaultAuthTimeout 默认交互授权等待上限
	DefaultAuthTimeout = 2 * time.Minute

	// DefaultConversationCacheSize 默认会话密钥缓存容量
	DefaultConversationCacheSize = 256
)

// 授权门默认值
const (
	// DefaultApprovalTimeout 默认审批等待上限
	DefaultApprovalTimeout = 2 * time.Minute

	// DefaultDecisionCacheSize 默认决策缓存容量
	DefaultDecisionCacheSize = 1024
)

// 令牌默认值
const (
	// DefaultTokenTTL 默认令牌有效期
	DefaultTokenTTL = 24 * time.Hour
)

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Pool: PoolConfig{
			DialTimeout:            DefaultDialTimeout,
			WriteTimeout:           DefaultWriteTimeout,
			PingInterval:           DefaultPingInterval,
			ReconnectBaseDelay:     DefaultReconnectBaseDelay,
			ReconnectMaxDelay:      DefaultReconnectMaxDelay,
			GapCheckInterval:       DefaultGapCheckInterval,
			SleepGapThreshold:      DefaultSleepGapThreshold,
			HealthFailureThreshold: DefaultHealthFailureThreshold,
		},
		Health: HealthConfig{
			TickInterval:       DefaultTickInterval,
			ProbeTimeout:       DefaultProbeTimeout,
			SleepFactor:        DefaultSleepFactor,
			RestartSettleDelay: DefaultRestartSettleDelay,
		},
		Signer: SignerConfig{
			AuthTimeout:           DefaultAuthTimeout,
			ConversationCacheSize: DefaultConversationCacheSize,
		},
		Gate: GateConfig{
			ApprovalTimeout:   DefaultApprovalTimeout,
			DecisionCacheSize: DefaultDecisionCacheSize,
		},
		Token: TokenConfig{
			DefaultTTL: DefaultTokenTTL,
		},
	}
}
