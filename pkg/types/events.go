package types

import (
	"time"
)

// 本文件定义事件总线上的领域事件。
//
// 事件类型以指针形式订阅/发射（eventbus 的约定），
// 仅用于进程内通知（仪表盘、审计日志、测试断言），
// 不承载任何控制流。

// ============================================================================
//                              连接池事件
// ============================================================================

// EvtRelayReady 某个中继连接就绪（首连或重连成功）
type EvtRelayReady struct {
	URL  string
	Time time.Time
}

// 连接池重置原因
const (
	// ResetReasonSleepGap 墙钟大幅跳变（宿主机休眠）
	ResetReasonSleepGap = "sleep-gap"
	// ResetReasonHealthFailure 健康检查连续失败
	ResetReasonHealthFailure = "health-failure"
	// ResetReasonManual 显式调用
	ResetReasonManual = "manual"
)

// EvtPoolReset 连接池整体重置
type EvtPoolReset struct {
	Reason string
	Time   time.Time
}

// ============================================================================
//                              订阅管理事件
// ============================================================================

// EvtHealthCheckFailed 轮转探测失败
//
// 探测失败不向调用方抛错，只降级为调度一次全量重启，
// 本事件用于可观测性。
type EvtHealthCheckFailed struct {
	SubscriptionID string
	Time           time.Time
}

// EvtSubscriptionsRestarted 全量重启完成
type EvtSubscriptionsRestarted struct {
	Count int
	Time  time.Time
}

// ============================================================================
//                              协议事件
// ============================================================================

// EvtAppConnected 远程应用完成 connect 授权
type EvtAppConnected struct {
	KeyName   string
	AppPubkey string
	Trust     TrustLevel
	Time      time.Time
}

// EvtRequestHandled 一次请求处理完毕（审计通知点）
type EvtRequestHandled struct {
	KeyName   string
	AppPubkey string
	Method    string
	Ok        bool
	Time      time.Time
}
