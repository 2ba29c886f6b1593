// 本文件定义中继连接池接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// EventCallback 订阅事件回调
type EventCallback func(ev *types.Event)

// EOSECallback end-of-stored-events 回调
//
// 中继发出 EOSE 表示"存量事件已发完"。订阅管理器把它
// 纯粹当作存活确认使用，不关心其历史回放语义。
type EOSECallback func()

// CancelFunc 取消底层订阅的能力句柄，幂等
type CancelFunc func()

// RelayPool 定义中继连接池能力
//
// 连接池维护到一组中继的长连接，自行重连断开的 socket，
// 并在检测到大幅时间跳变（如宿主机休眠）后触发整体重置。
// 连接表只由池自己修改；池在所有协议处理器与订阅管理器
// 之间共享。
type RelayPool interface {
	// Subscribe 在指定中继集合上建立订阅
	//
	// relays 为空表示全部已配置中继。onEOSE 可为 nil。
	// 返回的 CancelFunc 关闭底层中继订阅。
	Subscribe(filter types.Filter, onEvent EventCallback, id string, onEOSE EOSECallback, relays []string) (CancelFunc, error)

	// Publish 向全部已连接中继发布事件
	Publish(ctx context.Context, ev *types.Event) error

	// EnsureLive 发布前的连接活性检查
	//
	// 触发一次重连探测，保证响应不会悄无声息地消失在
	// 半死连接里。
	EnsureLive(ctx context.Context)

	// ReportHealthCheckSuccess 上报一次健康检查成功
	ReportHealthCheckSuccess()

	// ReportHealthCheckFailure 上报一次健康检查失败
	//
	// 连续失败达到阈值时池自行整体重置并返回 true，
	// 调用方据此跳过自己的重启调度（重置事件已在路上）。
	ReportHealthCheckFailure() bool

	// ResetPool 强制整体重置（断开全部连接并重建）
	ResetPool(reason string)

	// Relays 返回已配置的中继 URL
	Relays() []string
}
