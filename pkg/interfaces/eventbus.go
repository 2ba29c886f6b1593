// 本文件定义 EventBus 接口，提供事件发布订阅功能。
package interfaces

// EventBus 定义事件总线接口
//
// EventBus 提供类型安全的事件发布/订阅机制，
// 替代原实现中运行时可变的监听器集合：订阅与发射器
// 都是显式持有、可关闭的句柄。
type EventBus interface {
	// Subscribe 订阅指定类型的事件
	Subscribe(eventType interface{}, opts ...SubscriptionOpt) (Subscription, error)

	// Emitter 获取指定事件类型的发射器
	Emitter(eventType interface{}) (Emitter, error)
}

// Subscription 定义事件订阅接口
type Subscription interface {
	// Out 返回接收事件的通道
	Out() <-chan interface{}

	// Close 取消订阅
	Close() error
}

// Emitter 定义事件发射器接口
type Emitter interface {
	// Emit 发射事件
	Emit(event interface{}) error

	// Close 关闭发射器
	Close() error
}

// SubscriptionOpt 订阅选项函数类型
type SubscriptionOpt func(*SubscriptionSettings)

// SubscriptionSettings 订阅设置（导出以供实现使用）
type SubscriptionSettings struct {
	Buffer int
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}
