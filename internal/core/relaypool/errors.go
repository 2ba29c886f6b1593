package relaypool

import "errors"

// 连接池相关错误
var (
	// ErrPoolClosed 连接池已关闭
	ErrPoolClosed = errors.New("relay pool closed")
	// ErrNoRelayAvailable 没有可用中继连接
	ErrNoRelayAvailable = errors.New("no relay connection available")
	// ErrDuplicateSubscription 订阅 id 已存在
	ErrDuplicateSubscription = errors.New("duplicate subscription id")
	// ErrUnknownRelay 中继未配置
	ErrUnknownRelay = errors.New("relay not configured")
)
