package submgr

import "errors"

// 订阅管理器相关错误
var (
	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("subscription manager closed")
)
