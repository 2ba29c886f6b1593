package nostrsigner

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 守护进程生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 守护进程未启动
	ErrNotStarted = errors.New("daemon not started")

	// ErrAlreadyStarted 守护进程已启动
	ErrAlreadyStarted = errors.New("daemon already started")

	// ErrDaemonClosed 守护进程已关闭
	ErrDaemonClosed = errors.New("daemon closed")

	// ────────────────────────────────────────────────────────────────────────
	// 管理操作错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrUnknownKey 未配置的密钥名
	ErrUnknownKey = errors.New("unknown key name")
)
