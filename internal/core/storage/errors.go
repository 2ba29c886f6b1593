package storage

import "errors"

// 存储引擎相关错误
var (
	// ErrKeyNotFound 键不存在
	ErrKeyNotFound = errors.New("key not found")
	// ErrTxnConflict 事务提交冲突（并发读写同一键）
	ErrTxnConflict = errors.New("transaction conflict")
	// ErrEngineClosed 引擎已关闭
	ErrEngineClosed = errors.New("storage engine closed")
	// ErrEmptyKey 空键
	ErrEmptyKey = errors.New("empty key")
)
