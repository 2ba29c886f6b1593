// Package storage 提供基于 BadgerDB 的键值存储引擎
//
// BadgerDB 的 SSI 事务是令牌条件更新的仲裁点：两个并发事务
// 读写同一个键时，后提交者收到冲突错误。委托存储层把这个
// 冲突映射为"令牌已兑换"。
package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// ============================================================================
//                              Engine 实现
// ============================================================================

// Engine BadgerDB 存储引擎
type Engine struct {
	db     *badger.DB
	closed atomic.Bool
}

// New 打开持久化存储引擎
func New(dir string) (*Engine, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return open(opts)
}

// NewInMemory 打开内存存储引擎（测试用）
func NewInMemory() (*Engine, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts)
}

func open(opts badger.Options) (*Engine, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Engine{db: db}, nil
}

// Get 读取键值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if err := e.check(key); err != nil {
		return nil, err
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, convertError(err)
}

// Put 写入键值
func (e *Engine) Put(key, value []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

// Delete 删除键
func (e *Engine) Delete(key []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

// Has 判断键是否存在
func (e *Engine) Has(key []byte) (bool, error) {
	_, err := e.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PrefixScan 返回前缀下的全部键值对
func (e *Engine) PrefixScan(prefix []byte) (map[string][]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	out := make(map[string][]byte)
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key())] = value
		}
		return nil
	})
	return out, convertError(err)
}

// Update 在可序列化事务中执行 fn
//
// fn 内的读会被记录为事务读集，提交时与并发写冲突则整个
// 事务失败并返回 ErrTxnConflict，写入不会落盘。
func (e *Engine) Update(fn func(txn pkgif.Txn) error) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return fn(&engineTxn{txn: txn})
	}))
}

// Close 关闭引擎
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	logger.Info("storage engine closing")
	return e.db.Close()
}

func (e *Engine) check(key []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

// ============================================================================
//                              事务实现
// ============================================================================

// engineTxn badger 事务的接口适配
type engineTxn struct {
	txn *badger.Txn
}

func (t *engineTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		return nil, convertError(err)
	}
	return item.ValueCopy(nil)
}

func (t *engineTxn) Put(key, value []byte) error {
	return convertError(t.txn.Set(key, value))
}

func (t *engineTxn) Delete(key []byte) error {
	return convertError(t.txn.Delete(key))
}

// ============================================================================
//                              错误转换
// ============================================================================

// convertError 把 badger 错误映射到引擎错误域
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, badger.ErrConflict):
		return ErrTxnConflict
	case errors.Is(err, badger.ErrDBClosed):
		return ErrEngineClosed
	default:
		return err
	}
}
