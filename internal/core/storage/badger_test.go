package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// ============================================================================
// 接口契约测试
// ============================================================================

// TestEngine_ImplementsInterface 验证 Engine 实现接口
func TestEngine_ImplementsInterface(t *testing.T) {
	var _ pkgif.Engine = (*Engine)(nil)
}

// ============================================================================
// 基础操作测试
// ============================================================================

// TestEngine_PutGet 测试基本读写
func TestEngine_PutGet(t *testing.T) {
	engine := newTestEngine(t)

	require.NoError(t, engine.Put([]byte("k1"), []byte("v1")))

	value, err := engine.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	_, err = engine.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// TestEngine_EmptyKey 空键被拒绝
func TestEngine_EmptyKey(t *testing.T) {
	engine := newTestEngine(t)

	assert.ErrorIs(t, engine.Put(nil, []byte("v")), ErrEmptyKey)
	_, err := engine.Get([]byte{})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

// TestEngine_Delete 测试删除
func TestEngine_Delete(t *testing.T) {
	engine := newTestEngine(t)

	require.NoError(t, engine.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, engine.Delete([]byte("k1")))

	exists, err := engine.Has([]byte("k1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestEngine_PrefixScan 测试前缀扫描
func TestEngine_PrefixScan(t *testing.T) {
	engine := newTestEngine(t)

	require.NoError(t, engine.Put([]byte("t/i/a"), []byte("1")))
	require.NoError(t, engine.Put([]byte("t/i/b"), []byte("2")))
	require.NoError(t, engine.Put([]byte("p/x"), []byte("3")))

	out, err := engine.PrefixScan([]byte("t/i/"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, []byte("1"), out["t/i/a"])
	assert.Equal(t, []byte("2"), out["t/i/b"])
}

// TestEngine_CloseIdempotent 引擎可重复关闭
func TestEngine_CloseIdempotent(t *testing.T) {
	engine, err := NewInMemory()
	require.NoError(t, err)

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	_, err = engine.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrEngineClosed)
}

// ============================================================================
// 事务测试
// ============================================================================

// TestEngine_UpdateAtomic 事务内多键写入原子生效
func TestEngine_UpdateAtomic(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.Update(func(txn pkgif.Txn) error {
		if err := txn.Put([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return txn.Put([]byte("b"), []byte("2"))
	})
	require.NoError(t, err)

	for _, key := range []string{"a", "b"} {
		exists, err := engine.Has([]byte(key))
		require.NoError(t, err)
		assert.True(t, exists, key)
	}
}

// TestEngine_UpdateRollbackOnError fn 返回错误时写入不落盘
func TestEngine_UpdateRollbackOnError(t *testing.T) {
	engine := newTestEngine(t)

	wantErr := fmt.Errorf("materialize failed")
	err := engine.Update(func(txn pkgif.Txn) error {
		if err := txn.Put([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	exists, err := engine.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestEngine_ConcurrentConditionalUpdate 并发条件更新恰好一个成功
//
// 模拟令牌兑换：所有协程读同一个键，发现未占用则写入自己的
// 标记。SSI 保证只有一个事务提交成功，其余收到冲突。
func TestEngine_ConcurrentConditionalUpdate(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.Put([]byte("token"), []byte("")))

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = engine.Update(func(txn pkgif.Txn) error {
				current, err := txn.Get([]byte("token"))
				if err != nil {
					return err
				}
				if len(current) != 0 {
					return ErrTxnConflict
				}
				return txn.Put([]byte("token"), []byte(fmt.Sprintf("w%d", i)))
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrTxnConflict)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// ============================================================================
// 前缀隔离存储测试
// ============================================================================

// TestStore_PrefixIsolation 不同前缀互不可见
func TestStore_PrefixIsolation(t *testing.T) {
	engine := newTestEngine(t)

	tokens := NewStore(engine, []byte("t/i/"))
	policies := NewStore(engine, []byte("p/"))

	require.NoError(t, tokens.Put([]byte("x"), []byte("tok")))
	require.NoError(t, policies.Put([]byte("x"), []byte("pol")))

	tv, err := tokens.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("tok"), tv)

	scan, err := tokens.Scan()
	require.NoError(t, err)
	assert.Len(t, scan, 1)
	assert.Equal(t, []byte("tok"), scan["x"])
}
