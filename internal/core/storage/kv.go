package storage

import (
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
)

// ============================================================================
//                              前缀隔离 KV
// ============================================================================

// 键空间约定：
//   - t/i/ - 令牌（按 id）
//   - t/v/ - 令牌值 → id 索引
//   - p/   - 策略
//   - u/   - Key-User 授权关系
//   - m/   - 方法授权记录
//   - a/   - 审批决策缓存持久层

// Store 带前缀隔离的 KV 存储
//
// 在底层引擎之上为所有键自动添加前缀，实现组件间的
// 命名空间隔离。事务方法不做前缀包装——事务调用方需要
// 跨命名空间原子操作，自行用 Key 拼全键。
type Store struct {
	engine pkgif.Engine
	prefix []byte
}

// NewStore 创建前缀隔离存储
func NewStore(engine pkgif.Engine, prefix []byte) *Store {
	return &Store{engine: engine, prefix: prefix}
}

// Key 返回带前缀的完整键
func (s *Store) Key(key []byte) []byte {
	full := make([]byte, 0, len(s.prefix)+len(key))
	full = append(full, s.prefix...)
	return append(full, key...)
}

// Get 读取键值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.Key(key))
}

// Put 写入键值
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.Key(key), value)
}

// Delete 删除键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.Key(key))
}

// Has 判断键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.Key(key))
}

// Scan 返回本命名空间的全部键值对（键已剥去前缀）
func (s *Store) Scan() (map[string][]byte, error) {
	raw, err := s.engine.PrefixScan(s.prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k[len(s.prefix):]] = v
	}
	return out, nil
}
