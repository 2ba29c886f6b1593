// 本文件定义存储引擎公共接口。
package interfaces

// Engine 定义底层键值存储引擎
//
// 所有实现必须线程安全。Update 提供可序列化事务语义，
// 是令牌条件更新的唯一仲裁点。
type Engine interface {
	// Get 读取键值，键不存在返回 ErrKeyNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入键值
	Put(key, value []byte) error

	// Delete 删除键
	Delete(key []byte) error

	// Has 判断键是否存在
	Has(key []byte) (bool, error)

	// PrefixScan 返回指定前缀下的全部键值对
	PrefixScan(prefix []byte) (map[string][]byte, error)

	// Update 在可序列化事务中执行 fn
	//
	// 事务内读写冲突时返回 ErrTxnConflict，调用方决定
	// 重试还是映射为领域错误。
	Update(fn func(txn Txn) error) error

	// Close 关闭引擎
	Close() error
}

// Txn 定义事务内的读写操作
type Txn interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}
