// Package delegation 提供一次性委托令牌与常驻授权的存储
//
// delegation 包负责：
// - 策略（Policy）与令牌（TokenRecord）的管理操作
// - 令牌的原子兑换：咨询性预检 + 权威性条件更新
// - Key-User 授权关系与方法授权记录的物化与查询
//
// 兑换的排他性不依赖进程内锁：协议处理器与管理 API 都可能
// 并发兑换同一令牌，唯一的仲裁点是存储引擎的可序列化事务。
// 事务提交冲突被映射为"令牌已兑换"。
package delegation

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
)

var logger = log.Logger("core/delegation")

// 键空间前缀（见 storage 包的键空间约定）
var (
	prefixTokenByID    = []byte("t/i/")
	prefixTokenByValue = []byte("t/v/")
	prefixPolicy       = []byte("p/")
	prefixKeyUser      = []byte("u/")
	prefixPermission   = []byte("m/")
)

// ============================================================================
//                              委托存储
// ============================================================================

// Store 委托令牌与授权关系存储
type Store struct {
	engine pkgif.Engine
	cfg    config.TokenConfig
	clk    clock.Clock

	tokens      *storage.Store
	tokensByVal *storage.Store
	policies    *storage.Store
	keyUsers    *storage.Store
	permissions *storage.Store
}

// NewStore 创建委托存储
func NewStore(engine pkgif.Engine, cfg config.TokenConfig, clk clock.Clock) *Store {
	return &Store{
		engine:      engine,
		cfg:         cfg,
		clk:         clk,
		tokens:      storage.NewStore(engine, prefixTokenByID),
		tokensByVal: storage.NewStore(engine, prefixTokenByValue),
		policies:    storage.NewStore(engine, prefixPolicy),
		keyUsers:    storage.NewStore(engine, prefixKeyUser),
		permissions: storage.NewStore(engine, prefixPermission),
	}
}

func keyUserKey(keyName, pubkey string) []byte {
	return []byte(keyName + "/" + pubkey)
}

func permissionKey(keyUserID, method string) []byte {
	return []byte(keyUserID + "/" + method)
}

// newSecret 生成令牌值（128 位随机数的十六进制）
func newSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func marshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
