package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
//                              TrustLevel - 信任级别
// ============================================================================

// TrustLevel 应用信任级别
//
// 控制哪些方法无需交互确认即自动放行。
type TrustLevel int

const (
	// TrustUnknown 未设置
	TrustUnknown TrustLevel = iota
	// TrustParanoid 全部方法都需要交互确认
	TrustParanoid
	// TrustReasonable 读操作与已授权方法自动放行
	TrustReasonable
	// TrustFull 全部方法自动放行
	TrustFull
)

// ParseTrustLevel 解析信任级别名称
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch s {
	case "paranoid":
		return TrustParanoid, nil
	case "reasonable":
		return TrustReasonable, nil
	case "full":
		return TrustFull, nil
	default:
		return TrustUnknown, fmt.Errorf("unknown trust level %q", s)
	}
}

// String 返回信任级别名称
func (t TrustLevel) String() string {
	switch t {
	case TrustParanoid:
		return "paranoid"
	case TrustReasonable:
		return "reasonable"
	case TrustFull:
		return "full"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              委托令牌
// ============================================================================

// TokenRecord 一次性委托令牌
//
// 生命周期：管理操作创建（未兑换）→ 至多一次成功的原子兑换
// 设置 RedeemedAt 并关联 KeyUserID → 若兑换后的授权物化失败，
// 兑换被回滚（RedeemedAt、KeyUserID 清空），令牌仍可使用。
//
// 不变量：并发兑换中不允许两个调用都观察到 RedeemedAt == nil
// 并成功。由存储层的条件更新保证，而非进程内锁——协议处理器
// （每密钥一个实例）与管理 API 都可能同时尝试兑换。
type TokenRecord struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	KeyName    string     `json:"key_name"`
	PolicyID   string     `json:"policy_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	KeyUserID  string     `json:"key_user_id,omitempty"`
}

// Expired 判断令牌在 now 时刻是否已过期
func (t *TokenRecord) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// ============================================================================
//                              授权策略
// ============================================================================

// PolicyRule 策略规则：允许某方法，可选限定事件种类
//
// Kinds 为空表示方法对所有事件种类生效（对非 sign_event
// 方法 Kinds 无意义，保持为空）。
type PolicyRule struct {
	Method string `json:"method"`
	Kinds  []int  `json:"kinds,omitempty"`
}

// Policy 预定义授权策略
type Policy struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Trust TrustLevel   `json:"trust"`
	Rules []PolicyRule `json:"rules"`
}

// ============================================================================
//                              Key-User 授权关系
// ============================================================================

// KeyUser 密钥与远程应用的授权关系
//
// 每个 (key, 远程应用公钥) 对一行，成功 connect 时 upsert。
// 永不硬删除：吊销只设置 RevokedAt，保留审计历史。
type KeyUser struct {
	ID         string     `json:"id"`
	KeyName    string     `json:"key_name"`
	UserPubkey string     `json:"user_pubkey"`
	Trust      TrustLevel `json:"trust"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Revoked 判断授权是否已吊销
func (k *KeyUser) Revoked() bool {
	return k.RevokedAt != nil
}

// Permission 具体方法授权记录
//
// 来源为令牌兑换（策略规则物化）或交互审批。
type Permission struct {
	ID        string    `json:"id"`
	KeyUserID string    `json:"key_user_id"`
	Method    string    `json:"method"`
	Kinds     []int     `json:"kinds,omitempty"`
	Allow     bool      `json:"allow"`
	CreatedAt time.Time `json:"created_at"`
}

// AllowsKind 判断授权是否覆盖指定事件种类
func (p *Permission) AllowsKind(kind int) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	return containsInt(p.Kinds, kind)
}

// ============================================================================
//                              bunker:// 连接串
// ============================================================================

// BunkerURL 构造客户端配置用的 bunker:// 连接串
//
// 形如 bunker://<pubkey>?relay=wss://...&relay=...&secret=...
func BunkerURL(pubkey string, relays []string, secret string) string {
	var sb strings.Builder
	sb.WriteString("bunker://")
	sb.WriteString(pubkey)

	q := url.Values{}
	for _, r := range relays {
		q.Add("relay", r)
	}
	if secret != "" {
		q.Set("secret", secret)
	}
	if enc := q.Encode(); enc != "" {
		sb.WriteString("?")
		sb.WriteString(enc)
	}
	return sb.String()
}
