package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ============================================================================
//                              事件种类
// ============================================================================

const (
	// KindNostrConnect NIP-46 远程签名协议事件种类
	KindNostrConnect = 24133
)

// ============================================================================
//                              Event - Nostr 事件
// ============================================================================

// Event Nostr 协议事件（NIP-01）
//
// ID 是规范化序列化结果的 SHA-256，Sig 是对 ID 的 BIP-340
// Schnorr 签名。两者都以小写十六进制编码。
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize 返回事件的规范化序列化形式
//
// 格式为 JSON 数组 [0, pubkey, created_at, kind, tags, content]，
// 不做 HTML 转义（转义会改变哈希，导致 ID 校验失败）。
func (e *Event) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	arr := []interface{}{0, e.Pubkey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}

	// Encode 会追加换行符，必须剥掉
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID 计算事件 ID（序列化结果的 SHA-256 十六进制）
func (e *Event) ComputeID() (string, error) {
	raw, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// CheckID 校验 ID 字段是否与事件内容一致
func (e *Event) CheckID() bool {
	id, err := e.ComputeID()
	if err != nil {
		return false
	}
	return id == e.ID
}

// TagValue 返回第一个以 name 开头的标签的值
//
// 例如 TagValue("p") 返回 ["p", "<pubkey>"] 中的 "<pubkey>"。
// 未找到时返回空字符串。
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}
