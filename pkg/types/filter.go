package types

import (
	"encoding/json"
)

// ============================================================================
//                              Filter - 订阅过滤器
// ============================================================================

// Filter Nostr 订阅过滤器（NIP-01 REQ 过滤器）
//
// 零值字段在序列化时省略。TagP 对应协议里的 "#p" 字段，
// 是本守护进程唯一用到的标签过滤。
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	TagP    []string
	Since   int64
	Limit   int
}

// MarshalJSON 序列化为 NIP-01 过滤器对象
//
// "#p" 不是合法的 Go 字段标签，所以手工构造 map。
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 6)
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.TagP) > 0 {
		m["#p"] = f.TagP
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// Matches 判断事件是否命中过滤器
//
// 用于在连接池本地分发事件到订阅回调，语义与中继端一致
// （Since/Limit 属于回放语义，本地分发不检查）。
func (f Filter) Matches(ev *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.Pubkey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.TagP) > 0 && !containsString(f.TagP, ev.TagValue("p")) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
