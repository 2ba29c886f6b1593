package delegation

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
//                              策略管理
// ============================================================================

// CreatePolicy 创建策略，ID 为空时自动生成
func (s *Store) CreatePolicy(p types.Policy) (*types.Policy, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := s.policies.Put([]byte(p.ID), marshal(p)); err != nil {
		return nil, err
	}
	logger.Info("policy created", "policy", p.ID, "name", p.Name)
	return &p, nil
}

// GetPolicy 按 ID 读取策略
func (s *Store) GetPolicy(id string) (*types.Policy, error) {
	raw, err := s.policies.Get([]byte(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	p := &types.Policy{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPolicies 列出全部策略（按名称排序）
func (s *Store) ListPolicies() ([]types.Policy, error) {
	raw, err := s.policies.Scan()
	if err != nil {
		return nil, err
	}
	out := make([]types.Policy, 0, len(raw))
	for _, data := range raw {
		var p types.Policy
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeletePolicy 删除策略
//
// 已兑换令牌物化出的授权不受影响，只阻止后续兑换引用。
func (s *Store) DeletePolicy(id string) error {
	return s.policies.Delete([]byte(id))
}
