package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
//                              令牌管理
// ============================================================================

// CreateToken 为指定密钥创建一次性令牌
//
// ttl 非正时使用配置默认值。策略必须已存在。
func (s *Store) CreateToken(keyName, policyID string, ttl time.Duration) (*types.TokenRecord, error) {
	if _, err := s.GetPolicy(policyID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	rec := &types.TokenRecord{
		ID:        uuid.NewString(),
		Token:     secret,
		KeyName:   keyName,
		PolicyID:  policyID,
		ExpiresAt: s.clk.Now().Add(ttl),
	}
	err = s.engine.Update(func(txn pkgif.Txn) error {
		if err := txn.Put(s.tokens.Key([]byte(rec.ID)), marshal(rec)); err != nil {
			return err
		}
		return txn.Put(s.tokensByVal.Key([]byte(rec.Token)), []byte(rec.ID))
	})
	if err != nil {
		return nil, err
	}
	logger.Info("token created",
		"token_id", rec.ID, "key", keyName, "policy", policyID, "expires", rec.ExpiresAt)
	return rec, nil
}

// GetToken 按 ID 读取令牌
func (s *Store) GetToken(id string) (*types.TokenRecord, error) {
	raw, err := s.tokens.Get([]byte(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &types.TokenRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListTokens 列出指定密钥的全部令牌，keyName 为空列出全部
func (s *Store) ListTokens(keyName string) ([]types.TokenRecord, error) {
	raw, err := s.tokens.Scan()
	if err != nil {
		return nil, err
	}
	out := make([]types.TokenRecord, 0, len(raw))
	for _, data := range raw {
		var rec types.TokenRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		if keyName != "" && rec.KeyName != keyName {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// RevokeToken 吊销未兑换令牌
func (s *Store) RevokeToken(id string) error {
	rec, err := s.GetToken(id)
	if err != nil {
		return err
	}
	return s.engine.Update(func(txn pkgif.Txn) error {
		if err := txn.Delete(s.tokens.Key([]byte(id))); err != nil {
			return err
		}
		return txn.Delete(s.tokensByVal.Key([]byte(rec.Token)))
	})
}

// ============================================================================
//                              原子兑换
// ============================================================================

// ApplyToken 兑换一次性令牌为常驻授权
//
// 两阶段：先做咨询性预检（不存在/过期/已兑换直接打回，省一次
// 事务），再在可序列化事务里做权威判定与授权物化。预检结果
// 到事务提交之间可能被并发兑换抢先，事务内的重读与提交冲突
// 兜底。物化过程中任何失败都让整个事务落空，令牌保持可用。
func (s *Store) ApplyToken(ctx context.Context, callerPubkey, token string) (*types.KeyUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 咨询性预检
	rec, err := s.getTokenByValue(token)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if rec.RedeemedAt != nil {
		return nil, ErrTokenAlreadyRedeemed
	}
	if rec.Expired(now) {
		return nil, ErrTokenExpired
	}

	// 权威性条件更新
	var keyUser *types.KeyUser
	err = s.engine.Update(func(txn pkgif.Txn) error {
		raw, err := txn.Get(s.tokens.Key([]byte(rec.ID)))
		if errors.Is(err, storage.ErrKeyNotFound) {
			return ErrTokenNotFound
		}
		if err != nil {
			return err
		}
		current := &types.TokenRecord{}
		if err := json.Unmarshal(raw, current); err != nil {
			return err
		}
		if current.RedeemedAt != nil {
			return ErrTokenAlreadyRedeemed
		}
		if current.Expired(now) {
			return ErrTokenExpired
		}

		policy, err := s.getPolicyTxn(txn, current.PolicyID)
		if err != nil {
			return err
		}

		ku, err := s.upsertKeyUserTxn(txn, current.KeyName, callerPubkey, policy.Trust, now)
		if err != nil {
			return err
		}
		if err := s.materializeRulesTxn(txn, ku.ID, policy.Rules, now); err != nil {
			return err
		}

		current.RedeemedAt = &now
		current.KeyUserID = ku.ID
		if err := txn.Put(s.tokens.Key([]byte(current.ID)), marshal(current)); err != nil {
			return err
		}
		keyUser = ku
		return nil
	})
	if errors.Is(err, storage.ErrTxnConflict) {
		// 并发兑换抢先提交
		return nil, ErrTokenAlreadyRedeemed
	}
	if err != nil {
		return nil, err
	}

	logger.Info("token redeemed",
		"token_id", rec.ID,
		"key", rec.KeyName,
		"app", log.TruncateID(callerPubkey, 8))
	return keyUser, nil
}

func (s *Store) getTokenByValue(token string) (*types.TokenRecord, error) {
	idRaw, err := s.tokensByVal.Get([]byte(token))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetToken(string(idRaw))
}

func (s *Store) getPolicyTxn(txn pkgif.Txn, id string) (*types.Policy, error) {
	raw, err := txn.Get(s.policies.Key([]byte(id)))
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

// materializeRulesTxn 把策略规则物化为方法授权记录
//
// connect 授权总是隐式物化，客户端兑换后无需单独的 connect
// 规则即可完成握手。
func (s *Store) materializeRulesTxn(txn pkgif.Txn, keyUserID string, rules []types.PolicyRule, now time.Time) error {
	grant := func(method string, kinds []int) error {
		perm := types.Permission{
			ID:        uuid.NewString(),
			KeyUserID: keyUserID,
			Method:    method,
			Kinds:     kinds,
			Allow:     true,
			CreatedAt: now,
		}
		return txn.Put(s.permissions.Key(permissionKey(keyUserID, method)), marshal(perm))
	}

	if err := grant(types.MethodConnect.String(), nil); err != nil {
		return err
	}
	for _, rule := range rules {
		if err := grant(rule.Method, rule.Kinds); err != nil {
			return err
		}
	}
	return nil
}
