package delegation

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
//                          Key-User 授权关系
// ============================================================================

// GetKeyUser 读取密钥与远程应用的授权关系
func (s *Store) GetKeyUser(keyName, pubkey string) (*types.KeyUser, error) {
	raw, err := s.keyUsers.Get(keyUserKey(keyName, pubkey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrKeyUserNotFound
	}
	if err != nil {
		return nil, err
	}
	ku := &types.KeyUser{}
	if err := json.Unmarshal(raw, ku); err != nil {
		return nil, err
	}
	return ku, nil
}

// UpsertKeyUser 建立或刷新授权关系（交互审批路径）
func (s *Store) UpsertKeyUser(keyName, pubkey string, trust types.TrustLevel) (*types.KeyUser, error) {
	var ku *types.KeyUser
	err := s.engine.Update(func(txn pkgif.Txn) error {
		var err error
		ku, err = s.upsertKeyUserTxn(txn, keyName, pubkey, trust, s.clk.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return ku, nil
}

// upsertKeyUserTxn 事务内 upsert 授权关系
//
// 已吊销的关系被重新激活（RevokedAt 清空），历史行不删除、
// 不另建新行，审计轨迹靠吊销/激活时间戳保留。
func (s *Store) upsertKeyUserTxn(txn pkgif.Txn, keyName, pubkey string, trust types.TrustLevel, now time.Time) (*types.KeyUser, error) {
	key := s.keyUsers.Key(keyUserKey(keyName, pubkey))

	raw, err := txn.Get(key)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		ku := &types.KeyUser{
			ID:         uuid.NewString(),
			KeyName:    keyName,
			UserPubkey: pubkey,
			Trust:      trust,
			CreatedAt:  now,
		}
		if err := txn.Put(key, marshal(ku)); err != nil {
			return nil, err
		}
		return ku, nil
	case err != nil:
		return nil, err
	}

	ku := &types.KeyUser{}
	if err := json.Unmarshal(raw, ku); err != nil {
		return nil, err
	}
	ku.Trust = trust
	ku.RevokedAt = nil
	if err := txn.Put(key, marshal(ku)); err != nil {
		return nil, err
	}
	return ku, nil
}

// RevokeKeyUser 吊销授权关系（软删除）
func (s *Store) RevokeKeyUser(keyName, pubkey string) error {
	return s.engine.Update(func(txn pkgif.Txn) error {
		key := s.keyUsers.Key(keyUserKey(keyName, pubkey))
		raw, err := txn.Get(key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			return ErrKeyUserNotFound
		}
		if err != nil {
			return err
		}
		ku := &types.KeyUser{}
		if err := json.Unmarshal(raw, ku); err != nil {
			return err
		}
		now := s.clk.Now()
		ku.RevokedAt = &now
		if err := txn.Put(key, marshal(ku)); err != nil {
			return err
		}
		logger.Info("key user revoked", "key", keyName, "app", log.TruncateID(pubkey, 8))
		return nil
	})
}

// ListKeyUsers 列出指定密钥的授权关系，keyName 为空列出全部
func (s *Store) ListKeyUsers(keyName string) ([]types.KeyUser, error) {
	raw, err := s.keyUsers.Scan()
	if err != nil {
		return nil, err
	}
	out := make([]types.KeyUser, 0, len(raw))
	for k, data := range raw {
		if keyName != "" && !strings.HasPrefix(k, keyName+"/") {
			continue
		}
		var ku types.KeyUser
		if err := json.Unmarshal(data, &ku); err != nil {
			return nil, err
		}
		out = append(out, ku)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ============================================================================
//                              方法授权记录
// ============================================================================

// Permissions 列出某授权关系下的全部方法授权
func (s *Store) Permissions(keyUserID string) ([]types.Permission, error) {
	raw, err := s.permissions.Scan()
	if err != nil {
		return nil, err
	}
	out := make([]types.Permission, 0, len(raw))
	for k, data := range raw {
		if !strings.HasPrefix(k, keyUserID+"/") {
			continue
		}
		var perm types.Permission
		if err := json.Unmarshal(data, &perm); err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out, nil
}

// GetPermission 查询某授权关系下指定方法的授权记录
func (s *Store) GetPermission(keyUserID, method string) (*types.Permission, error) {
	raw, err := s.permissions.Get(permissionKey(keyUserID, method))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	perm := &types.Permission{}
	if err := json.Unmarshal(raw, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// GrantPermission 记录一条方法授权（交互审批的落库路径）
func (s *Store) GrantPermission(keyUserID, method string, kinds []int, allow bool) error {
	perm := types.Permission{
		ID:        uuid.NewString(),
		KeyUserID: keyUserID,
		Method:    method,
		Kinds:     kinds,
		Allow:     allow,
		CreatedAt: s.clk.Now(),
	}
	return s.permissions.Put(permissionKey(keyUserID, method), marshal(perm))
}
