package delegation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-nostrsigner/internal/config"
	"github.com/dep2p/go-nostrsigner/internal/core/storage"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

func newTestStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()
	engine, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(engine, config.TokenConfig{DefaultTTL: 24 * time.Hour}, mock), mock
}

func signEventPolicy(t *testing.T, s *Store) *types.Policy {
	t.Helper()
	policy, err := s.CreatePolicy(types.Policy{
		Name:  "notes-only",
		Trust: types.TrustReasonable,
		Rules: []types.PolicyRule{{Method: "sign_event", Kinds: []int{1}}},
	})
	require.NoError(t, err)
	return policy
}

const appPubkey = "f7234bd4c1394dda46d09f35bd384d6730d463a3e7652d34df12da12d1abeab1"

// ============================================================================
// 接口契约测试
// ============================================================================

// TestStore_ImplementsTokenStore 验证 Store 实现兑换接口
func TestStore_ImplementsTokenStore(t *testing.T) {
	var _ pkgif.TokenStore = (*Store)(nil)
}

// ============================================================================
// 管理操作测试
// ============================================================================

// TestStore_CreateToken 创建令牌并按值检索
func TestStore_CreateToken(t *testing.T) {
	s, mock := newTestStore(t)
	policy := signEventPolicy(t, s)

	rec, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Token, 32)
	assert.Equal(t, mock.Now().Add(24*time.Hour), rec.ExpiresAt)
	assert.Nil(t, rec.RedeemedAt)

	got, err := s.getTokenByValue(rec.Token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

// TestStore_CreateTokenUnknownPolicy 引用不存在的策略报错
func TestStore_CreateTokenUnknownPolicy(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.CreateToken("home", "no-such-policy", 0)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

// TestStore_RevokeToken 吊销后令牌不可见也不可兑换
func TestStore_RevokeToken(t *testing.T) {
	s, _ := newTestStore(t)
	policy := signEventPolicy(t, s)

	rec, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)
	require.NoError(t, s.RevokeToken(rec.ID))

	_, err = s.GetToken(rec.ID)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = s.ApplyToken(context.Background(), appPubkey, rec.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

// TestStore_ListTokensFiltersByKey 按密钥名过滤列表
func TestStore_ListTokensFiltersByKey(t *testing.T) {
	s, _ := newTestStore(t)
	policy := signEventPolicy(t, s)

	_, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)
	_, err = s.CreateToken("work", policy.ID, 0)
	require.NoError(t, err)

	all, err := s.ListTokens("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	home, err := s.ListTokens("home")
	require.NoError(t, err)
	require.Len(t, home, 1)
	assert.Equal(t, "home", home[0].KeyName)
}

// ============================================================================
// 兑换测试
// ============================================================================

// TestStore_ApplyTokenMaterializesGrants 兑换物化授权关系与方法授权
func TestStore_ApplyTokenMaterializesGrants(t *testing.T) {
	s, _ := newTestStore(t)
	policy := signEventPolicy(t, s)
	rec, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)

	ku, err := s.ApplyToken(context.Background(), appPubkey, rec.Token)
	require.NoError(t, err)
	assert.Equal(t, "home", ku.KeyName)
	assert.Equal(t, appPubkey, ku.UserPubkey)
	assert.Equal(t, types.TrustReasonable, ku.Trust)

	perms, err := s.Permissions(ku.ID)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	byMethod := map[string]types.Permission{}
	for _, p := range perms {
		byMethod[p.Method] = p
	}
	assert.True(t, byMethod["connect"].Allow)
	assert.True(t, byMethod["sign_event"].Allow)
	assert.Equal(t, []int{1}, byMethod["sign_event"].Kinds)

	redeemed, err := s.GetToken(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, redeemed.RedeemedAt)
	assert.Equal(t, ku.ID, redeemed.KeyUserID)
}

// TestStore_ApplyTokenSecondAttemptFails 已兑换令牌再次兑换被拒
func TestStore_ApplyTokenSecondAttemptFails(t *testing.T) {
	s, _ := newTestStore(t)
	policy := signEventPolicy(t, s)
	rec, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)

	_, err = s.ApplyToken(context.Background(), appPubkey, rec.Token)
	require.NoError(t, err)

	_, err = s.ApplyToken(context.Background(), strings.Repeat("e", 64), rec.Token)
	assert.ErrorIs(t, err, ErrTokenAlreadyRedeemed)
}

// TestStore_ApplyTokenExpired 过期令牌被拒
func TestStore_ApplyTokenExpired(t *testing.T) {
	s, mock := newTestStore(t)
	policy := signEventPolicy(t, s)
	rec, err := s.CreateToken("home", policy.ID, time.Hour)
	require.NoError(t, err)

	mock.Add(2 * time.Hour)
	_, err = s.ApplyToken(context.Background(), appPubkey, rec.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// TestStore_ApplyTokenUnknown 未知令牌值被拒
func TestStore_ApplyTokenUnknown(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.ApplyToken(context.Background(), appPubkey, "deadbeef")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

// TestStore_ApplyTokenConcurrent 并发兑换恰好一个成功
func TestStore_ApplyTokenConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	policy := signEventPolicy(t, s)
	rec, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)

	const workers = 12
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.ApplyToken(context.Background(), appPubkey, rec.Token)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrTokenAlreadyRedeemed)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// TestStore_ApplyTokenRollback 物化失败时兑换回滚，令牌仍可用
func TestStore_ApplyTokenRollback(t *testing.T) {
	s, _ := newTestStore(t)
	policy := signEventPolicy(t, s)
	rec, err := s.CreateToken("home", policy.ID, 0)
	require.NoError(t, err)

	// 令牌创建后策略被删：物化必然失败
	require.NoError(t, s.DeletePolicy(policy.ID))
	_, err = s.ApplyToken(context.Background(), appPubkey, rec.Token)
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	// 兑换未生效
	got, err := s.GetToken(rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RedeemedAt)

	// 策略恢复后同一令牌兑换成功
	_, err = s.CreatePolicy(types.Policy{ID: policy.ID, Name: policy.Name, Trust: policy.Trust, Rules: policy.Rules})
	require.NoError(t, err)
	_, err = s.ApplyToken(context.Background(), appPubkey, rec.Token)
	assert.NoError(t, err)
}

// ============================================================================
// 授权关系测试
// ============================================================================

// TestStore_RevokeAndReactivateKeyUser 吊销是软删除，重建复用原行
func TestStore_RevokeAndReactivateKeyUser(t *testing.T) {
	s, _ := newTestStore(t)

	ku, err := s.UpsertKeyUser("home", appPubkey, types.TrustParanoid)
	require.NoError(t, err)

	require.NoError(t, s.RevokeKeyUser("home", appPubkey))
	got, err := s.GetKeyUser("home", appPubkey)
	require.NoError(t, err)
	assert.True(t, got.Revoked())

	again, err := s.UpsertKeyUser("home", appPubkey, types.TrustFull)
	require.NoError(t, err)
	assert.Equal(t, ku.ID, again.ID, "reactivation must reuse the row")
	assert.False(t, again.Revoked())
	assert.Equal(t, types.TrustFull, again.Trust)
}

// TestStore_GetPermissionMissing 无记录返回 nil 而非错误
func TestStore_GetPermissionMissing(t *testing.T) {
	s, _ := newTestStore(t)

	perm, err := s.GetPermission("nobody", "sign_event")
	require.NoError(t, err)
	assert.Nil(t, perm)
}
