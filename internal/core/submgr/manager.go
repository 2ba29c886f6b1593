// Package submgr 提供声明式订阅注册表与健康管理
//
// submgr 包负责：
// - 维护命名订阅注册表，保证每个订阅在连接池上持续存活
// - 轮转式 EOSE 存活探测（每节拍一个订阅，不重叠，限时）
// - 节拍间隔跳变的休眠检测（跳过当次探测并重置连接池）
// - 防抖的订阅全量重启（多个触发源收敛为一次重建）
//
// 中继对失活订阅不会发任何通知，唯一可靠的检测手段是主动
// 发一个期待 EOSE 回应的探测请求。探测轮转进行，单节拍只
// 探测一个订阅，避免探测风暴。
package submgr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-nostrsigner/internal/config"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

var logger = log.Logger("core/submgr")

// managedSub 注册表中的一条命名订阅
type managedSub struct {
	id      string
	filter  types.Filter
	onEvent pkgif.EventCallback
	relays  []string
	// cancel 当前池订阅的取消句柄，重启时换新
	cancel pkgif.CancelFunc
}

// ============================================================================
//                              订阅管理器
// ============================================================================

// Manager 订阅管理器
type Manager struct {
	cfg  config.HealthConfig
	pool pkgif.RelayPool
	clk  clock.Clock

	mu    sync.Mutex
	subs  map[string]*managedSub
	order []string
	// cursor 轮转探测游标
	cursor int

	// restartPending 防抖标志：静默期内的重复触发被吸收
	restartPending bool
	settleTimer    *clock.Timer

	failEmitter    pkgif.Emitter
	restartEmitter pkgif.Emitter
	poolResetSub   pkgif.Subscription

	started atomic.Bool
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager 创建订阅管理器
func NewManager(cfg config.HealthConfig, pool pkgif.RelayPool, bus pkgif.EventBus, clk clock.Clock) (*Manager, error) {
	failEmitter, err := bus.Emitter(new(types.EvtHealthCheckFailed))
	if err != nil {
		return nil, err
	}
	restartEmitter, err := bus.Emitter(new(types.EvtSubscriptionsRestarted))
	if err != nil {
		return nil, err
	}
	poolResetSub, err := bus.Subscribe(new(types.EvtPoolReset))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:            cfg,
		pool:           pool,
		clk:            clk,
		subs:           make(map[string]*managedSub),
		failEmitter:    failEmitter,
		restartEmitter: restartEmitter,
		poolResetSub:   poolResetSub,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// ============================================================================
//                              注册表操作
// ============================================================================

// Subscribe 注册命名订阅并立即在池上建立
//
// 同名重复注册替换旧订阅。
func (m *Manager) Subscribe(id string, filter types.Filter, onEvent pkgif.EventCallback, relays []string) (pkgif.CancelFunc, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.subs[id]; exists {
		if old.cancel != nil {
			old.cancel()
		}
	} else {
		m.order = append(m.order, id)
	}

	sub := &managedSub{
		id:      id,
		filter:  filter,
		onEvent: onEvent,
		relays:  append([]string(nil), relays...),
	}
	cancel, err := m.pool.Subscribe(filter, onEvent, id, nil, sub.relays)
	if err != nil {
		m.removeLocked(id)
		return nil, err
	}
	sub.cancel = cancel
	m.subs[id] = sub

	logger.Info("subscription registered", "sub", id)
	return func() { m.Unsubscribe(id) }, nil
}

// Unsubscribe 取消并移除命名订阅
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return
	}
	if sub.cancel != nil {
		sub.cancel()
	}
	m.removeLocked(id)
	logger.Info("subscription removed", "sub", id)
}

func (m *Manager) removeLocked(id string) {
	delete(m.subs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动健康检查节拍与池重置监听（幂等）
func (m *Manager) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}

	m.wg.Add(1)
	go m.run()
	logger.Info("subscription manager started",
		"tick", m.cfg.TickInterval,
		"probe_timeout", m.cfg.ProbeTimeout)
	return nil
}

// Stop 停止后台任务并取消全部订阅
func (m *Manager) Stop() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cancel()
	_ = m.poolResetSub.Close()
	m.wg.Wait()

	m.mu.Lock()
	if m.settleTimer != nil {
		m.settleTimer.Stop()
	}
	for _, sub := range m.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	m.subs = make(map[string]*managedSub)
	m.order = nil
	m.mu.Unlock()

	_ = m.failEmitter.Close()
	_ = m.restartEmitter.Close()
	logger.Info("subscription manager stopped")
	return nil
}

// run 节拍主循环
//
// 探测在本协程内同步执行，天然保证探测互不重叠。
func (m *Manager) run() {
	defer m.wg.Done()

	lastTick := m.clk.Now()
	ticker := m.clk.Ticker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case _, ok := <-m.poolResetSub.Out():
			if !ok {
				continue
			}
			// 池重置后所有订阅的中继端状态不可信，全量重建
			m.scheduleRestart()
		case <-ticker.C:
			lastTick = m.handleTick(lastTick, m.clk.Now())
		}
	}
}

// handleTick 单次节拍处理，返回新的基准时刻
//
// 节拍间隔大幅超出预期说明进程经历了挂起。此时中继端几乎
// 必然已掉线，按部就班探测只会白等一次超时，直接走重置。
func (m *Manager) handleTick(last, now time.Time) time.Time {
	gap := now.Sub(last)
	if gap > m.cfg.TickInterval*time.Duration(m.cfg.SleepFactor) {
		logger.Warn("tick gap exceeds sleep threshold",
			"gap", gap,
			"interval", m.cfg.TickInterval)
		m.pool.ResetPool(types.ResetReasonSleepGap)
		m.scheduleRestart()
		return now
	}

	if m.pendingRestart() {
		// 重启已在路上，探测结果没有意义
		return now
	}

	if sub := m.nextSub(); sub != nil {
		m.probe(sub)
	}
	return now
}

func (m *Manager) pendingRestart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restartPending
}

// nextSub 轮转返回下一个待探测订阅
func (m *Manager) nextSub() *managedSub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return nil
	}
	if m.cursor >= len(m.order) {
		m.cursor = 0
	}
	sub := m.subs[m.order[m.cursor]]
	m.cursor++
	return sub
}

// ============================================================================
//                              存活探测
// ============================================================================

// probe 对单个订阅做一次 EOSE 存活探测
//
// 以同样的过滤器发一个一次性 REQ，活跃的中继必须以 EOSE
// 收尾（哪怕没有任何存量事件）。限时未等到即判失败。
func (m *Manager) probe(sub *managedSub) {
	probeFilter := sub.filter
	probeFilter.Limit = 1

	eose := make(chan struct{}, 1)
	probeID := "probe-" + uuid.NewString()[:8]
	cancel, err := m.pool.Subscribe(
		probeFilter,
		func(*types.Event) {},
		probeID,
		func() {
			select {
			case eose <- struct{}{}:
			default:
			}
		},
		sub.relays,
	)
	if err != nil {
		logger.Warn("probe subscribe failed", "sub", sub.id, "error", err)
		m.probeFailed(sub)
		return
	}
	defer cancel()

	timer := m.clk.Timer(m.cfg.ProbeTimeout)
	defer timer.Stop()

	select {
	case <-eose:
		m.pool.ReportHealthCheckSuccess()
	case <-timer.C:
		logger.Warn("probe timed out", "sub", sub.id, "timeout", m.cfg.ProbeTimeout)
		m.probeFailed(sub)
	case <-m.ctx.Done():
	}
}

// probeFailed 探测失败的降级处理
//
// 失败先上报连接池。池若因连续失败自行整体重置，重启调度
// 会经由池重置事件到达，这里不再重复。
func (m *Manager) probeFailed(sub *managedSub) {
	if err := m.failEmitter.Emit(&types.EvtHealthCheckFailed{
		SubscriptionID: sub.id,
		Time:           m.clk.Now(),
	}); err != nil {
		logger.Debug("emit health check failed", "error", err)
	}

	if escalated := m.pool.ReportHealthCheckFailure(); !escalated {
		m.scheduleRestart()
	}
}

// ============================================================================
//                              防抖全量重启
// ============================================================================

// scheduleRestart 调度一次防抖的全量重启
//
// 静默期内的重复调用被吸收为同一次重启。
func (m *Manager) scheduleRestart() {
	if m.closed.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.restartPending {
		return
	}
	m.restartPending = true
	m.settleTimer = m.clk.AfterFunc(m.cfg.RestartSettleDelay, m.restartAll)
	logger.Info("subscription restart scheduled", "settle", m.cfg.RestartSettleDelay)
}

// restartAll 拆除并重建全部订阅
//
// 单条订阅重建失败不阻塞其余订阅，但会再排一次防抖重启：
// 失败的订阅没有池端存在，等它自己的轮转探测兜底太慢。
func (m *Manager) restartAll() {
	if m.closed.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	failed := 0
	for _, id := range m.order {
		sub := m.subs[id]
		if sub.cancel != nil {
			sub.cancel()
			sub.cancel = nil
		}
		cancel, err := m.pool.Subscribe(sub.filter, sub.onEvent, sub.id, nil, sub.relays)
		if err != nil {
			logger.Error("resubscribe failed", "sub", sub.id, "error", err)
			failed++
			continue
		}
		sub.cancel = cancel
		count++
	}
	m.restartPending = false
	if failed > 0 {
		m.restartPending = true
		m.settleTimer = m.clk.AfterFunc(m.cfg.RestartSettleDelay, m.restartAll)
		logger.Warn("restart incomplete, retry scheduled",
			"failed", failed,
			"settle", m.cfg.RestartSettleDelay)
	}

	if err := m.restartEmitter.Emit(&types.EvtSubscriptionsRestarted{
		Count: count,
		Time:  m.clk.Now(),
	}); err != nil {
		logger.Debug("emit subscriptions restarted", "error", err)
	}
	logger.Info("subscriptions restarted", "count", count)
}
