// Package relaypool 维护到一组 Nostr 中继的 websocket 连接池
//
// relaypool 包负责：
// - 按配置列表维持中继长连接，断线指数退避重连
// - NIP-01 订阅（REQ/CLOSE）的建立、跨重连恢复与事件分发
// - 事件发布（EVENT）与发布前的连接活性保障
// - 宿主机休眠检测与连续健康失败后的整体重置
//
// 连接表只由池自身修改。协议处理器与订阅管理器共享同一个
// 池实例，通过 RelayPool 接口协作。
package relaypool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"

	"github.com/dep2p/go-nostrsigner/internal/config"
	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

var logger = log.Logger("core/relaypool")

// seenEventCacheSize 跨中继事件去重缓存容量
const seenEventCacheSize = 4096

// ============================================================================
//                              订阅注册表
// ============================================================================

// poolSub 池内登记的一条订阅
type poolSub struct {
	id      string
	filter  types.Filter
	onEvent pkgif.EventCallback
	onEOSE  pkgif.EOSECallback
	// relays 为空表示投放到全部中继
	relays []string
}

// wantsRelay 订阅是否投放到指定中继
func (s *poolSub) wantsRelay(url string) bool {
	if len(s.relays) == 0 {
		return true
	}
	for _, r := range s.relays {
		if r == url {
			return true
		}
	}
	return false
}

// ============================================================================
//                              连接池实现
// ============================================================================

// Pool 中继连接池
type Pool struct {
	cfg       config.PoolConfig
	relayURLs []string
	clk       clock.Clock

	mu    sync.RWMutex
	conns map[string]*relayConn
	subs  map[string]*poolSub

	// seen 跨中继事件去重（同一事件会从多个中继到达）
	seen *lru.Cache[string, struct{}]

	// failures 连续健康检查失败计数
	failures atomic.Int32

	readyEmitter pkgif.Emitter
	resetEmitter pkgif.Emitter

	started atomic.Bool
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool 创建中继连接池
func NewPool(cfg config.PoolConfig, relays []string, bus pkgif.EventBus, clk clock.Clock) (*Pool, error) {
	readyEmitter, err := bus.Emitter(new(types.EvtRelayReady))
	if err != nil {
		return nil, err
	}
	resetEmitter, err := bus.Emitter(new(types.EvtPoolReset))
	if err != nil {
		return nil, err
	}
	seen, err := lru.New[string, struct{}](seenEventCacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:          cfg,
		relayURLs:    append([]string(nil), relays...),
		clk:          clk,
		conns:        make(map[string]*relayConn),
		subs:         make(map[string]*poolSub),
		seen:         seen,
		readyEmitter: readyEmitter,
		resetEmitter: resetEmitter,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start 启动连接池（幂等）
func (p *Pool) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.mu.Lock()
	for _, url := range p.relayURLs {
		rc := newRelayConn(p.ctx, p, url)
		p.conns[url] = rc
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			rc.run()
		}()
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.gapMonitor()

	logger.Info("relay pool started", "relays", len(p.relayURLs))
	return nil
}

// Stop 关闭连接池并等待全部协程退出
func (p *Pool) Stop() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	p.mu.Lock()
	conns := make([]*relayConn, 0, len(p.conns))
	for _, rc := range p.conns {
		conns = append(conns, rc)
	}
	p.mu.Unlock()

	for _, rc := range conns {
		rc.stop()
	}
	p.wg.Wait()

	err := multierr.Append(p.readyEmitter.Close(), p.resetEmitter.Close())
	logger.Info("relay pool stopped")
	return err
}

// ============================================================================
//                              订阅与发布
// ============================================================================

// Subscribe 登记订阅并向目标中继发送 REQ
//
// 当前未连接的中继在重连成功后自动补发 REQ，因此即使此刻
// 全部中继断开，订阅依然登记成功。
func (p *Pool) Subscribe(filter types.Filter, onEvent pkgif.EventCallback, id string, onEOSE pkgif.EOSECallback, relays []string) (pkgif.CancelFunc, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	sub := &poolSub{
		id:      id,
		filter:  filter,
		onEvent: onEvent,
		onEOSE:  onEOSE,
		relays:  append([]string(nil), relays...),
	}

	p.mu.Lock()
	if _, exists := p.subs[id]; exists {
		p.mu.Unlock()
		return nil, ErrDuplicateSubscription
	}
	p.subs[id] = sub
	targets := p.connsForLocked(sub)
	p.mu.Unlock()

	data, err := encodeReq(id, filter)
	if err != nil {
		p.removeSub(id)
		return nil, err
	}
	for _, rc := range targets {
		if rc.isConnected() {
			if err := rc.send(data); err != nil {
				logger.Debug("REQ send failed, will retry on reconnect",
					"relay", rc.url, "sub", id, "error", err)
			}
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { p.unsubscribe(id) })
	}
	return cancel, nil
}

func (p *Pool) unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.subs, id)
	targets := p.connsForLocked(sub)
	p.mu.Unlock()

	data, err := encodeClose(id)
	if err != nil {
		return
	}
	for _, rc := range targets {
		if rc.isConnected() {
			_ = rc.send(data)
		}
	}
}

func (p *Pool) removeSub(id string) {
	p.mu.Lock()
	delete(p.subs, id)
	p.mu.Unlock()
}

// connsForLocked 订阅目标中继的连接集合，调用方持锁
func (p *Pool) connsForLocked(sub *poolSub) []*relayConn {
	out := make([]*relayConn, 0, len(p.conns))
	for url, rc := range p.conns {
		if sub.wantsRelay(url) {
			out = append(out, rc)
		}
	}
	return out
}

// Publish 向全部已连接中继发布事件
func (p *Pool) Publish(ctx context.Context, ev *types.Event) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.conns))
	for _, rc := range p.conns {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	published := 0
	for _, rc := range conns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !rc.isConnected() {
			continue
		}
		if err := rc.send(data); err != nil {
			logger.Debug("publish failed", "relay", rc.url, "error", err)
			continue
		}
		published++
	}
	if published == 0 {
		return ErrNoRelayAvailable
	}
	return nil
}

// EnsureLive 发布前的连接活性检查
//
// 唤醒所有断开连接的重连循环，并在 ctx 允许的时间内等待
// 至少一条连接就绪。超时不算错误，Publish 自会报告无可用
// 中继。
func (p *Pool) EnsureLive(ctx context.Context) {
	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.conns))
	for _, rc := range p.conns {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	anyLive := false
	for _, rc := range conns {
		if rc.isConnected() {
			anyLive = true
		} else {
			rc.kickReconnect()
		}
	}
	if anyLive {
		return
	}

	ticker := p.clk.Ticker(p.cfg.ReconnectBaseDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			for _, rc := range conns {
				if rc.isConnected() {
					return
				}
			}
		}
	}
}

// ============================================================================
//                          健康上报与整体重置
// ============================================================================

// ReportHealthCheckSuccess 健康检查成功，清零失败计数
func (p *Pool) ReportHealthCheckSuccess() {
	p.failures.Store(0)
}

// ReportHealthCheckFailure 健康检查失败计数加一
//
// 达到阈值时整体重置并返回 true。
func (p *Pool) ReportHealthCheckFailure() bool {
	n := p.failures.Add(1)
	if int(n) < p.cfg.HealthFailureThreshold {
		return false
	}
	p.failures.Store(0)
	p.ResetPool(types.ResetReasonHealthFailure)
	return true
}

// ResetPool 断开全部连接并立即重建
func (p *Pool) ResetPool(reason string) {
	if p.closed.Load() {
		return
	}
	logger.Warn("relay pool reset", "reason", reason)

	p.mu.RLock()
	conns := make([]*relayConn, 0, len(p.conns))
	for _, rc := range p.conns {
		conns = append(conns, rc)
	}
	p.mu.RUnlock()

	for _, rc := range conns {
		rc.drop()
		rc.kickReconnect()
	}
	if err := p.resetEmitter.Emit(&types.EvtPoolReset{Reason: reason}); err != nil {
		logger.Debug("emit pool reset failed", "error", err)
	}
}

// Relays 返回已配置的中继 URL
func (p *Pool) Relays() []string {
	return append([]string(nil), p.relayURLs...)
}

// gapMonitor 宿主机休眠检测
//
// 节拍间隔远小于休眠阈值，正常调度抖动不会误判。一旦两次
// 节拍的墙钟差超过阈值，说明进程经历了挂起，所有 socket
// 的对端状态不可信，整体重置。
func (p *Pool) gapMonitor() {
	defer p.wg.Done()

	last := p.clk.Now()
	ticker := p.clk.Ticker(p.cfg.GapCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			last = p.observeTick(last, p.clk.Now())
		}
	}
}

// observeTick 单次节拍的跳变判定，返回新的基准时刻
func (p *Pool) observeTick(last, now time.Time) time.Time {
	if now.Sub(last) > p.cfg.SleepGapThreshold {
		logger.Warn("wall clock gap detected",
			"gap", now.Sub(last),
			"threshold", p.cfg.SleepGapThreshold)
		p.ResetPool(types.ResetReasonSleepGap)
	}
	return now
}

// ============================================================================
//                              连接事件处理
// ============================================================================

// handleRelayConnected 连接（重）建立后补发全部订阅
func (p *Pool) handleRelayConnected(rc *relayConn) {
	p.mu.RLock()
	subs := make([]*poolSub, 0, len(p.subs))
	for _, sub := range p.subs {
		if sub.wantsRelay(rc.url) {
			subs = append(subs, sub)
		}
	}
	p.mu.RUnlock()

	for _, sub := range subs {
		data, err := encodeReq(sub.id, sub.filter)
		if err != nil {
			continue
		}
		if err := rc.send(data); err != nil {
			logger.Debug("resubscribe failed", "relay", rc.url, "sub", sub.id, "error", err)
		}
	}

	if err := p.readyEmitter.Emit(&types.EvtRelayReady{URL: rc.url}); err != nil {
		logger.Debug("emit relay ready failed", "error", err)
	}
}

// handleMessage 处理中继下行消息
func (p *Pool) handleMessage(relayURL string, data []byte) {
	msg, err := decodeMessage(data)
	if err != nil {
		logger.Debug("bad relay message", "relay", relayURL, "error", err)
		return
	}

	switch msg.Kind {
	case "EVENT":
		p.dispatchEvent(msg.SubID, msg.Event)
	case "EOSE":
		p.dispatchEOSE(msg.SubID)
	case "OK":
		if !msg.OK {
			logger.Warn("publish rejected",
				"relay", relayURL, "event", log.TruncateID(msg.EventID, 8), "reason", msg.Message)
		}
	case "NOTICE":
		logger.Debug("relay notice", "relay", relayURL, "message", msg.Message)
	case "CLOSED":
		// 中继单方面关闭订阅。健康探测会发现失活并触发重启，
		// 这里只记录。
		logger.Warn("subscription closed by relay",
			"relay", relayURL, "sub", msg.SubID, "reason", msg.Message)
	}
}

func (p *Pool) dispatchEvent(subID string, ev *types.Event) {
	if ev == nil {
		return
	}

	p.mu.RLock()
	sub, ok := p.subs[subID]
	p.mu.RUnlock()
	if !ok || !sub.filter.Matches(ev) {
		return
	}

	// 同一事件从多个中继到达时只分发一次
	if ev.ID != "" {
		if _, dup := p.seen.Get(subID + "/" + ev.ID); dup {
			return
		}
		p.seen.Add(subID+"/"+ev.ID, struct{}{})
	}
	sub.onEvent(ev)
}

func (p *Pool) dispatchEOSE(subID string) {
	p.mu.RLock()
	sub, ok := p.subs[subID]
	p.mu.RUnlock()
	if ok && sub.onEOSE != nil {
		sub.onEOSE()
	}
}
