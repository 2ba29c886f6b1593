// Package metrics 提供 Prometheus 指标收集与暴露
//
// metrics 包负责：
// - 订阅事件总线上的领域事件并计数
// - 可选的 /metrics HTTP 端点
//
// 收集器持有独立的 Registry，不污染全局默认注册表，
// 多实例（测试场景）互不干扰。
package metrics

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

var logger = log.Logger("core/metrics")

// ============================================================================
//                              指标收集器
// ============================================================================

// Collector 事件驱动的指标收集器
type Collector struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	appConnectsTotal  *prometheus.CounterVec
	poolResetsTotal   *prometheus.CounterVec
	probeFailsTotal   prometheus.Counter
	restartsTotal     prometheus.Counter
	relayReadiesTotal *prometheus.CounterVec

	subs    []pkgif.Subscription
	started atomic.Bool
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCollector 创建指标收集器并注册全部指标
func NewCollector(bus pkgif.EventBus) (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nostrsigner",
			Name:      "requests_total",
			Help:      "Handled NIP-46 requests by key, method and outcome.",
		}, []string{"key", "method", "outcome"}),
		appConnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nostrsigner",
			Name:      "app_connects_total",
			Help:      "Successful connect handshakes by key and trust level.",
		}, []string{"key", "trust"}),
		poolResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nostrsigner",
			Name:      "pool_resets_total",
			Help:      "Full relay pool resets by reason.",
		}, []string{"reason"}),
		probeFailsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nostrsigner",
			Name:      "probe_failures_total",
			Help:      "Subscription liveness probes that timed out.",
		}),
		restartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nostrsigner",
			Name:      "subscription_restarts_total",
			Help:      "Full subscription restart passes.",
		}),
		relayReadiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nostrsigner",
			Name:      "relay_ready_total",
			Help:      "Relay connections established, by relay URL.",
		}, []string{"relay"}),
		done: make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	for _, collector := range []prometheus.Collector{
		c.requestsTotal, c.appConnectsTotal, c.poolResetsTotal,
		c.probeFailsTotal, c.restartsTotal, c.relayReadiesTotal,
	} {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}

	for _, evType := range []interface{}{
		new(types.EvtRequestHandled),
		new(types.EvtAppConnected),
		new(types.EvtPoolReset),
		new(types.EvtHealthCheckFailed),
		new(types.EvtSubscriptionsRestarted),
		new(types.EvtRelayReady),
	} {
		sub, err := bus.Subscribe(evType, pkgif.BufSize(64))
		if err != nil {
			return nil, err
		}
		c.subs = append(c.subs, sub)
	}
	return c, nil
}

// Registry 返回收集器的指标注册表
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Start 启动事件消费循环（幂等）
func (c *Collector) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	for _, sub := range c.subs {
		go c.consume(sub)
	}
	logger.Info("metrics collector started")
	return nil
}

// Stop 停止消费并关闭订阅
func (c *Collector) Stop() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	for _, sub := range c.subs {
		_ = sub.Close()
	}
	logger.Info("metrics collector stopped")
	return nil
}

func (c *Collector) consume(sub pkgif.Subscription) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-sub.Out():
			if !ok {
				return
			}
			c.observe(ev)
		}
	}
}

// observe 单事件计数
func (c *Collector) observe(ev interface{}) {
	switch e := ev.(type) {
	case *types.EvtRequestHandled:
		outcome := "ok"
		if !e.Ok {
			outcome = "error"
		}
		c.requestsTotal.WithLabelValues(e.KeyName, e.Method, outcome).Inc()
	case *types.EvtAppConnected:
		c.appConnectsTotal.WithLabelValues(e.KeyName, e.Trust.String()).Inc()
	case *types.EvtPoolReset:
		c.poolResetsTotal.WithLabelValues(e.Reason).Inc()
	case *types.EvtHealthCheckFailed:
		c.probeFailsTotal.Inc()
	case *types.EvtSubscriptionsRestarted:
		c.restartsTotal.Inc()
	case *types.EvtRelayReady:
		c.relayReadiesTotal.WithLabelValues(e.URL).Inc()
	}
}
