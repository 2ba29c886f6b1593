// Package eventbus 实现进程内类型化事件总线
//
// 领域事件（连接池重置、应用连接、健康检查失败等）通过总线
// 通知仪表盘与审计层。订阅者异常不会影响发射方：慢消费者的
// 事件被丢弃并计数，而不是阻塞发射。
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-nostrsigner/pkg/interfaces"
	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrNonPointerType 非指针类型
	ErrNonPointerType = errors.New("subscribe called with non-pointer type")
	// ErrEmitterClosed 发射器已关闭
	ErrEmitterClosed = errors.New("emitter is closed")
)

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu sync.RWMutex

	// nodes 事件类型节点映射
	nodes map[reflect.Type]*node
}

// node 事件类型节点
type node struct {
	lk        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription // 订阅者列表
	nEmitters atomic.Int32    // 发射器引用计数
	dropCount atomic.Int64    // 丢弃事件计数（慢消费者警告）
}

// NewBus 创建新的事件总线
func NewBus() *Bus {
	return &Bus{
		nodes: make(map[reflect.Type]*node),
	}
}

// ============================================================================
// EventBus 接口实现
// ============================================================================

// Subscribe 订阅事件
//
// eventType 必须是指针，例如 bus.Subscribe(new(types.EvtPoolReset))。
func (b *Bus) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	elemType, err := elemTypeOf(eventType)
	if err != nil {
		return nil, err
	}

	settings := &pkgif.SubscriptionSettings{
		Buffer: 16, // 默认缓冲区大小
	}
	for _, opt := range opts {
		opt(settings)
	}

	sub := &Subscription{
		bus: b,
		typ: elemType,
		out: make(chan interface{}, settings.Buffer),
	}

	b.withNode(elemType, func(n *node) {
		n.sinks = append(n.sinks, sub)
	})

	return sub, nil
}

// Emitter 获取发射器
func (b *Bus) Emitter(eventType interface{}) (pkgif.Emitter, error) {
	elemType, err := elemTypeOf(eventType)
	if err != nil {
		return nil, err
	}

	var n *node
	b.withNode(elemType, func(node *node) {
		n = node
		n.nEmitters.Add(1)
	})

	return &Emitter{bus: b, node: n, typ: elemType}, nil
}

// ============================================================================
// 内部方法
// ============================================================================

// elemTypeOf 校验并解出事件元素类型
func elemTypeOf(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// withNode 在节点上执行操作，必要时创建节点
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) {
	b.mu.Lock()

	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}

	n.lk.Lock()
	b.mu.Unlock()

	cb(n)
	n.lk.Unlock()
}

// tryDropNode 尝试删除节点（没有订阅者和发射器时）
func (b *Bus) tryDropNode(typ reflect.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[typ]
	if !ok {
		return
	}

	n.lk.Lock()
	keep := len(n.sinks) > 0 || n.nEmitters.Load() > 0
	n.lk.Unlock()

	if !keep {
		delete(b.nodes, typ)
	}
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		return
	}

	n.lk.Lock()
	b.mu.Unlock()

	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}
	shouldDrop := len(n.sinks) == 0 && n.nEmitters.Load() == 0
	n.lk.Unlock()

	if shouldDrop {
		b.tryDropNode(sub.typ)
	}
}

// emit 发射事件到所有订阅者
//
// 订阅者缓冲区满时事件被丢弃并计数。领域事件只承载通知语义，
// 丢弃不影响核心控制流。
func (n *node) emit(event interface{}) {
	n.lk.Lock()
	defer n.lk.Unlock()

	for _, sink := range n.sinks {
		select {
		case sink.out <- event:
		default:
			dropped := n.dropCount.Add(1)
			if dropped%64 == 1 {
				logger.Warn("slow event consumer, dropping",
					"type", n.typ.String(), "dropped", dropped)
			}
		}
	}
}
