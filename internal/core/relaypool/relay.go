package relaypool

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-nostrsigner/internal/config"
)

// ============================================================================
//                              单中继连接
// ============================================================================

// relayConn 单个中继的长连接管理
//
// 每个中继由一个独立协程负责：拨号、读泵、断线退避重连。
// 写操作加锁串行化并带写超时，读超时由 pong 回应刷新。
type relayConn struct {
	url  string
	cfg  config.PoolConfig
	pool *Pool

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool

	// kick 唤醒重连循环立即重试（EnsureLive / ResetPool）
	kick chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newRelayConn(parent context.Context, pool *Pool, url string) *relayConn {
	ctx, cancel := context.WithCancel(parent)
	return &relayConn{
		url:    url,
		cfg:    pool.cfg,
		pool:   pool,
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// run 连接维护主循环，直到连接池关闭
func (rc *relayConn) run() {
	defer close(rc.done)

	delay := rc.cfg.ReconnectBaseDelay
	for {
		if rc.ctx.Err() != nil {
			return
		}

		err := rc.connectAndServe()
		if rc.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debug("relay connection lost",
				"relay", rc.url,
				"error", err)
		}

		select {
		case <-rc.ctx.Done():
			return
		case <-rc.kick:
			delay = rc.cfg.ReconnectBaseDelay
		case <-time.After(delay):
			delay *= 2
			if delay > rc.cfg.ReconnectMaxDelay {
				delay = rc.cfg.ReconnectMaxDelay
			}
		}
	}
}

// connectAndServe 拨号并驱动读泵直到连接断开
func (rc *relayConn) connectAndServe() error {
	dialCtx, cancel := context.WithTimeout(rc.ctx, rc.cfg.DialTimeout)
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, rc.url, nil)
	cancel()
	if err != nil {
		return err
	}

	rc.mu.Lock()
	rc.ws = ws
	rc.connected = true
	rc.mu.Unlock()

	logger.Info("relay connected", "relay", rc.url)
	rc.pool.handleRelayConnected(rc)

	pingDone := make(chan struct{})
	go rc.pingLoop(ws, pingDone)

	readDeadline := 2*rc.cfg.PingInterval + rc.cfg.WriteTimeout
	_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	var readErr error
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(readDeadline))
		rc.pool.handleMessage(rc.url, data)
	}

	close(pingDone)
	rc.teardown(ws)
	return readErr
}

func (rc *relayConn) pingLoop(ws *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(rc.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(rc.cfg.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// send 串行化写入，带写超时
func (rc *relayConn) send(data []byte) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.ws == nil {
		return ErrNoRelayAvailable
	}
	_ = rc.ws.SetWriteDeadline(time.Now().Add(rc.cfg.WriteTimeout))
	return rc.ws.WriteMessage(websocket.TextMessage, data)
}

// isConnected 当前是否有活跃连接
func (rc *relayConn) isConnected() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.connected
}

// drop 主动断开当前连接（读泵随之退出并走重连路径）
func (rc *relayConn) drop() {
	rc.mu.Lock()
	ws := rc.ws
	rc.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

// kickReconnect 要求重连循环跳过剩余退避立即重试
func (rc *relayConn) kickReconnect() {
	select {
	case rc.kick <- struct{}{}:
	default:
	}
}

func (rc *relayConn) teardown(ws *websocket.Conn) {
	rc.mu.Lock()
	if rc.ws == ws {
		rc.ws = nil
		rc.connected = false
	}
	rc.mu.Unlock()
	_ = ws.Close()
}

// stop 终止连接维护循环并等待退出
func (rc *relayConn) stop() {
	rc.cancel()
	rc.drop()
	<-rc.done
}
