package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-nostrsigner/internal/config"
)

// shutdownTimeout 指标服务优雅关闭上限
const shutdownTimeout = 5 * time.Second

// ============================================================================
//                              指标 HTTP 服务
// ============================================================================

// Server /metrics HTTP 端点
type Server struct {
	srv *http.Server
}

// NewServer 创建指标 HTTP 服务
func NewServer(cfg config.MetricsConfig, collector *Collector) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start 启动监听，监听失败只记录不致命
func (s *Server) Start() {
	go func() {
		logger.Info("metrics endpoint listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
}

// Stop 优雅关闭
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
