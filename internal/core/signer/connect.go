package signer

import (
	"context"
	"crypto/subtle"

	"github.com/google/uuid"

	"github.com/dep2p/go-nostrsigner/pkg/lib/log"
	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
//                              connect 握手
// ============================================================================

// handleConnect connect 方法的三条授权路径
//
// params[0] 是客户端回显的签名器公钥（宽容处理，不校验），
// params[1] 是秘密：优先按管理员配置的共享秘密匹配，不匹配
// 再当一次性令牌兑换，为空则走交互审批。
//
// 共享秘密匹配本身不授信：它只解锁交互审批的入口，信任级别
// 仍由管理端裁决时选定。直接按秘密授信等于把一个可被配置
// 文件泄露的字符串变成完全信任的根。
//
// 秘密不对与令牌无效都静默丢弃：回一个错误等于告诉暴力
// 探测者"这里有一个活的签名器"。
func (h *Handler) handleConnect(sess *session, req *types.Request) {
	secret := req.Param(1)

	// 管理员共享秘密：只解锁审批入口
	if h.keyCfg.ConnectSecret != "" {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(h.keyCfg.ConnectSecret)) == 1 {
			h.connectViaApproval(sess, req)
			return
		}
	}

	// 一次性委托令牌（不匹配的共享秘密也落到这里，兑换失败即静默）
	if secret != "" {
		ctx, cancel := context.WithTimeout(h.ctx, publishTimeout)
		defer cancel()
		ku, err := h.tokens.ApplyToken(ctx, sess.peer, secret)
		if err != nil {
			logger.Debug("connect secret rejected",
				"key", h.keyCfg.Name,
				"from", log.TruncateID(sess.peer, 8),
				"error", err)
			return
		}
		h.ackConnect(sess, req, ku.Trust)
		return
	}

	h.connectViaApproval(sess, req)
}

// connectViaApproval 交互审批路径：批准后以保守信任建立授权关系
func (h *Handler) connectViaApproval(sess *session, req *types.Request) {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.AuthTimeout)
	defer cancel()
	err := h.gate.RequestAuthorization(ctx, uuid.NewString(), h.keyCfg.Name, sess.peer, types.MethodConnect, "")
	if err != nil {
		h.respondErr(sess, req.ID, msgNotAuthorized)
		h.emitHandled(sess.peer, req.Method, false)
		return
	}
	h.ackConnect(sess, req, types.TrustParanoid)
}

// ackConnect 应答 "ack" 并广播连接事件
func (h *Handler) ackConnect(sess *session, req *types.Request, trust types.TrustLevel) {
	h.respondOk(sess, req.ID, "ack")
	h.emitHandled(sess.peer, req.Method, true)

	if err := h.connectedEmitter.Emit(&types.EvtAppConnected{
		KeyName:   h.keyCfg.Name,
		AppPubkey: sess.peer,
		Trust:     trust,
		Time:      h.clk.Now(),
	}); err != nil {
		logger.Debug("emit app connected", "error", err)
	}
	logger.Info("app connected",
		"key", h.keyCfg.Name,
		"app", log.TruncateID(sess.peer, 8),
		"trust", trust)
}
