package types

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
//                              协议信封
// ============================================================================

// Request NIP-46 请求信封
//
// 从解密后的事件内容解码，仅存活于单次请求处理期间，
// 除审计日志外不做持久化。
type Request struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Param 返回第 i 个参数，越界时返回空字符串
//
// 协议参数是位置语义的，缺省参数等价于空串，
// 统一在这里处理避免每个方法各自做越界检查。
func (r *Request) Param(i int) string {
	if i < 0 || i >= len(r.Params) {
		return ""
	}
	return r.Params[i]
}

// DecodeRequest 解码请求信封
func DecodeRequest(plaintext []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return nil, fmt.Errorf("decode request envelope: %w", err)
	}
	if req.ID == "" {
		return nil, fmt.Errorf("request envelope missing id")
	}
	return &req, nil
}

// Response NIP-46 响应信封
//
// Result 与 Error 恰好设置其一。
type Response struct {
	ID     string `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OkResponse 构造成功响应
func OkResponse(id, result string) *Response {
	return &Response{ID: id, Result: result}
}

// ErrResponse 构造错误响应
func ErrResponse(id, msg string) *Response {
	return &Response{ID: id, Error: msg}
}

// Encode 编码响应信封
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}
