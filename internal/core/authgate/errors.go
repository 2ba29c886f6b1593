package authgate

import "errors"

// 授权门相关错误
var (
	// ErrAuthorizationDenied 审批被拒绝
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrApprovalTimeout 审批等待超时
	ErrApprovalTimeout = errors.New("authorization approval timed out")
	// ErrApprovalNotFound 待审批请求不存在
	ErrApprovalNotFound = errors.New("pending approval not found")
	// ErrGateClosed 授权门已关闭
	ErrGateClosed = errors.New("authorization gate closed")
)
