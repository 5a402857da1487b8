package httptransport

import (
	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 存储错误
	storage.ErrMailItemNotFound:   "邮件不存在",
	storage.ErrSyncRunNotFound:    "同步记录不存在",
	storage.ErrCredentialNotFound: "没有可用的访问令牌",
	storage.ErrDuplicateMessageID: "邮件已存在",

	// 工单错误
	domain.ErrUnknownTicketStatus: "无效的工单状态",
	domain.ErrItemDiscarded:       "邮件已被删除，无法操作",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidStatus  = "工单状态参数无效"
	MsgInvalidLimit   = "分页参数无效"

	// 同步相关
	MsgSyncFallback   = "同步失败，已返回本地数据"
	MsgSyncOK         = "同步完成"
	MsgRunListFailed  = "获取同步记录失败"
	MsgEmailsFailed   = "获取邮件列表失败"
	MsgEmailGetFailed = "获取邮件详情失败"

	// 工单相关
	MsgDiscardFailed = "删除邮件失败"
	MsgPromoteFailed = "创建工单失败"
	MsgStatusFailed  = "变更工单状态失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
