package domain

import (
	"errors"
	"time"
)

// 工单状态枚举。状态目录表由管理后台维护，不在本服务范围内，
// 这里只保留同步与工单流转需要的固定编号。
const (
	TicketStatusOpen       = 1 // 待处理
	TicketStatusInProgress = 2 // 处理中
	TicketStatusResolved   = 3 // 已解决
	TicketStatusClosed     = 4 // 已关闭
)

var (
	// ErrUnknownTicketStatus 状态编号不在枚举范围内
	ErrUnknownTicketStatus = errors.New("unknown ticket status")
	// ErrItemDiscarded 已丢弃的邮件不允许再流转
	ErrItemDiscarded = errors.New("mail item is discarded")
)

// MailItem 表示一封从远端邮箱同步到本地的邮件。
// MessageID 是远端分配的不可变外部标识，也是对账的自然键；
// ContentHash 是派生字段，仅由对账流程写入，用于低成本的变更检测。
type MailItem struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID   string    `json:"messageId" gorm:"type:varchar(255);uniqueIndex;not null"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	FromAddress string    `json:"fromAddress" gorm:"type:varchar(255);index"`
	FromName    string    `json:"fromName" gorm:"type:varchar(255)"`
	ReceivedAt  time.Time `json:"receivedAt" gorm:"index"`
	BodyPreview string    `json:"bodyPreview" gorm:"type:text"`
	BodyContent string    `json:"bodyContent,omitempty" gorm:"type:text"`
	ContentHash string    `json:"-" gorm:"type:varchar(64)"`
	// Active=false 表示软删除，默认列表不再展示
	Active bool `json:"active" gorm:"default:true;index"`
	// Ticket=true 表示已提升为工单
	Ticket     bool      `json:"ticket" gorm:"default:false;index"`
	Status     int       `json:"status" gorm:"default:1"`
	AssignedTo *string   `json:"assignedTo,omitempty" gorm:"type:varchar(36)"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ValidTicketStatus 判断状态编号是否合法。
func ValidTicketStatus(status int) bool {
	switch status {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Discard 丢弃邮件（软删除）。丢弃后从默认列表消失，但记录保留。
func (m *MailItem) Discard(now time.Time) {
	m.Active = false
	m.UpdatedAt = now
}

// PromoteToTicket 将邮件提升为工单，状态置为待处理，可同时指派技术员。
func (m *MailItem) PromoteToTicket(assignedTo *string, now time.Time) error {
	if !m.Active {
		return ErrItemDiscarded
	}
	m.Ticket = true
	m.Status = TicketStatusOpen
	if assignedTo != nil {
		m.AssignedTo = assignedTo
	}
	m.UpdatedAt = now
	return nil
}

// SetStatus 变更工单状态。只允许枚举内的编号。
func (m *MailItem) SetStatus(status int, now time.Time) error {
	if !m.Active {
		return ErrItemDiscarded
	}
	if !ValidTicketStatus(status) {
		return ErrUnknownTicketStatus
	}
	m.Status = status
	m.UpdatedAt = now
	return nil
}
