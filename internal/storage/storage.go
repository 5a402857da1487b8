package storage

import (
	"errors"

	"mailsync/backend/internal/domain"
)

var (
	// ErrCredentialNotFound 没有可用的 active 令牌记录
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrMailItemNotFound 邮件记录不存在
	ErrMailItemNotFound = errors.New("mail item not found")
	// ErrSyncRunNotFound 同步运行日志不存在
	ErrSyncRunNotFound = errors.New("sync run not found")
	// ErrDuplicateMessageID messageID 唯一约束冲突
	ErrDuplicateMessageID = errors.New("duplicate message id")
)

// CredentialRepository 定义令牌数据存取操作。
type CredentialRepository interface {
	SaveCredential(credential *domain.Credential) error
	// GetActiveCredential 返回最新创建的 active 令牌，
	// 不存在时返回 ErrCredentialNotFound。
	GetActiveCredential() (*domain.Credential, error)
	DeactivateCredential(id string) error
}

// MailItemFilter 邮件列表查询条件。
type MailItemFilter struct {
	Limit  int
	Offset int
	Status *int // 工单状态过滤，nil 表示不过滤
}

// MailItemRepository 定义邮件数据存取操作。
// ContentHash 只允许对账流程写入，其他调用方不得修改。
type MailItemRepository interface {
	SaveMailItem(item *domain.MailItem) error
	// UpdateMailItemContent 覆写展示字段与 ContentHash，推进 UpdatedAt。
	UpdateMailItemContent(item *domain.MailItem) error
	GetMailItem(id string) (*domain.MailItem, error)
	GetMailItemByMessageID(messageID string) (*domain.MailItem, error)
	// ListMailItems 按 ReceivedAt 倒序返回 active 邮件与总数，
	// 已丢弃（active=false）的记录永远不出现在结果中。
	ListMailItems(filter MailItemFilter) ([]domain.MailItem, int, error)
	// ListContentHashes 一次性加载 messageID -> contentHash 索引，
	// 对账期间用于 O(1) 的存在性与变更判断。
	ListContentHashes() (map[string]string, error)
	DiscardMailItem(id string) error
	PromoteMailItemToTicket(id string, assignedTo *string) error
	SetMailItemStatus(id string, status int) error
}

// SyncRunRepository 定义同步运行日志的存取操作，日志只追加。
type SyncRunRepository interface {
	CreateSyncRun(run *domain.SyncRun) error
	// FinalizeSyncRun 写入结束时间、计数与结果，每次运行只调用一次。
	FinalizeSyncRun(run *domain.SyncRun) error
	ListSyncRuns(limit int) ([]domain.SyncRun, error)
	// GetLastSuccessfulRun 返回最近一次 outcome=ok 的运行，
	// 不存在时返回 ErrSyncRunNotFound。
	GetLastSuccessfulRun() (*domain.SyncRun, error)
}

// Store 聚合所有存储接口。
type Store interface {
	CredentialRepository
	MailItemRepository
	SyncRunRepository

	Health() error
	Close() error
}
