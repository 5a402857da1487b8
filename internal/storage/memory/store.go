package memory

import (
	"sort"
	"sync"
	"time"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// Store 使用内存保存令牌、邮件与同步日志，主要用于开发验证与测试。
type Store struct {
	mu          sync.RWMutex
	credentials map[string]*domain.Credential
	items       map[string]*domain.MailItem // itemID -> item
	byMessageID map[string]string           // messageID -> itemID
	runs        []*domain.SyncRun           // 追加顺序即创建顺序
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		credentials: make(map[string]*domain.Credential),
		items:       make(map[string]*domain.MailItem),
		byMessageID: make(map[string]string),
		runs:        make([]*domain.SyncRun, 0),
	}
}

// ========== Credential Repository ==========

// SaveCredential 保存令牌记录。
func (s *Store) SaveCredential(credential *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now()
	}
	cp := *credential
	s.credentials[credential.ID] = &cp
	return nil
}

// GetActiveCredential 返回最新创建的 active 令牌。
func (s *Store) GetActiveCredential() (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Credential
	for _, c := range s.credentials {
		if !c.Active {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, storage.ErrCredentialNotFound
	}
	cp := *latest
	return &cp, nil
}

// DeactivateCredential 将指定令牌置为 inactive。
func (s *Store) DeactivateCredential(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return storage.ErrCredentialNotFound
	}
	c.Active = false
	return nil
}

// ========== MailItem Repository ==========

// SaveMailItem 保存新邮件记录。
func (s *Store) SaveMailItem(item *domain.MailItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMessageID[item.MessageID]; exists {
		return storage.ErrDuplicateMessageID
	}
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	cp := *item
	s.items[item.ID] = &cp
	s.byMessageID[item.MessageID] = item.ID
	return nil
}

// UpdateMailItemContent 覆写展示字段与内容哈希。
func (s *Store) UpdateMailItemContent(item *domain.MailItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byMessageID[item.MessageID]
	if !ok {
		return storage.ErrMailItemNotFound
	}
	stored := s.items[id]
	stored.Subject = item.Subject
	stored.FromAddress = item.FromAddress
	stored.FromName = item.FromName
	stored.BodyPreview = item.BodyPreview
	stored.BodyContent = item.BodyContent
	stored.ReceivedAt = item.ReceivedAt
	stored.ContentHash = item.ContentHash
	stored.UpdatedAt = time.Now()
	return nil
}

// GetMailItem 按内部 ID 获取邮件。
func (s *Store) GetMailItem(id string) (*domain.MailItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, storage.ErrMailItemNotFound
	}
	cp := *item
	return &cp, nil
}

// GetMailItemByMessageID 按远端 messageID 获取邮件。
func (s *Store) GetMailItemByMessageID(messageID string) (*domain.MailItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMessageID[messageID]
	if !ok {
		return nil, storage.ErrMailItemNotFound
	}
	cp := *s.items[id]
	return &cp, nil
}

// ListMailItems 按接收时间倒序返回 active 邮件。
func (s *Store) ListMailItems(filter storage.MailItemFilter) ([]domain.MailItem, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.MailItem, 0, len(s.items))
	for _, item := range s.items {
		if !item.Active {
			continue
		}
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		matched = append(matched, *item)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []domain.MailItem{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// ListContentHashes 返回 messageID -> contentHash 全量索引。
func (s *Store) ListContentHashes() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make(map[string]string, len(s.items))
	for _, item := range s.items {
		hashes[item.MessageID] = item.ContentHash
	}
	return hashes, nil
}

// DiscardMailItem 软删除邮件。
func (s *Store) DiscardMailItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return storage.ErrMailItemNotFound
	}
	item.Discard(time.Now())
	return nil
}

// PromoteMailItemToTicket 将邮件提升为工单。
func (s *Store) PromoteMailItemToTicket(id string, assignedTo *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return storage.ErrMailItemNotFound
	}
	return item.PromoteToTicket(assignedTo, time.Now())
}

// SetMailItemStatus 变更工单状态。
func (s *Store) SetMailItemStatus(id string, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return storage.ErrMailItemNotFound
	}
	return item.SetStatus(status, time.Now())
}

// ========== SyncRun Repository ==========

// CreateSyncRun 追加一条运行日志。
func (s *Store) CreateSyncRun(run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

// FinalizeSyncRun 收尾一条运行日志。
func (s *Store) FinalizeSyncRun(run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.runs {
		if stored.ID == run.ID {
			stored.FinishedAt = run.FinishedAt
			stored.Inserted = run.Inserted
			stored.Updated = run.Updated
			stored.Deleted = run.Deleted
			stored.Outcome = run.Outcome
			stored.ErrorMessage = run.ErrorMessage
			return nil
		}
	}
	return storage.ErrSyncRunNotFound
}

// ListSyncRuns 返回最近的运行日志，按开始时间倒序。
func (s *Store) ListSyncRuns(limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]domain.SyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetLastSuccessfulRun 返回最近一次成功的运行。
func (s *Store) GetLastSuccessfulRun() (*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SyncRun
	for _, run := range s.runs {
		if run.Outcome != domain.SyncOutcomeOK {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, storage.ErrSyncRunNotFound
	}
	cp := *latest
	return &cp, nil
}

// Health 内存存储始终可用。
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
