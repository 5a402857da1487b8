// Package service 封装邮件工单的业务流程。
package service

import (
	"context"

	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
	mailsync "mailsync/backend/internal/sync"
)

// TicketService 封装邮件工单流转逻辑。
// 每次状态写入后列表缓存随之失效。
type TicketService struct {
	items storage.MailItemRepository
	cache mailsync.ListingCache // 可选
	log   *zap.Logger
}

// NewTicketService 创建工单业务服务。cache 可以为 nil。
func NewTicketService(items storage.MailItemRepository, cache mailsync.ListingCache, log *zap.Logger) *TicketService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketService{
		items: items,
		cache: cache,
		log:   log,
	}
}

// Get 获取单封邮件的详情。
func (s *TicketService) Get(id string) (*domain.MailItem, error) {
	return s.items.GetMailItem(id)
}

// Discard 软删除邮件。记录保留在库中以维持对账索引，
// 但不再出现在任何列表里。
func (s *TicketService) Discard(ctx context.Context, id string) error {
	if err := s.items.DiscardMailItem(id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.log.Info("mail item discarded", zap.String("item_id", id))
	return nil
}

// Promote 将邮件提升为工单，可同时指派处理人。
func (s *TicketService) Promote(ctx context.Context, id string, assignedTo *string) (*domain.MailItem, error) {
	if err := s.items.PromoteMailItemToTicket(id, assignedTo); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	item, err := s.items.GetMailItem(id)
	if err != nil {
		return nil, err
	}
	s.log.Info("mail item promoted to ticket",
		zap.String("item_id", id),
		zap.Stringp("assigned_to", assignedTo),
	)
	return item, nil
}

// SetStatus 变更工单状态。
func (s *TicketService) SetStatus(ctx context.Context, id string, status int) (*domain.MailItem, error) {
	if !domain.ValidTicketStatus(status) {
		return nil, domain.ErrUnknownTicketStatus
	}
	if err := s.items.SetMailItemStatus(id, status); err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	item, err := s.items.GetMailItem(id)
	if err != nil {
		return nil, err
	}
	s.log.Info("ticket status changed",
		zap.String("item_id", id),
		zap.Int("status", status),
	)
	return item, nil
}

func (s *TicketService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEmailLists(ctx); err != nil {
		s.log.Warn("listing cache invalidation failed", zap.Error(err))
	}
}
