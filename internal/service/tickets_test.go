package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
	mailsync "mailsync/backend/internal/sync"
)

// countingCache 只统计失效调用次数。
type countingCache struct {
	invalidations int
}

func (c *countingCache) GetEmailList(ctx context.Context, key string) (*mailsync.ListResult, error) {
	return nil, mailsync.ErrCacheMiss
}

func (c *countingCache) SetEmailList(ctx context.Context, key string, listing *mailsync.ListResult, ttl time.Duration) error {
	return nil
}

func (c *countingCache) InvalidateEmailLists(ctx context.Context) error {
	c.invalidations++
	return nil
}

func seedItem(t *testing.T, store storage.Store, id string) {
	t.Helper()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveMailItem(&domain.MailItem{
		ID:          id,
		MessageID:   "msg-" + id,
		Subject:     "Ticket candidate",
		FromAddress: "user@example.com",
		ReceivedAt:  now,
		ContentHash: "hash-" + id,
		Active:      true,
		Status:      domain.TicketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestTicketService(t *testing.T) {
	ctx := context.Background()

	t.Run("提升为工单并指派处理人", func(t *testing.T) {
		store := memory.NewStore()
		cache := &countingCache{}
		seedItem(t, store, "i1")
		svc := NewTicketService(store, cache, nil)

		assignee := "soporte1"
		item, err := svc.Promote(ctx, "i1", &assignee)
		require.NoError(t, err)
		assert.True(t, item.Ticket)
		assert.Equal(t, domain.TicketStatusOpen, item.Status)
		require.NotNil(t, item.AssignedTo)
		assert.Equal(t, "soporte1", *item.AssignedTo)
		assert.Equal(t, 1, cache.invalidations)
	})

	t.Run("软删除后列表缓存失效", func(t *testing.T) {
		store := memory.NewStore()
		cache := &countingCache{}
		seedItem(t, store, "i1")
		svc := NewTicketService(store, cache, nil)

		require.NoError(t, svc.Discard(ctx, "i1"))
		assert.Equal(t, 1, cache.invalidations)

		item, err := svc.Get("i1")
		require.NoError(t, err)
		assert.False(t, item.Active)
	})

	t.Run("软删除的邮件不能提升", func(t *testing.T) {
		store := memory.NewStore()
		cache := &countingCache{}
		seedItem(t, store, "i1")
		svc := NewTicketService(store, cache, nil)

		require.NoError(t, svc.Discard(ctx, "i1"))
		_, err := svc.Promote(ctx, "i1", nil)
		assert.ErrorIs(t, err, domain.ErrItemDiscarded)
		// 失败的流转不应再次触发失效
		assert.Equal(t, 1, cache.invalidations)
	})

	t.Run("非法状态直接拒绝不触碰存储", func(t *testing.T) {
		store := memory.NewStore()
		cache := &countingCache{}
		seedItem(t, store, "i1")
		svc := NewTicketService(store, cache, nil)

		_, err := svc.SetStatus(ctx, "i1", 42)
		assert.ErrorIs(t, err, domain.ErrUnknownTicketStatus)
		assert.Zero(t, cache.invalidations)
	})

	t.Run("状态流转成功返回最新记录", func(t *testing.T) {
		store := memory.NewStore()
		seedItem(t, store, "i1")
		svc := NewTicketService(store, nil, nil)

		item, err := svc.SetStatus(ctx, "i1", domain.TicketStatusResolved)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusResolved, item.Status)
	})

	t.Run("未知邮件报未找到", func(t *testing.T) {
		svc := NewTicketService(memory.NewStore(), nil, nil)
		err := svc.Discard(ctx, "ghost")
		assert.ErrorIs(t, err, storage.ErrMailItemNotFound)
	})
}
