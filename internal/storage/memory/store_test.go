package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

func newItem(id, messageID string, receivedAt time.Time) *domain.MailItem {
	return &domain.MailItem{
		ID:          id,
		MessageID:   messageID,
		Subject:     "Subject " + messageID,
		FromAddress: "user@example.com",
		ReceivedAt:  receivedAt,
		ContentHash: "hash-" + messageID,
		Active:      true,
		Status:      domain.TicketStatusOpen,
	}
}

func TestCredentialRepository(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("返回最新的active令牌", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveCredential(&domain.Credential{
			ID: "c1", Token: "old", Active: true, CreatedAt: base,
		}))
		require.NoError(t, s.SaveCredential(&domain.Credential{
			ID: "c2", Token: "new", Active: true, CreatedAt: base.Add(time.Hour),
		}))

		got, err := s.GetActiveCredential()
		require.NoError(t, err)
		assert.Equal(t, "c2", got.ID)
	})

	t.Run("无active令牌返回未找到", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveCredential(&domain.Credential{
			ID: "c1", Token: "t", Active: false, CreatedAt: base,
		}))

		_, err := s.GetActiveCredential()
		assert.ErrorIs(t, err, storage.ErrCredentialNotFound)
	})

	t.Run("停用后不再返回", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveCredential(&domain.Credential{
			ID: "c1", Token: "t", Active: true, CreatedAt: base,
		}))
		require.NoError(t, s.DeactivateCredential("c1"))

		_, err := s.GetActiveCredential()
		assert.ErrorIs(t, err, storage.ErrCredentialNotFound)
	})

	t.Run("停用不存在的令牌报未找到", func(t *testing.T) {
		s := NewStore()
		assert.ErrorIs(t, s.DeactivateCredential("ghost"), storage.ErrCredentialNotFound)
	})
}

func TestMailItemRepository(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("重复messageID拒绝插入", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))
		err := s.SaveMailItem(newItem("i2", "m1", base))
		assert.ErrorIs(t, err, storage.ErrDuplicateMessageID)
	})

	t.Run("列表按接收时间倒序", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))
		require.NoError(t, s.SaveMailItem(newItem("i2", "m2", base.Add(2*time.Hour))))
		require.NoError(t, s.SaveMailItem(newItem("i3", "m3", base.Add(time.Hour))))

		items, total, err := s.ListMailItems(storage.MailItemFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 3)
		assert.Equal(t, "m2", items[0].MessageID)
		assert.Equal(t, "m3", items[1].MessageID)
		assert.Equal(t, "m1", items[2].MessageID)
	})

	t.Run("分页与总数独立", func(t *testing.T) {
		s := NewStore()
		for i, mid := range []string{"m1", "m2", "m3"} {
			require.NoError(t, s.SaveMailItem(newItem("i"+mid, mid, base.Add(time.Duration(i)*time.Hour))))
		}

		items, total, err := s.ListMailItems(storage.MailItemFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, items, 1)
		assert.Equal(t, "m2", items[0].MessageID)
	})

	t.Run("软删除后不出现在列表但保留记录", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))
		require.NoError(t, s.DiscardMailItem("i1"))

		items, total, err := s.ListMailItems(storage.MailItemFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)

		item, err := s.GetMailItem("i1")
		require.NoError(t, err)
		assert.False(t, item.Active)
	})

	t.Run("软删除后的邮件仍参与哈希索引", func(t *testing.T) {
		// 对账据此不会把软删除的邮件当成新邮件重新插入
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))
		require.NoError(t, s.DiscardMailItem("i1"))

		hashes, err := s.ListContentHashes()
		require.NoError(t, err)
		assert.Equal(t, "hash-m1", hashes["m1"])
	})

	t.Run("内容更新覆写展示字段", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))

		require.NoError(t, s.UpdateMailItemContent(&domain.MailItem{
			MessageID:   "m1",
			Subject:     "Rewritten",
			FromAddress: "edited@example.com",
			ContentHash: "hash-v2",
			ReceivedAt:  base.Add(time.Minute),
		}))

		item, err := s.GetMailItemByMessageID("m1")
		require.NoError(t, err)
		assert.Equal(t, "i1", item.ID)
		assert.Equal(t, "Rewritten", item.Subject)
		assert.Equal(t, "hash-v2", item.ContentHash)
	})

	t.Run("返回值为副本不共享内部状态", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))

		item, err := s.GetMailItem("i1")
		require.NoError(t, err)
		item.Subject = "mutated by caller"

		again, err := s.GetMailItem("i1")
		require.NoError(t, err)
		assert.Equal(t, "Subject m1", again.Subject)
	})
}

func TestTicketTransitions(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("提升为工单并指派", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))

		assignee := "soporte1"
		require.NoError(t, s.PromoteMailItemToTicket("i1", &assignee))

		item, err := s.GetMailItem("i1")
		require.NoError(t, err)
		assert.True(t, item.Ticket)
		assert.Equal(t, domain.TicketStatusOpen, item.Status)
		require.NotNil(t, item.AssignedTo)
		assert.Equal(t, "soporte1", *item.AssignedTo)
	})

	t.Run("软删除的邮件不能成为工单", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))
		require.NoError(t, s.DiscardMailItem("i1"))

		err := s.PromoteMailItemToTicket("i1", nil)
		assert.ErrorIs(t, err, domain.ErrItemDiscarded)
	})

	t.Run("非法状态被拒绝", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))

		err := s.SetMailItemStatus("i1", 99)
		assert.ErrorIs(t, err, domain.ErrUnknownTicketStatus)
	})

	t.Run("状态过滤只返回匹配项", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.SaveMailItem(newItem("i1", "m1", base)))
		require.NoError(t, s.SaveMailItem(newItem("i2", "m2", base.Add(time.Hour))))
		require.NoError(t, s.SetMailItemStatus("i2", domain.TicketStatusInProgress))

		status := domain.TicketStatusInProgress
		items, total, err := s.ListMailItems(storage.MailItemFilter{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, "m2", items[0].MessageID)
	})
}

func TestSyncRunRepository(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("收尾更新计数与结果", func(t *testing.T) {
		s := NewStore()
		run := &domain.SyncRun{ID: "r1", Mode: domain.SyncModeFull, StartedAt: base}
		require.NoError(t, s.CreateSyncRun(run))

		finished := base.Add(time.Minute)
		run.FinishedAt = &finished
		run.Inserted = 5
		run.Outcome = domain.SyncOutcomeOK
		require.NoError(t, s.FinalizeSyncRun(run))

		runs, err := s.ListSyncRuns(10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 5, runs[0].Inserted)
		assert.Equal(t, domain.SyncOutcomeOK, runs[0].Outcome)
	})

	t.Run("收尾未知运行报未找到", func(t *testing.T) {
		s := NewStore()
		err := s.FinalizeSyncRun(&domain.SyncRun{ID: "ghost"})
		assert.ErrorIs(t, err, storage.ErrSyncRunNotFound)
	})

	t.Run("最近成功运行跳过失败记录", func(t *testing.T) {
		s := NewStore()
		ok := &domain.SyncRun{ID: "r1", StartedAt: base, Outcome: domain.SyncOutcomeOK}
		failed := &domain.SyncRun{ID: "r2", StartedAt: base.Add(time.Hour), Outcome: domain.SyncOutcomeFailed}
		require.NoError(t, s.CreateSyncRun(ok))
		require.NoError(t, s.CreateSyncRun(failed))

		latest, err := s.GetLastSuccessfulRun()
		require.NoError(t, err)
		assert.Equal(t, "r1", latest.ID)
	})

	t.Run("无成功运行报未找到", func(t *testing.T) {
		s := NewStore()
		_, err := s.GetLastSuccessfulRun()
		assert.ErrorIs(t, err, storage.ErrSyncRunNotFound)
	})
}
