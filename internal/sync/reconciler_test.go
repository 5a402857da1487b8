package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/graph"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
)

func makeMessage(id, subject, preview, from string) graph.Message {
	var m graph.Message
	m.ID = id
	m.Subject = subject
	m.BodyPreview = preview
	m.From.EmailAddress.Address = from
	m.From.EmailAddress.Name = "Sender"
	m.ReceivedDateTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Body.ContentType = "html"
	m.Body.Content = "<p>" + preview + "</p>"
	return m
}

func TestFilterCandidates(t *testing.T) {
	t.Run("自动发件人前缀不区分大小写", func(t *testing.T) {
		kept := FilterCandidates([]graph.Message{
			makeMessage("m1", "Hello", "p", "Postmaster@corp.example.com"),
			makeMessage("m2", "Hello", "p", "NOREPLY@corp.example.com"),
			makeMessage("m3", "Hello", "p", "noreply-alerts@corp.example.com"),
			makeMessage("m4", "Hello", "p", "person@corp.example.com"),
		})
		require.Len(t, kept, 1)
		assert.Equal(t, "m4", kept[0].ID)
	})

	t.Run("主题标记区分大小写按原样匹配", func(t *testing.T) {
		kept := FilterCandidates([]graph.Message{
			makeMessage("m1", "[!!Spam] buy now", "p", "a@example.com"),
			makeMessage("m2", "[!!Massmail] announce", "p", "b@example.com"),
			makeMessage("m3", "[!!spam] lowercase tag", "p", "c@example.com"),
			makeMessage("m4", "re: [!!Spam] not a prefix", "p", "d@example.com"),
		})
		require.Len(t, kept, 2)
		assert.Equal(t, "m3", kept[0].ID)
		assert.Equal(t, "m4", kept[1].ID)
	})

	t.Run("空集合原样返回", func(t *testing.T) {
		assert.Empty(t, FilterCandidates(nil))
	})
}

func TestReconcile(t *testing.T) {
	t.Run("新邮件插入并带指纹", func(t *testing.T) {
		store := memory.NewStore()
		r := NewReconciler(store, nil)

		stats, err := r.Reconcile([]graph.Message{
			makeMessage("m1", "First", "preview one", "a@example.com"),
			makeMessage("m2", "Second", "preview two", "b@example.com"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStats{Inserted: 2}, stats)

		item, err := store.GetMailItemByMessageID("m1")
		require.NoError(t, err)
		assert.Equal(t, "First", item.Subject)
		assert.Equal(t, Fingerprint("First", "preview one", "a@example.com"), item.ContentHash)
		assert.Equal(t, domain.TicketStatusOpen, item.Status)
		assert.True(t, item.Active)
		assert.False(t, item.Ticket)
	})

	t.Run("指纹一致的邮件不触发写入", func(t *testing.T) {
		store := memory.NewStore()
		r := NewReconciler(store, nil)
		msg := makeMessage("m1", "Same", "same preview", "a@example.com")

		_, err := r.Reconcile([]graph.Message{msg})
		require.NoError(t, err)
		before, err := store.GetMailItemByMessageID("m1")
		require.NoError(t, err)

		stats, err := r.Reconcile([]graph.Message{msg})
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStats{Unchanged: 1}, stats)

		after, err := store.GetMailItemByMessageID("m1")
		require.NoError(t, err)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	})

	t.Run("指纹变化触发原地更新", func(t *testing.T) {
		store := memory.NewStore()
		r := NewReconciler(store, nil)

		_, err := r.Reconcile([]graph.Message{
			makeMessage("m1", "Old subject", "preview", "a@example.com"),
		})
		require.NoError(t, err)
		original, err := store.GetMailItemByMessageID("m1")
		require.NoError(t, err)

		stats, err := r.Reconcile([]graph.Message{
			makeMessage("m1", "New subject", "preview", "a@example.com"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStats{Updated: 1}, stats)

		updated, err := store.GetMailItemByMessageID("m1")
		require.NoError(t, err)
		assert.Equal(t, original.ID, updated.ID, "更新保持本地主键不变")
		assert.Equal(t, "New subject", updated.Subject)
		assert.Equal(t,
			Fingerprint("New subject", "preview", "a@example.com"),
			updated.ContentHash,
		)
	})

	t.Run("缺失messageID的候选项被跳过", func(t *testing.T) {
		store := memory.NewStore()
		r := NewReconciler(store, nil)

		stats, err := r.Reconcile([]graph.Message{
			makeMessage("", "No id", "p", "a@example.com"),
			makeMessage("m1", "Has id", "p", "a@example.com"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStats{Inserted: 1, Skipped: 1}, stats)
	})

	t.Run("被过滤的候选项不计入任何统计", func(t *testing.T) {
		store := memory.NewStore()
		r := NewReconciler(store, nil)

		stats, err := r.Reconcile([]graph.Message{
			makeMessage("m1", "Normal", "p", "a@example.com"),
			makeMessage("m2", "[!!Spam] junk", "p", "b@example.com"),
			makeMessage("m3", "Auto", "p", "postmaster@example.com"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStats{Inserted: 1}, stats)

		_, _, err = store.ListMailItems(storage.MailItemFilter{})
		require.NoError(t, err)
		_, err = store.GetMailItemByMessageID("m2")
		assert.ErrorIs(t, err, storage.ErrMailItemNotFound)
	})

	t.Run("重复插入按并发写入者处理", func(t *testing.T) {
		store := memory.NewStore()
		r := NewReconciler(store, nil)

		// 索引加载后、插入前另一写入者抢先入库的情形：
		// 直接在空索引下重放同一 messageID 两次
		msg := makeMessage("m1", "Raced", "p", "a@example.com")
		stats, err := r.Reconcile([]graph.Message{msg, msg})
		require.NoError(t, err)
		assert.Equal(t, domain.SyncStats{Inserted: 1, Skipped: 1}, stats)
	})

	t.Run("存储错误中止整轮", func(t *testing.T) {
		failing := &failingItemRepo{}
		r := NewReconciler(failing, nil)

		_, err := r.Reconcile([]graph.Message{
			makeMessage("m1", "Any", "p", "a@example.com"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "content hash index")
	})
}

// failingItemRepo 只用来验证存储失败会中止对账。
type failingItemRepo struct {
	storage.MailItemRepository
}

func (f *failingItemRepo) ListContentHashes() (map[string]string, error) {
	return nil, assert.AnError
}
