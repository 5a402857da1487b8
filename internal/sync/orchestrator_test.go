package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/graph"
	"mailsync/backend/internal/storage"
	"mailsync/backend/internal/storage/memory"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) EnsureToken(ctx context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeExtractor struct {
	folderID   string
	folderErr  error
	messages   []graph.Message
	fetchErr   error
	seenTokens []string
}

func (f *fakeExtractor) FetchFolderID(ctx context.Context, token, folderName string) (string, error) {
	f.seenTokens = append(f.seenTokens, token)
	if f.folderErr != nil {
		return "", f.folderErr
	}
	return f.folderID, nil
}

func (f *fakeExtractor) FetchMessages(ctx context.Context, token, folderID string) ([]graph.Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.messages, nil
}

func newTestOrchestrator(store storage.Store, tokens TokenProvider, extractor Extractor) *Orchestrator {
	return NewOrchestrator(OrchestratorOptions{
		Store:        store,
		Tokens:       tokens,
		Extractor:    extractor,
		Reconciler:   NewReconciler(store, nil),
		TargetFolder: "Soporte",
	})
}

func TestPerformSync(t *testing.T) {
	t.Run("空库首轮为full且入库并过滤", func(t *testing.T) {
		store := memory.NewStore()
		extractor := &fakeExtractor{
			folderID: "folder-1",
			messages: []graph.Message{
				makeMessage("m1", "Issue report", "printer down", "user1@example.com"),
				makeMessage("m2", "Access request", "need vpn", "user2@example.com"),
				makeMessage("m3", "[!!Spam] promo", "buy", "ads@example.com"),
			},
		}
		o := newTestOrchestrator(store, &fakeTokens{token: "tok-1"}, extractor)

		result := o.PerformSync(context.Background(), false)
		require.NotNil(t, result)
		assert.False(t, result.Fallback)
		assert.Equal(t, domain.SyncModeFull, result.Mode)
		assert.Equal(t, domain.SyncStats{Inserted: 2}, result.Stats)
		assert.Len(t, result.Emails, 2)
		assert.Equal(t, []string{"tok-1"}, extractor.seenTokens)

		runs, err := store.ListSyncRuns(10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.SyncModeFull, runs[0].Mode)
		assert.Equal(t, domain.SyncOutcomeOK, runs[0].Outcome)
		assert.Equal(t, 2, runs[0].Inserted)
		require.NotNil(t, runs[0].FinishedAt)
	})

	t.Run("非空库后续轮次为incremental", func(t *testing.T) {
		store := memory.NewStore()
		extractor := &fakeExtractor{
			folderID: "folder-1",
			messages: []graph.Message{
				makeMessage("m1", "Issue report", "printer down", "user1@example.com"),
			},
		}
		o := newTestOrchestrator(store, &fakeTokens{token: "tok-1"}, extractor)

		first := o.PerformSync(context.Background(), false)
		assert.Equal(t, domain.SyncModeFull, first.Mode)

		second := o.PerformSync(context.Background(), false)
		assert.Equal(t, domain.SyncModeIncremental, second.Mode)
		assert.Equal(t, domain.SyncStats{Unchanged: 1}, second.Stats)
	})

	t.Run("forceFull强制覆盖模式判定", func(t *testing.T) {
		store := memory.NewStore()
		extractor := &fakeExtractor{
			folderID: "folder-1",
			messages: []graph.Message{
				makeMessage("m1", "Issue report", "printer down", "user1@example.com"),
			},
		}
		o := newTestOrchestrator(store, &fakeTokens{token: "tok-1"}, extractor)

		o.PerformSync(context.Background(), false)
		forced := o.PerformSync(context.Background(), true)
		assert.Equal(t, domain.SyncModeFull, forced.Mode)
		// 模式只是标签，对账结果与 incremental 完全一致
		assert.Equal(t, domain.SyncStats{Unchanged: 1}, forced.Stats)
	})

	t.Run("令牌失败降级且不留运行日志", func(t *testing.T) {
		store := memory.NewStore()
		seedItem(t, store, "m1", "Stale but served")
		o := newTestOrchestrator(store, &fakeTokens{err: errors.New("identity down")}, &fakeExtractor{})

		result := o.PerformSync(context.Background(), false)
		require.NotNil(t, result)
		assert.True(t, result.Fallback)
		assert.Len(t, result.Emails, 1)
		assert.Contains(t, result.Message, "identity down")

		runs, err := store.ListSyncRuns(10)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("抽取失败降级且运行日志收尾为failed", func(t *testing.T) {
		store := memory.NewStore()
		seedItem(t, store, "m1", "Stale but served")
		extractor := &fakeExtractor{fetchErr: errors.New("remote 500"), folderID: "folder-1"}
		o := newTestOrchestrator(store, &fakeTokens{token: "tok-1"}, extractor)

		result := o.PerformSync(context.Background(), false)
		assert.True(t, result.Fallback)
		assert.Len(t, result.Emails, 1)

		runs, err := store.ListSyncRuns(10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.SyncOutcomeFailed, runs[0].Outcome)
		assert.Contains(t, runs[0].ErrorMessage, "remote 500")
		require.NotNil(t, runs[0].FinishedAt, "失败路径同样恰好收尾一次")
	})

	t.Run("文件夹解析失败同样收尾为failed", func(t *testing.T) {
		store := memory.NewStore()
		extractor := &fakeExtractor{folderErr: graph.ErrFolderNotFound}
		o := newTestOrchestrator(store, &fakeTokens{token: "tok-1"}, extractor)

		result := o.PerformSync(context.Background(), false)
		assert.True(t, result.Fallback)

		runs, err := store.ListSyncRuns(10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.SyncOutcomeFailed, runs[0].Outcome)
	})

	t.Run("本地无数据时降级仍返回空列表", func(t *testing.T) {
		store := memory.NewStore()
		o := newTestOrchestrator(store, &fakeTokens{err: errors.New("no token")}, &fakeExtractor{})

		result := o.PerformSync(context.Background(), false)
		assert.True(t, result.Fallback)
		assert.Empty(t, result.Emails)
	})
}

func TestListStoredEmails(t *testing.T) {
	t.Run("带最近成功同步时间", func(t *testing.T) {
		store := memory.NewStore()
		extractor := &fakeExtractor{
			folderID: "folder-1",
			messages: []graph.Message{
				makeMessage("m1", "Hello", "p", "a@example.com"),
			},
		}
		o := newTestOrchestrator(store, &fakeTokens{token: "tok-1"}, extractor)
		o.PerformSync(context.Background(), false)

		listing, err := o.ListStoredEmails(context.Background(), 10, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, listing.Total)
		require.NotNil(t, listing.LastSuccessfulSync)
	})

	t.Run("从未成功同步时时间为空", func(t *testing.T) {
		store := memory.NewStore()
		seedItem(t, store, "m1", "Manual")
		o := newTestOrchestrator(store, &fakeTokens{}, &fakeExtractor{})

		listing, err := o.ListStoredEmails(context.Background(), 10, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, listing.Total)
		assert.Nil(t, listing.LastSuccessfulSync)
	})

	t.Run("状态过滤透传到存储", func(t *testing.T) {
		store := memory.NewStore()
		seedItem(t, store, "m1", "Open one")
		id := seedItem(t, store, "m2", "Resolved one")
		require.NoError(t, store.PromoteMailItemToTicket(id, nil))
		require.NoError(t, store.SetMailItemStatus(id, domain.TicketStatusResolved))

		o := newTestOrchestrator(store, &fakeTokens{}, &fakeExtractor{})
		status := domain.TicketStatusResolved
		listing, err := o.ListStoredEmails(context.Background(), 10, 0, &status)
		require.NoError(t, err)
		require.Len(t, listing.Emails, 1)
		assert.Equal(t, "m2", listing.Emails[0].MessageID)
	})
}

// seedItem 直接向存储写入一条邮件，返回其主键。
func seedItem(t *testing.T, store storage.Store, messageID, subject string) string {
	t.Helper()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	item := &domain.MailItem{
		ID:          "item-" + messageID,
		MessageID:   messageID,
		Subject:     subject,
		FromAddress: "seed@example.com",
		ReceivedAt:  now,
		ContentHash: Fingerprint(subject, "", "seed@example.com"),
		Active:      true,
		Status:      domain.TicketStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.SaveMailItem(item))
	return item.ID
}
