package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/graph"
	"mailsync/backend/internal/storage"
)

// 过滤前缀。发件人前缀不区分大小写；主题前缀为远端网关
// 打上的原样标记，区分大小写。
var (
	automatedSenderPrefixes = []string{"postmaster", "noreply"}
	bulkSubjectPrefixes     = []string{"[!!Spam]", "[!!Massmail]"}
)

// itemOutcome 单条候选项的对账结果。
type itemOutcome int

const (
	outcomeInserted itemOutcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
)

// Reconciler 将远端候选邮件与本地索引对账：
// 先过滤垃圾/自动发件，再按 messageID 分类为新增、变更或未变更。
type Reconciler struct {
	items storage.MailItemRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewReconciler 创建对账器。
func NewReconciler(items storage.MailItemRepository, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		items: items,
		log:   log,
		now:   time.Now,
	}
}

// FilterCandidates 去除自动发件人与批量/垃圾标记的候选项。
// 被过滤的邮件不参与任何哈希或比较，永远不会进入存储。
func FilterCandidates(candidates []graph.Message) []graph.Message {
	kept := make([]graph.Message, 0, len(candidates))
	for _, candidate := range candidates {
		if isFiltered(candidate) {
			continue
		}
		kept = append(kept, candidate)
	}
	return kept
}

func isFiltered(candidate graph.Message) bool {
	address := strings.ToLower(candidate.From.EmailAddress.Address)
	for _, prefix := range automatedSenderPrefixes {
		if strings.HasPrefix(address, prefix) {
			return true
		}
	}
	for _, prefix := range bulkSubjectPrefixes {
		if strings.HasPrefix(candidate.Subject, prefix) {
			return true
		}
	}
	return false
}

// Reconcile 对候选集合执行一轮完整对账并应用增改。
// 模式不影响算法：full 与 incremental 都走同一条路径。
// 单条候选项的畸形数据只会跳过该条；存储错误中止整轮。
func (r *Reconciler) Reconcile(candidates []graph.Message) (domain.SyncStats, error) {
	var stats domain.SyncStats

	kept := FilterCandidates(candidates)
	if dropped := len(candidates) - len(kept); dropped > 0 {
		r.log.Info("candidates filtered",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(kept)),
		)
	}

	// 每轮只加载一次索引，逐条做 O(1) 判定
	hashes, err := r.items.ListContentHashes()
	if err != nil {
		return stats, fmt.Errorf("load content hash index: %w", err)
	}

	for _, candidate := range kept {
		outcome, err := r.reconcileOne(candidate, hashes)
		if err != nil {
			return stats, err
		}
		switch outcome {
		case outcomeInserted:
			stats.Inserted++
		case outcomeUpdated:
			stats.Updated++
		case outcomeUnchanged:
			stats.Unchanged++
		case outcomeSkipped:
			stats.Skipped++
		}
	}

	return stats, nil
}

// reconcileOne 对单条候选项分类并应用。返回的 error 只用于
// 存储级失败；数据问题一律折算为 outcomeSkipped。
func (r *Reconciler) reconcileOne(candidate graph.Message, hashes map[string]string) (itemOutcome, error) {
	if candidate.ID == "" {
		r.log.Warn("candidate without message id skipped",
			zap.String("subject", candidate.Subject),
		)
		return outcomeSkipped, nil
	}

	fromAddress := candidate.From.EmailAddress.Address
	fingerprint := Fingerprint(candidate.Subject, candidate.BodyPreview, fromAddress)

	storedHash, exists := hashes[candidate.ID]
	if !exists {
		now := r.now()
		item := &domain.MailItem{
			ID:          uuid.NewString(),
			MessageID:   candidate.ID,
			Subject:     candidate.Subject,
			FromAddress: fromAddress,
			FromName:    candidate.From.EmailAddress.Name,
			ReceivedAt:  candidate.ReceivedDateTime,
			BodyPreview: candidate.BodyPreview,
			BodyContent: candidate.Body.Content,
			ContentHash: fingerprint,
			Active:      true,
			Status:      domain.TicketStatusOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.items.SaveMailItem(item); err != nil {
			if errors.Is(err, storage.ErrDuplicateMessageID) {
				// 并发写入者抢先插入了同一封邮件，按后写覆盖语义放弃本条
				r.log.Warn("concurrent insert detected, skipping",
					zap.String("message_id", candidate.ID),
				)
				return outcomeSkipped, nil
			}
			return outcomeSkipped, fmt.Errorf("insert mail item %s: %w", candidate.ID, err)
		}
		return outcomeInserted, nil
	}

	if storedHash == fingerprint {
		return outcomeUnchanged, nil
	}

	item := &domain.MailItem{
		MessageID:   candidate.ID,
		Subject:     candidate.Subject,
		FromAddress: fromAddress,
		FromName:    candidate.From.EmailAddress.Name,
		ReceivedAt:  candidate.ReceivedDateTime,
		BodyPreview: candidate.BodyPreview,
		BodyContent: candidate.Body.Content,
		ContentHash: fingerprint,
	}
	if err := r.items.UpdateMailItemContent(item); err != nil {
		if errors.Is(err, storage.ErrMailItemNotFound) {
			// 索引与存储在本轮间隙中产生了偏差，跳过该条
			r.log.Warn("indexed item vanished before update, skipping",
				zap.String("message_id", candidate.ID),
			)
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("update mail item %s: %w", candidate.ID, err)
	}
	return outcomeUpdated, nil
}
