package sql

import (
	dbsql "database/sql"
	"errors"
	"time"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// ========== MailItem Repository ==========

// SaveMailItem 插入一条新邮件记录。messageID 冲突映射为领域错误，不重试。
func (s *Store) SaveMailItem(item *domain.MailItem) error {
	return s.execute("save mail item", func(db *dbsql.DB) error {
		query := s.rebind(`
			INSERT INTO mail_items (id, message_id, subject, from_address, from_name, received_at,
			                        body_preview, body_content, content_hash, active, ticket, status,
			                        assigned_to, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		_, err := db.Exec(query,
			item.ID,
			item.MessageID,
			item.Subject,
			item.FromAddress,
			item.FromName,
			item.ReceivedAt,
			item.BodyPreview,
			item.BodyContent,
			item.ContentHash,
			item.Active,
			item.Ticket,
			item.Status,
			item.AssignedTo,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if isDuplicate(err) {
			return storage.ErrDuplicateMessageID
		}
		return err
	})
}

// UpdateMailItemContent 按 messageID 覆写展示字段与内容哈希，推进 updated_at。
func (s *Store) UpdateMailItemContent(item *domain.MailItem) error {
	return s.execute("update mail item content", func(db *dbsql.DB) error {
		query := s.rebind(`
			UPDATE mail_items
			SET subject = ?, from_address = ?, from_name = ?, received_at = ?,
			    body_preview = ?, body_content = ?, content_hash = ?, updated_at = ?
			WHERE message_id = ?
		`)
		result, err := db.Exec(query,
			item.Subject,
			item.FromAddress,
			item.FromName,
			item.ReceivedAt,
			item.BodyPreview,
			item.BodyContent,
			item.ContentHash,
			time.Now(),
			item.MessageID,
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrMailItemNotFound
		}
		return nil
	})
}

const mailItemColumns = `id, message_id, subject, from_address, from_name, received_at,
       body_preview, body_content, content_hash, active, ticket, status,
       assigned_to, created_at, updated_at`

// scanMailItem 从单行结果扫描邮件记录。
func scanMailItem(row interface {
	Scan(dest ...interface{}) error
}) (*domain.MailItem, error) {
	var item domain.MailItem
	var assignedTo dbsql.NullString

	err := row.Scan(
		&item.ID,
		&item.MessageID,
		&item.Subject,
		&item.FromAddress,
		&item.FromName,
		&item.ReceivedAt,
		&item.BodyPreview,
		&item.BodyContent,
		&item.ContentHash,
		&item.Active,
		&item.Ticket,
		&item.Status,
		&assignedTo,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assignedTo.Valid {
		item.AssignedTo = &assignedTo.String
	}
	return &item, nil
}

// GetMailItem 按内部 ID 获取邮件。
func (s *Store) GetMailItem(id string) (*domain.MailItem, error) {
	var item *domain.MailItem

	err := s.execute("get mail item", func(db *dbsql.DB) error {
		query := s.rebind(`SELECT ` + mailItemColumns + ` FROM mail_items WHERE id = ?`)
		found, err := scanMailItem(db.QueryRow(query, id))
		if errors.Is(err, dbsql.ErrNoRows) {
			return storage.ErrMailItemNotFound
		}
		if err != nil {
			return err
		}
		item = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetMailItemByMessageID 按远端 messageID 获取邮件。
func (s *Store) GetMailItemByMessageID(messageID string) (*domain.MailItem, error) {
	var item *domain.MailItem

	err := s.execute("get mail item by message id", func(db *dbsql.DB) error {
		query := s.rebind(`SELECT ` + mailItemColumns + ` FROM mail_items WHERE message_id = ?`)
		found, err := scanMailItem(db.QueryRow(query, messageID))
		if errors.Is(err, dbsql.ErrNoRows) {
			return storage.ErrMailItemNotFound
		}
		if err != nil {
			return err
		}
		item = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListMailItems 按接收时间倒序分页返回 active 邮件与总数。
// 软删除的记录在查询层排除，调用方不需要重复过滤。
func (s *Store) ListMailItems(filter storage.MailItemFilter) ([]domain.MailItem, int, error) {
	items := make([]domain.MailItem, 0, filter.Limit)
	total := 0

	err := s.execute("list mail items", func(db *dbsql.DB) error {
		where := `WHERE active = ?`
		args := []interface{}{true}
		if filter.Status != nil {
			where += ` AND status = ?`
			args = append(args, *filter.Status)
		}

		countQuery := s.rebind(`SELECT COUNT(*) FROM mail_items ` + where)
		if err := db.QueryRow(countQuery, args...).Scan(&total); err != nil {
			return err
		}

		listQuery := `SELECT ` + mailItemColumns + ` FROM mail_items ` + where +
			` ORDER BY received_at DESC`
		if filter.Limit > 0 {
			listQuery += ` LIMIT ?`
			args = append(args, filter.Limit)
		}
		if filter.Offset > 0 {
			listQuery += ` OFFSET ?`
			args = append(args, filter.Offset)
		}

		rows, err := db.Query(s.rebind(listQuery), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			item, err := scanMailItem(rows)
			if err != nil {
				return err
			}
			items = append(items, *item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListContentHashes 一次性加载 messageID -> contentHash 全量索引。
func (s *Store) ListContentHashes() (map[string]string, error) {
	hashes := make(map[string]string)

	err := s.execute("list content hashes", func(db *dbsql.DB) error {
		rows, err := db.Query(`SELECT message_id, content_hash FROM mail_items`)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(hashes)
		for rows.Next() {
			var messageID, contentHash string
			if err := rows.Scan(&messageID, &contentHash); err != nil {
				return err
			}
			hashes[messageID] = contentHash
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// DiscardMailItem 软删除邮件。
func (s *Store) DiscardMailItem(id string) error {
	return s.execute("discard mail item", func(db *dbsql.DB) error {
		query := s.rebind(`UPDATE mail_items SET active = ?, updated_at = ? WHERE id = ?`)
		result, err := db.Exec(query, false, time.Now(), id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrMailItemNotFound
		}
		return nil
	})
}

// PromoteMailItemToTicket 将邮件提升为工单。读取与更新放在同一事务中，
// 失败时回滚后再交给重试逻辑。
func (s *Store) PromoteMailItemToTicket(id string, assignedTo *string) error {
	return s.execute("promote mail item to ticket", func(db *dbsql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		query := s.rebind(`SELECT ` + mailItemColumns + ` FROM mail_items WHERE id = ?`)
		item, err := scanMailItem(tx.QueryRow(query, id))
		if errors.Is(err, dbsql.ErrNoRows) {
			return storage.ErrMailItemNotFound
		}
		if err != nil {
			return err
		}

		if err := item.PromoteToTicket(assignedTo, time.Now()); err != nil {
			return err
		}

		update := s.rebind(`
			UPDATE mail_items SET ticket = ?, status = ?, assigned_to = ?, updated_at = ?
			WHERE id = ?
		`)
		if _, err := tx.Exec(update, item.Ticket, item.Status, item.AssignedTo, item.UpdatedAt, id); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// SetMailItemStatus 变更工单状态。
func (s *Store) SetMailItemStatus(id string, status int) error {
	return s.execute("set mail item status", func(db *dbsql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		query := s.rebind(`SELECT ` + mailItemColumns + ` FROM mail_items WHERE id = ?`)
		item, err := scanMailItem(tx.QueryRow(query, id))
		if errors.Is(err, dbsql.ErrNoRows) {
			return storage.ErrMailItemNotFound
		}
		if err != nil {
			return err
		}

		if err := item.SetStatus(status, time.Now()); err != nil {
			return err
		}

		update := s.rebind(`UPDATE mail_items SET status = ?, updated_at = ? WHERE id = ?`)
		if _, err := tx.Exec(update, item.Status, item.UpdatedAt, id); err != nil {
			return err
		}
		return tx.Commit()
	})
}
