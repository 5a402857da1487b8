package sql

import (
	dbsql "database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/backend/internal/storage"
)

// newTestStore 构造一个不触达真实数据库的存储实例。
// sql.Open 是惰性的，不会建立连接；操作闭包从不真正使用句柄。
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := dbsql.Open("postgres", "")
	require.NoError(t, err)

	s := &Store{
		db: db,
		cfg: Config{
			DriverName:   "postgres",
			MaxAttempts:  3,
			RetryBackoff: time.Millisecond,
		},
		log: zap.NewNop(),
	}
	s.openConn = func() (*dbsql.DB, error) {
		return dbsql.Open("postgres", "")
	}
	return s
}

func TestExecute(t *testing.T) {
	t.Run("瞬态失败恰好重试到第3次后返回终态错误", func(t *testing.T) {
		s := newTestStore(t)
		transient := errors.New("connection reset by peer")

		attempts := 0
		err := s.execute("test op", func(db *dbsql.DB) error {
			attempts++
			return transient
		})

		assert.Equal(t, 3, attempts)
		require.Error(t, err)
		assert.ErrorIs(t, err, transient)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("第2次尝试成功则不再重试", func(t *testing.T) {
		s := newTestStore(t)

		attempts := 0
		err := s.execute("test op", func(db *dbsql.DB) error {
			attempts++
			if attempts < 2 {
				return errors.New("broken pipe")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("领域错误立即返回不重试", func(t *testing.T) {
		s := newTestStore(t)

		attempts := 0
		err := s.execute("test op", func(db *dbsql.DB) error {
			attempts++
			return storage.ErrMailItemNotFound
		})

		assert.Equal(t, 1, attempts)
		assert.ErrorIs(t, err, storage.ErrMailItemNotFound)
	})

	t.Run("唯一键冲突立即返回不重试", func(t *testing.T) {
		s := newTestStore(t)

		attempts := 0
		err := s.execute("test op", func(db *dbsql.DB) error {
			attempts++
			return storage.ErrDuplicateMessageID
		})

		assert.Equal(t, 1, attempts)
		assert.ErrorIs(t, err, storage.ErrDuplicateMessageID)
	})

	t.Run("每次重试前重建连接", func(t *testing.T) {
		s := newTestStore(t)

		reconnects := 0
		s.openConn = func() (*dbsql.DB, error) {
			reconnects++
			return dbsql.Open("postgres", "")
		}

		_ = s.execute("test op", func(db *dbsql.DB) error {
			return errors.New("timeout")
		})

		// 3 次尝试之间有 2 次重连
		assert.Equal(t, 2, reconnects)
	})
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(errors.New(`pq: duplicate key value violates unique constraint "idx_mail_items_message_id"`)))
	assert.True(t, isDuplicate(errors.New(`Error 1062: Duplicate entry 'M1' for key 'message_id'`)))
	assert.True(t, isDuplicate(errors.New(`SQLSTATE 23505`)))
	assert.False(t, isDuplicate(errors.New("connection refused")))
	assert.False(t, isDuplicate(nil))
}

func TestRebind(t *testing.T) {
	s := &Store{cfg: Config{DriverName: "postgres"}}
	assert.Equal(t,
		`UPDATE credentials SET active = $1 WHERE id = $2`,
		s.rebind(`UPDATE credentials SET active = ? WHERE id = ?`),
	)

	s = &Store{cfg: Config{DriverName: "mysql"}}
	assert.Equal(t,
		`UPDATE credentials SET active = ? WHERE id = ?`,
		s.rebind(`UPDATE credentials SET active = ? WHERE id = ?`),
	)
}
