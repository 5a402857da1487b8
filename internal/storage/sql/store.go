package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// 瞬态失败的重试参数。重试期间当前连接会被无条件释放，
// 下一次尝试使用全新连接。
const (
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
)

// Config SQL 存储配置
type Config struct {
	DriverName      string // "mysql" 或 "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxAttempts     int           // 单个操作的总尝试次数，默认 3
	RetryBackoff    time.Duration // 两次尝试之间的固定等待，默认 1s
	OnRetry         func(op string) // 每次重试前回调，用于上报指标，可以为 nil
}

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
// 所有读写都经过 execute 包装：瞬态失败时重连并重试，
// 领域失败（记录不存在、唯一键冲突）立即返回。
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	cfg Config
	log *zap.Logger

	// openConn 建立新连接，重连时调用。测试中可替换。
	openConn func() (*sql.DB, error)
}

// NewStore 创建 SQL 数据库存储并执行自动迁移。
func NewStore(cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.DriverName != "mysql" && cfg.DriverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", cfg.DriverName)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}

	store := &Store{cfg: cfg, log: log}
	store.openConn = store.open

	db, err := store.open()
	if err != nil {
		return nil, err
	}
	store.db = db

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// open 建立一个新的数据库连接并配置连接池。
func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open(s.cfg.DriverName, s.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）。
func (s *Store) migrate() error {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	if s.cfg.DriverName == "mysql" {
		dialector = mysql.New(mysql.Config{Conn: s.db})
	} else {
		dialector = postgres.New(postgres.Config{Conn: s.db})
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return gormDB.AutoMigrate(
		&domain.Credential{},
		&domain.MailItem{},
		&domain.SyncRun{},
	)
}

// conn 返回当前连接句柄。
func (s *Store) conn() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// reconnect 释放当前连接并建立新连接。旧句柄总是先关闭，
// 新句柄建立失败时下一次尝试会再次走到这里。
func (s *Store) reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
	}
	db, err := s.openConn()
	if err != nil {
		s.log.Error("database reconnect failed", zap.Error(err))
		s.db = nil
		return
	}
	s.db = db
}

// execute 以最多 MaxAttempts 次尝试执行一次存储操作。
// 瞬态失败（连接级错误）重连后等待固定间隔重试；耗尽后返回终态错误。
// 领域失败立即透传给调用方，不重试。
func (s *Store) execute(op string, fn func(db *sql.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		db := s.conn()
		if db == nil {
			lastErr = fmt.Errorf("database connection unavailable")
		} else {
			err := fn(db)
			if err == nil {
				return nil
			}
			if !isTransient(err) {
				return err
			}
			lastErr = err
		}

		s.log.Warn("storage operation failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
			zap.Error(lastErr),
		)

		if attempt < s.cfg.MaxAttempts {
			if s.cfg.OnRetry != nil {
				s.cfg.OnRetry(op)
			}
			s.reconnect()
			time.Sleep(s.cfg.RetryBackoff)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, s.cfg.MaxAttempts, lastErr)
}

// isTransient 区分连接级瞬态失败与领域失败。
// 领域失败在各 CRUD 方法内已映射为 storage 包的哨兵错误。
func isTransient(err error) bool {
	switch {
	case errors.Is(err, storage.ErrCredentialNotFound),
		errors.Is(err, storage.ErrMailItemNotFound),
		errors.Is(err, storage.ErrSyncRunNotFound),
		errors.Is(err, storage.ErrDuplicateMessageID),
		errors.Is(err, domain.ErrUnknownTicketStatus),
		errors.Is(err, domain.ErrItemDiscarded):
		return false
	}
	return true
}

// isDuplicate 识别唯一键冲突（MySQL 1062 / PostgreSQL 23505）。
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "23505")
}

// rebind 将 "?" 占位符转换为当前数据库的风格。
func (s *Store) rebind(query string) string {
	if s.cfg.DriverName != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	db := s.conn()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.Ping()
}
