package sql

import (
	dbsql "database/sql"
	"errors"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// ========== SyncRun Repository ==========

// CreateSyncRun 追加一条运行日志。
func (s *Store) CreateSyncRun(run *domain.SyncRun) error {
	return s.execute("create sync run", func(db *dbsql.DB) error {
		query := s.rebind(`
			INSERT INTO sync_runs (id, mode, started_at, finished_at, inserted, updated, deleted,
			                       outcome, error_message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		_, err := db.Exec(query,
			run.ID,
			run.Mode,
			run.StartedAt,
			run.FinishedAt,
			run.Inserted,
			run.Updated,
			run.Deleted,
			run.Outcome,
			run.ErrorMessage,
			run.CreatedAt,
		)
		return err
	})
}

// FinalizeSyncRun 写入结束时间、计数与结果。
func (s *Store) FinalizeSyncRun(run *domain.SyncRun) error {
	return s.execute("finalize sync run", func(db *dbsql.DB) error {
		query := s.rebind(`
			UPDATE sync_runs
			SET finished_at = ?, inserted = ?, updated = ?, deleted = ?, outcome = ?, error_message = ?
			WHERE id = ?
		`)
		result, err := db.Exec(query,
			run.FinishedAt,
			run.Inserted,
			run.Updated,
			run.Deleted,
			run.Outcome,
			run.ErrorMessage,
			run.ID,
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrSyncRunNotFound
		}
		return nil
	})
}

const syncRunColumns = `id, mode, started_at, finished_at, inserted, updated, deleted,
       outcome, error_message, created_at`

// scanSyncRun 从单行结果扫描运行日志。
func scanSyncRun(row interface {
	Scan(dest ...interface{}) error
}) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var finishedAt dbsql.NullTime
	var errorMessage dbsql.NullString

	err := row.Scan(
		&run.ID,
		&run.Mode,
		&run.StartedAt,
		&finishedAt,
		&run.Inserted,
		&run.Updated,
		&run.Deleted,
		&run.Outcome,
		&errorMessage,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	return &run, nil
}

// ListSyncRuns 返回最近的运行日志，按开始时间倒序。
func (s *Store) ListSyncRuns(limit int) ([]domain.SyncRun, error) {
	runs := make([]domain.SyncRun, 0, limit)

	err := s.execute("list sync runs", func(db *dbsql.DB) error {
		query := `SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY started_at DESC`
		args := []interface{}{}
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}

		rows, err := db.Query(s.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		runs = runs[:0]
		for rows.Next() {
			run, err := scanSyncRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, *run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// GetLastSuccessfulRun 返回最近一次成功的运行。
func (s *Store) GetLastSuccessfulRun() (*domain.SyncRun, error) {
	var run *domain.SyncRun

	err := s.execute("get last successful run", func(db *dbsql.DB) error {
		query := s.rebind(`
			SELECT ` + syncRunColumns + `
			FROM sync_runs
			WHERE outcome = ?
			ORDER BY started_at DESC
			LIMIT 1
		`)
		found, err := scanSyncRun(db.QueryRow(query, domain.SyncOutcomeOK))
		if errors.Is(err, dbsql.ErrNoRows) {
			return storage.ErrSyncRunNotFound
		}
		if err != nil {
			return err
		}
		run = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
