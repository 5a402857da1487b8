package sql

import (
	dbsql "database/sql"
	"errors"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// ========== Credential Repository ==========

// SaveCredential 插入一条新令牌记录。
func (s *Store) SaveCredential(credential *domain.Credential) error {
	return s.execute("save credential", func(db *dbsql.DB) error {
		query := s.rebind(`
			INSERT INTO credentials (id, token, expires_at, active, created_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		_, err := db.Exec(query,
			credential.ID,
			credential.Token,
			credential.ExpiresAt,
			credential.Active,
			credential.CreatedAt,
		)
		return err
	})
}

// GetActiveCredential 返回最新创建的 active 令牌。
func (s *Store) GetActiveCredential() (*domain.Credential, error) {
	var credential domain.Credential

	err := s.execute("get active credential", func(db *dbsql.DB) error {
		query := s.rebind(`
			SELECT id, token, expires_at, active, created_at
			FROM credentials
			WHERE active = ?
			ORDER BY created_at DESC
			LIMIT 1
		`)
		err := db.QueryRow(query, true).Scan(
			&credential.ID,
			&credential.Token,
			&credential.ExpiresAt,
			&credential.Active,
			&credential.CreatedAt,
		)
		if errors.Is(err, dbsql.ErrNoRows) {
			return storage.ErrCredentialNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &credential, nil
}

// DeactivateCredential 将指定令牌置为 inactive。
func (s *Store) DeactivateCredential(id string) error {
	return s.execute("deactivate credential", func(db *dbsql.DB) error {
		query := s.rebind(`UPDATE credentials SET active = ? WHERE id = ?`)
		result, err := db.Exec(query, false, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storage.ErrCredentialNotFound
		}
		return nil
	})
}
