package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/z-wentao/voicestudio/pkg/models"
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS registry_entries (
    kind       TEXT        NOT NULL,
    id         TEXT        NOT NULL,
    position   BIGSERIAL,
    payload    JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (kind, id)
)`

// OpenPostgres 打开 PostgreSQL 连接并建表
func OpenPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("建表失败: %w", err)
	}

	return db, nil
}

// PostgresStore PostgreSQL 存储
// 所有注册表共用一张表，按 kind 区分；position 记录插入顺序
type PostgresStore[T Entity[T]] struct {
	db   *sql.DB
	kind string
}

// NewPostgresStore 创建存储，db 由调用方负责关闭
func NewPostgresStore[T Entity[T]](db *sql.DB, kind string) *PostgresStore[T] {
	return &PostgresStore[T]{db: db, kind: kind}
}

// Save UPSERT，冲突时保留 position
func (s *PostgresStore[T]) Save(item T) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	query := `
    INSERT INTO registry_entries (kind, id, payload, updated_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (kind, id)
    DO UPDATE SET
    payload = EXCLUDED.payload,
    updated_at = EXCLUDED.updated_at
    `

	if _, err := s.db.Exec(query, s.kind, item.EntityID(), payload, time.Now()); err != nil {
		return fmt.Errorf("保存到数据库失败: %w", err)
	}
	return nil
}

// Get 获取
func (s *PostgresStore[T]) Get(id string) (T, error) {
	var item T
	var payload []byte

	err := s.db.QueryRow(
		`SELECT payload FROM registry_entries WHERE kind = $1 AND id = $2`,
		s.kind, id,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return item, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return item, fmt.Errorf("查询数据库失败: %w", err)
	}

	if err := json.Unmarshal(payload, &item); err != nil {
		return item, fmt.Errorf("反序列化失败: %w", err)
	}
	return item, nil
}

// List 按插入顺序列出
func (s *PostgresStore[T]) List() ([]T, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM registry_entries WHERE kind = $1 ORDER BY position ASC`,
		s.kind,
	)
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("读取记录失败: %w", err)
		}
		var item T
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("反序列化失败: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete 删除
func (s *PostgresStore[T]) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM registry_entries WHERE kind = $1 AND id = $2`, s.kind, id)
	if err != nil {
		return fmt.Errorf("删除失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return nil
}

// Clear 清空该类实体
func (s *PostgresStore[T]) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM registry_entries WHERE kind = $1`, s.kind); err != nil {
		return fmt.Errorf("清空失败: %w", err)
	}
	return nil
}

// Close db 是共享的，这里不关闭
func (s *PostgresStore[T]) Close() error {
	return nil
}
