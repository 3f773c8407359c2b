package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iabetor/pivoice/internal/logger"
)

// DB 是共享的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。dbPath 为空时使用 ./data/pivoice.db。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "pivoice.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	// 多个连接同时写 WAL 数据库时等待而不是立即报 SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS voice_profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'pt',
		file_path TEXT NOT NULL,
		original_file TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		sample_rate INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL -- Unix 秒
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_voice_profiles_created_at ON voice_profiles(created_at)`,
}

// Migrate 创建所有表。可以重复执行。
func (db *DB) Migrate() error {
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
