// persistence/postgres_records.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/trainroom/models"
)

// PostgresRecordStore 纯 database/sql 的训练记录归档实现
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgresRecordStore 创建 PostgreSQL 数据库连接
func NewPostgresRecordStore(host string, port int, user, password, dbname string) (*PostgresRecordStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initRecordTables(db); err != nil {
		return nil, err
	}

	return &PostgresRecordStore{db: db}, nil
}

// initRecordTables 初始化数据库表结构
func initRecordTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS training_records (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            players JSONB NOT NULL,
            crossed_count INT NOT NULL DEFAULT 0,
            duration INT NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_training_records_room_id ON training_records (room_id)`)
	return err
}

// SaveTrainingRecord 保存训练记录
func (s *PostgresRecordStore) SaveTrainingRecord(ctx context.Context, record *models.TrainingRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO training_records (room_id, players, crossed_count, duration)
        VALUES ($1, $2, $3, $4)`,
		record.RoomID, players, record.CrossedCount, record.Duration)
	return err
}

func (s *PostgresRecordStore) Close() error {
	return s.db.Close()
}
