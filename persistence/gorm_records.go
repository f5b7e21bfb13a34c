// persistence/gorm_records.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/trainroom/models"
)

// GormRecordStore 使用GORM的训练记录归档实现
type GormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore 创建GORM PostgreSQL数据库连接
func NewGormRecordStore(host string, port int, user, password, dbname string) (*GormRecordStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormTrainingRecord{}); err != nil {
		return nil, err
	}

	return &GormRecordStore{db: db}, nil
}

// SaveTrainingRecord 保存训练记录
func (s *GormRecordStore) SaveTrainingRecord(ctx context.Context, record *models.TrainingRecord) error {
	row := models.GormTrainingRecord{
		RoomID:       record.RoomID,
		Players:      record.Players,
		CrossedCount: record.CrossedCount,
		Duration:     record.Duration,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormRecordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
