// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormTrainingRecord 训练记录表结构
type GormTrainingRecord struct {
	gorm.Model
	RoomID       string         `gorm:"index;not null"`
	Players      []RecordPlayer `gorm:"type:jsonb;serializer:json;not null"`
	CrossedCount int            `gorm:"default:0"`
	Duration     int            `gorm:"default:0"` // 训练时长(秒)
}
