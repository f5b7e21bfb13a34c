// services/training_service.go
package services

import (
	"context"
	"time"

	"github.com/wfunc/trainroom/models"
	"github.com/wfunc/trainroom/persistence"
)

// TrainingService 在房间清空时把这次训练落库归档
type TrainingService struct {
	records persistence.RecordStore
}

// NewTrainingService creates the archive service. A nil record store
// disables archiving.
func NewTrainingService(records persistence.RecordStore) *TrainingService {
	return &TrainingService{records: records}
}

// Enabled reports whether an archive backend is configured.
func (s *TrainingService) Enabled() bool {
	return s.records != nil
}

// ArchiveRoom 根据房间终态生成训练记录并保存。
// state 是最后一名玩家离开前的快照
func (s *TrainingService) ArchiveRoom(ctx context.Context, state *models.RoomState) error {
	if s.records == nil {
		return nil
	}

	record := &models.TrainingRecord{
		RoomID:       state.ID,
		Players:      make([]models.RecordPlayer, 0, len(state.Players)),
		CrossedCount: len(state.Crossed),
		CreatedAt:    time.Now(),
	}
	for _, p := range state.Players {
		record.Players = append(record.Players, models.RecordPlayer{
			ID:      p.ID,
			Name:    p.Name,
			Seconds: p.Timer,
		})
		if p.Timer > record.Duration {
			record.Duration = p.Timer
		}
	}

	return s.records.SaveTrainingRecord(ctx, record)
}
