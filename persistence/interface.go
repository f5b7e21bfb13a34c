// persistence/interface.go
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wfunc/trainroom/models"
)

// Store 房间快照存取接口。持久化只是尽力而为的恢复手段，
// 失败不能影响内存状态与广播
type Store interface {
	SaveRoom(ctx context.Context, state *models.RoomState) error
	// LoadRoom returns nil, nil when no snapshot exists. A corrupt
	// snapshot is deleted and also reported as absent.
	LoadRoom(ctx context.Context, roomID string) (*models.RoomState, error)
	DeleteRoom(ctx context.Context, roomID string) error
	Close() error
}

// RecordStore 训练记录归档接口
type RecordStore interface {
	SaveTrainingRecord(ctx context.Context, record *models.TrainingRecord) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

func roomKey(roomID string) string {
	return "room:" + roomID
}

// decodeRoom 解析快照文档，调用方负责对坏文档自愈
func decodeRoom(data []byte) (*models.RoomState, error) {
	var state models.RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode room snapshot: %w", err)
	}
	// JSON 合法但结构残缺的快照同样按坏文档处理
	for _, p := range state.Players {
		if p == nil || p.ID == "" {
			return nil, fmt.Errorf("decode room snapshot: invalid player entry")
		}
	}
	if state.Players == nil {
		state.Players = make([]*models.Player, 0)
	}
	if state.Crossed == nil {
		state.Crossed = make([]string, 0)
	}
	if state.Order == nil {
		state.Order = make([]string, 0)
	}
	return &state, nil
}
