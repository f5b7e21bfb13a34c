// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/trainroom/models"
	"github.com/wfunc/trainroom/network"
	"github.com/wfunc/trainroom/session"
)

var (
	ErrNoSubscribers = errors.New("no subscribers for room")
)

// 广播接口
type Broadcaster interface {
	// RoomState 向房间的每个订阅连接推送完整状态快照
	RoomState(roomID string, state *models.RoomState) error
	// Toast 推送临时提示消息，不属于权威状态
	Toast(roomID string, message string) error
}

// 基于会话订阅关系的广播器
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) RoomState(roomID string, state *models.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.fanOut(roomID, network.MsgTypeRoomState, data)
}

func (b *RoomBroadcaster) Toast(roomID string, message string) error {
	data, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	return b.fanOut(roomID, network.MsgTypeToast, data)
}

func (b *RoomBroadcaster) fanOut(roomID string, msgID uint16, data []byte) error {
	sessions := b.sessionManager.GetByRoomID(roomID)
	if len(sessions) == 0 {
		return ErrNoSubscribers
	}

	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 单个连接发送失败不影响其余成员，断线由读循环处理
			continue
		}
	}
	return nil
}
