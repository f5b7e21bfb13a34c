// models/models.go
package models

import (
	"time"
)

// Player 房间内的参与者
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	// Timer 已训练秒数，仅由计时子系统递增
	Timer   int  `json:"timer"`
	Running bool `json:"running"`
	Online  bool `json:"online"`

	// SessionID 当前连接标识，不进快照
	SessionID string `json:"-"`
}

// RoomState 房间状态模型，持久化快照与广播共用同一结构
type RoomState struct {
	ID      string    `json:"id"`
	Players []*Player `json:"players"`
	Crossed []string  `json:"crossed"`
	Order   []string  `json:"order"`
	Current string    `json:"current"`
}

// NewRoomState 创建空房间
func NewRoomState(id string) *RoomState {
	return &RoomState{
		ID:      id,
		Players: make([]*Player, 0),
		Crossed: make([]string, 0),
		Order:   make([]string, 0),
	}
}

// FindPlayer returns the player with the given id, or nil.
func (rs *RoomState) FindPlayer(id string) *Player {
	for _, p := range rs.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// HasCrossed reports whether the letter is already marked off.
func (rs *RoomState) HasCrossed(letter string) bool {
	for _, l := range rs.Crossed {
		if l == letter {
			return true
		}
	}
	return false
}

// Clone 深拷贝，广播与持久化使用副本，避免并发读写
func (rs *RoomState) Clone() *RoomState {
	clone := &RoomState{
		ID:      rs.ID,
		Players: make([]*Player, len(rs.Players)),
		Crossed: append(make([]string, 0, len(rs.Crossed)), rs.Crossed...),
		Order:   append(make([]string, 0, len(rs.Order)), rs.Order...),
		Current: rs.Current,
	}
	for i, p := range rs.Players {
		cp := *p
		clone.Players[i] = &cp
	}
	return clone
}

// RecordPlayer 训练记录中的玩家结算信息
type RecordPlayer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Seconds int    `json:"seconds"`
}

// TrainingRecord 一次已结束训练的归档记录
type TrainingRecord struct {
	RoomID       string         `json:"room_id"`
	Players      []RecordPlayer `json:"players"`
	CrossedCount int            `json:"crossed_count"`
	Duration     int            `json:"duration"` // 秒，取最长的玩家计时
	CreatedAt    time.Time      `json:"created_at"`
}
