// server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wfunc/trainroom/logger"
	"github.com/wfunc/trainroom/models"
	"github.com/wfunc/trainroom/network"
	"github.com/wfunc/trainroom/room"
	"github.com/wfunc/trainroom/session"
)

// 指令负载。客户端不可信，字段缺失或引用不存在的玩家一律静默丢弃

type joinPayload struct {
	RoomID string        `json:"room_id"`
	Player models.Player `json:"player"`
}

type playerPayload struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
}

type letterPayload struct {
	RoomID string `json:"room_id"`
	Letter string `json:"letter"`
}

type passPayload struct {
	RoomID string `json:"room_id"`
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

type orderPayload struct {
	RoomID string   `json:"room_id"`
	Order  []string `json:"order"`
}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

func (s *RoomServer) handleJoin(sess *session.Session, packet *network.Packet) {
	var req joinPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	if req.RoomID == "" || req.Player.ID == "" {
		return
	}

	// 入房前先尝试从持久层恢复快照
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	snap, err := s.store.LoadRoom(ctx, req.RoomID)
	cancel()
	if err != nil {
		logger.Log.Warnf("Load room %s failed: %v", req.RoomID, err)
	}

	s.registry.Mutate(req.RoomID, func(rs *models.RoomState) {
		if snap != nil {
			room.Restore(rs, snap)
		}
		room.Join(rs, req.Player, sess.GetID())
	})

	sess.UserID = req.Player.ID
	sess.JoinRoom(req.RoomID)
	s.monitor.SetActiveRooms(s.registry.Count())

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleLeave(sess *session.Session, packet *network.Packet) {
	var req playerPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	if req.RoomID == "" || req.PlayerID == "" {
		return
	}

	s.removePlayer(req.RoomID, req.PlayerID)
	// 只退订指令所指的房间，过期指令不能影响当前订阅
	if sess.RoomID() == req.RoomID {
		sess.LeaveRoom()
	}
}

func (s *RoomServer) handleKick(sess *session.Session, packet *network.Packet) {
	var req playerPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	if req.RoomID == "" || req.PlayerID == "" {
		return
	}

	s.removePlayer(req.RoomID, req.PlayerID)
}

// removePlayer 移除成员并处理房间生命周期：最后一人离开时
// 归档训练、删除注册表与持久化记录，但仍广播一次空状态
func (s *RoomServer) removePlayer(roomID, playerID string) {
	var final *models.RoomState // pre-removal snapshot, set when the room empties
	var post *models.RoomState
	exists := s.registry.Visit(roomID, func(rs *models.RoomState) {
		if rs.FindPlayer(playerID) == nil {
			return
		}
		if len(rs.Players) == 1 {
			final = rs.Clone()
		}
		room.Remove(rs, playerID)
		post = rs.Clone()
	})
	if !exists || post == nil {
		return
	}

	// 移除即取消计时句柄，不留下孤儿任务
	s.timers.Cancel(playerID)

	if len(post.Players) == 0 {
		s.registry.Delete(roomID)
		s.deleteAsync(roomID)
		if final != nil {
			s.archiveAsync(final)
		}
	} else {
		s.persistAsync(roomID)
	}
	s.monitor.SetActiveRooms(s.registry.Count())

	s.broadcaster.RoomState(roomID, post)
}

func (s *RoomServer) handleCross(sess *session.Session, packet *network.Packet) {
	var req letterPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	crossed := false
	var prev, next string
	s.registry.Visit(req.RoomID, func(rs *models.RoomState) {
		if !room.Cross(rs, req.Letter) {
			return
		}
		crossed = true
		// 划掉字母后回合自动顺延
		prev = rs.Current
		next = room.NextAfter(rs, prev)
		rs.Current = next
	})
	if !crossed {
		return // 重复划掉不广播
	}

	if prev != "" {
		s.timers.Pause(req.RoomID, prev)
	}
	if next != "" {
		s.timers.Start(req.RoomID, next)
	}

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleUncross(sess *session.Session, packet *network.Packet) {
	var req letterPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	changed := false
	s.registry.Visit(req.RoomID, func(rs *models.RoomState) {
		changed = room.Uncross(rs, req.Letter)
	})
	if !changed {
		return
	}

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handlePass(sess *session.Session, packet *network.Packet) {
	var req passPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	passed := false
	s.registry.Visit(req.RoomID, func(rs *models.RoomState) {
		passed = room.Pass(rs, req.FromID, req.ToID)
	})
	if !passed {
		return
	}

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleReorder(sess *session.Session, packet *network.Packet) {
	var req orderPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	changed := false
	s.registry.Visit(req.RoomID, func(rs *models.RoomState) {
		changed = room.Reorder(rs, req.Order)
	})
	if !changed {
		return
	}

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleStartTraining(sess *session.Session, packet *network.Packet) {
	var req roomPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	var currentID, name string
	s.registry.Visit(req.RoomID, func(rs *models.RoomState) {
		currentID = rs.Current
		if p := rs.FindPlayer(currentID); p != nil {
			name = p.Name
		}
	})
	if currentID == "" {
		return
	}
	if !s.timers.Start(req.RoomID, currentID) {
		return
	}

	s.persistAsync(req.RoomID)
	if name != "" {
		s.broadcaster.Toast(req.RoomID, name+" начал тренировку")
	}
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleTimerStart(sess *session.Session, packet *network.Packet) {
	var req playerPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	if !s.timers.Start(req.RoomID, req.PlayerID) {
		return
	}

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleTimerPause(sess *session.Session, packet *network.Packet) {
	var req playerPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	if !s.timers.Pause(req.RoomID, req.PlayerID) {
		return
	}

	var name string
	s.registry.Visit(req.RoomID, func(rs *models.RoomState) {
		if p := rs.FindPlayer(req.PlayerID); p != nil {
			name = p.Name
		}
	})

	s.persistAsync(req.RoomID)
	if name != "" {
		s.broadcaster.Toast(req.RoomID, name+" поставил таймер на паузу")
	}
	s.broadcastRoom(req.RoomID)
}

func (s *RoomServer) handleTimerReset(sess *session.Session, packet *network.Packet) {
	var req playerPayload
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}

	if !s.timers.Reset(req.RoomID, req.PlayerID) {
		return
	}

	s.persistAsync(req.RoomID)
	s.broadcastRoom(req.RoomID)
}

// markOffline 断线清理：把持有该连接的玩家全部标记离线并广播，
// 计时器有意不动，离开的玩家计时继续累积
func (s *RoomServer) markOffline(sessionID string) {
	for _, roomID := range s.registry.RoomIDs() {
		var snap *models.RoomState
		s.registry.Visit(roomID, func(rs *models.RoomState) {
			changed := false
			for _, p := range rs.Players {
				if p.SessionID == sessionID && p.Online {
					p.Online = false
					changed = true
				}
			}
			if changed {
				snap = rs.Clone()
			}
		})
		if snap != nil {
			s.persistAsync(roomID)
			s.broadcaster.RoomState(roomID, snap)
		}
	}
}

// broadcastRoom 网关的统一广播出口，每条指令至多触发一次
func (s *RoomServer) broadcastRoom(roomID string) {
	snap, exists := s.registry.Peek(roomID)
	if !exists {
		return
	}
	s.broadcaster.RoomState(roomID, snap)
}

// persistAsync 同步取快照，异步落盘。广播从不等待持久化
func (s *RoomServer) persistAsync(roomID string) {
	snap, exists := s.registry.Peek(roomID)
	if !exists {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SaveRoom(ctx, snap); err != nil {
			logger.Log.Warnf("Persist room %s failed: %v", roomID, err)
		}
	}()
}

func (s *RoomServer) deleteAsync(roomID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.DeleteRoom(ctx, roomID); err != nil {
			logger.Log.Warnf("Delete room %s failed: %v", roomID, err)
		}
	}()
}

func (s *RoomServer) archiveAsync(final *models.RoomState) {
	if !s.training.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.training.ArchiveRoom(ctx, final); err != nil {
			logger.Log.Warnf("Archive room %s failed: %v", final.ID, err)
		}
	}()
}
