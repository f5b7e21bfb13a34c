// timer/players.go
package timer

import (
	"sync"
	"time"

	"github.com/wfunc/trainroom/models"
	"github.com/wfunc/trainroom/room"
)

// Scheduler is what the player timer table needs from the task scheduler.
type Scheduler interface {
	Schedule(delay time.Duration, interval time.Duration, callback func()) int64
	Cancel(timerId int64)
}

// Broadcaster is the gateway's broadcast entry point.
// Declared here to keep the timer subsystem free of transport imports.
type Broadcaster interface {
	RoomState(roomID string, state *models.RoomState) error
}

// PlayerTimers 玩家计时表。每个玩家ID最多持有一个周期任务，
// 重复启动先取消旧任务，移除玩家时由网关显式取消
type PlayerTimers struct {
	registry    *room.Registry
	sched       Scheduler
	broadcaster Broadcaster

	mu      sync.Mutex
	handles map[string]int64 // playerID -> task id
}

func NewPlayerTimers(registry *room.Registry, sched Scheduler, broadcaster Broadcaster) *PlayerTimers {
	return &PlayerTimers{
		registry:    registry,
		sched:       sched,
		broadcaster: broadcaster,
		handles:     make(map[string]int64),
	}
}

// Start 启动玩家计时。玩家不存在时不做任何事
func (t *PlayerTimers) Start(roomID, playerID string) bool {
	found := false
	t.registry.Visit(roomID, func(rs *models.RoomState) {
		if p := rs.FindPlayer(playerID); p != nil {
			p.Running = true
			found = true
		}
	})
	if !found {
		return false
	}

	t.mu.Lock()
	if old, exists := t.handles[playerID]; exists {
		t.sched.Cancel(old)
	}
	t.handles[playerID] = t.sched.Schedule(time.Second, time.Second, func() {
		t.tick(roomID, playerID)
	})
	t.mu.Unlock()
	return true
}

// Pause 暂停玩家计时。玩家不存在时不做任何事
func (t *PlayerTimers) Pause(roomID, playerID string) bool {
	found := false
	t.registry.Visit(roomID, func(rs *models.RoomState) {
		if p := rs.FindPlayer(playerID); p != nil {
			p.Running = false
			found = true
		}
	})
	if !found {
		return false
	}

	t.Cancel(playerID)
	return true
}

// Reset 暂停并清零
func (t *PlayerTimers) Reset(roomID, playerID string) bool {
	if !t.Pause(roomID, playerID) {
		return false
	}
	t.registry.Visit(roomID, func(rs *models.RoomState) {
		if p := rs.FindPlayer(playerID); p != nil {
			p.Timer = 0
		}
	})
	return true
}

// Cancel drops the scheduled handle for a player without touching room
// state. Used when a player is removed from a room.
func (t *PlayerTimers) Cancel(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, exists := t.handles[playerID]; exists {
		t.sched.Cancel(id)
		delete(t.handles, playerID)
	}
}

// Running reports whether a live handle exists for the player.
func (t *PlayerTimers) Running(playerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.handles[playerID]
	return exists
}

// tick 每秒执行一次。每次按ID重新查注册表，不持有跨秒的玩家引用；
// 房间或玩家已不在、或已被暂停时，挂起的任务自行退场
func (t *PlayerTimers) tick(roomID, playerID string) {
	var snap *models.RoomState
	t.registry.Visit(roomID, func(rs *models.RoomState) {
		p := rs.FindPlayer(playerID)
		if p == nil || !p.Running {
			return
		}
		p.Timer++
		snap = rs.Clone()
	})

	if snap == nil {
		t.Cancel(playerID)
		return
	}

	// 广播尽力而为，失败不回滚计时
	t.broadcaster.RoomState(roomID, snap)
}
