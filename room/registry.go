// room/registry.go
package room

import (
	"sync"

	"github.com/wfunc/trainroom/models"
)

// Registry 进程内房间表，唯一的权威状态源
//
// 外层锁只保护映射本身，每个房间有自己的互斥锁，
// 同一房间的变更彼此串行，不同房间互不阻塞。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu    sync.Mutex
	state *models.RoomState
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

func (r *Registry) entryFor(roomID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[roomID]
	if !exists {
		e = &entry{state: models.NewRoomState(roomID)}
		r.entries[roomID] = e
	}
	return e
}

// Mutate 在房间锁内执行 fn，房间不存在则先创建空房间
func (r *Registry) Mutate(roomID string, fn func(*models.RoomState)) {
	e := r.entryFor(roomID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.state)
}

// Visit runs fn under the room lock without creating the room.
// Returns false if the room does not exist.
func (r *Registry) Visit(roomID string, fn func(*models.RoomState)) bool {
	r.mu.RLock()
	e, exists := r.entries[roomID]
	r.mu.RUnlock()
	if !exists {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.state)
	return true
}

// Get 返回房间快照，房间不存在则创建空房间
func (r *Registry) Get(roomID string) *models.RoomState {
	var snap *models.RoomState
	r.Mutate(roomID, func(rs *models.RoomState) {
		snap = rs.Clone()
	})
	return snap
}

// Peek returns a snapshot without creating the room.
func (r *Registry) Peek(roomID string) (*models.RoomState, bool) {
	var snap *models.RoomState
	found := r.Visit(roomID, func(rs *models.RoomState) {
		snap = rs.Clone()
	})
	return snap, found
}

func (r *Registry) Delete(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, roomID)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}
