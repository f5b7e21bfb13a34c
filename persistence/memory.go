// persistence/memory.go
package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/wfunc/trainroom/models"
)

// MemoryStore 内存快照存储，未配置 Redis 时的缺省实现，也用于测试
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]byte),
	}
}

func (s *MemoryStore) SaveRoom(ctx context.Context, state *models.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[roomKey(state.ID)] = data
	return nil
}

func (s *MemoryStore) LoadRoom(ctx context.Context, roomID string) (*models.RoomState, error) {
	s.mu.RLock()
	data, exists := s.docs[roomKey(roomID)]
	s.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	state, err := decodeRoom(data)
	if err != nil {
		s.mu.Lock()
		delete(s.docs, roomKey(roomID))
		s.mu.Unlock()
		return nil, nil
	}
	return state, nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, roomKey(roomID))
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Put 直接写入原始文档，测试坏数据自愈路径用
func (s *MemoryStore) Put(roomID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[roomKey(roomID)] = raw
}

// Has reports whether a document exists for the room.
func (s *MemoryStore) Has(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.docs[roomKey(roomID)]
	return exists
}
