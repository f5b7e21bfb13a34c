// persistence/redis.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/trainroom/logger"
	"github.com/wfunc/trainroom/models"
)

// RedisStore 基于 Redis 的快照存储，一个房间一个 key: room:<id>
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) SaveRoom(ctx context.Context, state *models.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, roomKey(state.ID), data, 0).Err()
}

func (s *RedisStore) LoadRoom(ctx context.Context, roomID string) (*models.RoomState, error) {
	data, err := s.rdb.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state, err := decodeRoom(data)
	if err != nil {
		// 坏文档删掉当作没有，绝不因此拖垮房间
		logger.Log.Warnf("Corrupt snapshot for room %s, discarding: %v", roomID, err)
		s.rdb.Del(ctx, roomKey(roomID))
		return nil, nil
	}
	return state, nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, roomKey(roomID)).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
