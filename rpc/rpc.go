package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/trainroom/logger"
	"github.com/wfunc/trainroom/models"
	"github.com/wfunc/trainroom/room"
)

// ErrRoomNotFound is returned for lookups of rooms that do not exist.
var ErrRoomNotFound = errors.New("room not found")

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes read-only room inspection over net/rpc for
// operational tooling. It never mutates the registry.
type RoomService struct {
	registry *room.Registry
}

// NewRoomService creates a new RoomService.
func NewRoomService(registry *room.Registry) *RoomService {
	return &RoomService{registry: registry}
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	State *models.RoomState
}

// GetRoom returns a snapshot of a single room.
func (rs *RoomService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	snap, exists := rs.registry.Peek(args.RoomID)
	if !exists {
		return ErrRoomNotFound
	}
	reply.State = snap
	return nil
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	RoomIDs []string
	Count   int
}

// ListRooms returns the ids of all live rooms.
func (rs *RoomService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	reply.RoomIDs = rs.registry.RoomIDs()
	reply.Count = len(reply.RoomIDs)
	return nil
}
