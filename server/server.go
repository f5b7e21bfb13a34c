package server

import (
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/trainroom/broadcast"
	"github.com/wfunc/trainroom/logger"
	"github.com/wfunc/trainroom/monitor"
	"github.com/wfunc/trainroom/network"
	"github.com/wfunc/trainroom/persistence"
	"github.com/wfunc/trainroom/room"
	trainroomrpc "github.com/wfunc/trainroom/rpc"
	"github.com/wfunc/trainroom/services"
	"github.com/wfunc/trainroom/session"
	"github.com/wfunc/trainroom/timer"
)

// RoomServer 会话网关。入站指令在这里分发给注册表、回合控制与
// 计时子系统，随后异步落盘并向房间广播一次新状态
type RoomServer struct {
	addr           string
	upgrader       websocket.Upgrader
	registry       *room.Registry
	sessionManager *session.Manager
	scheduler      *timer.Manager
	timers         *timer.PlayerTimers
	broadcaster    broadcast.Broadcaster
	store          persistence.Store
	training       *services.TrainingService
	monitor        *monitor.Monitor
	rpcServer      *trainroomrpc.Server
	shutdownChan   chan struct{}
}

func NewRoomServer(addr, rpcAddr string, store persistence.Store, records persistence.RecordStore, mon *monitor.Monitor) *RoomServer {
	s := &RoomServer{
		addr:           addr,
		registry:       room.NewRegistry(),
		sessionManager: session.NewManager(),
		scheduler:      timer.NewManager(nil),
		store:          store,
		training:       services.NewTrainingService(records),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)
	s.timers = timer.NewPlayerTimers(s.registry, s.scheduler, s.broadcaster)

	// 初始化RPC服务器
	rpcServer, err := trainroomrpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	roomService := trainroomrpc.NewRoomService(s.registry)
	rpc.Register(roomService)

	return s
}

func (s *RoomServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Room server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *RoomServer) Shutdown() {
	close(s.shutdownChan)
	s.scheduler.Stop()
	s.rpcServer.Stop()
}

func (s *RoomServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *RoomServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		s.markOffline(sess.GetID())
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *RoomServer) handlePacket(sess *session.Session, packet *network.Packet) {
	s.monitor.IncCommandsReceived()
	start := time.Now()
	defer func() {
		s.monitor.ObserveCommandLatency(time.Since(start))
	}()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
	case network.MsgTypeJoinRoom:
		s.handleJoin(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.handleLeave(sess, packet)
	case network.MsgTypeKickPlayer:
		s.handleKick(sess, packet)
	case network.MsgTypeCrossLetter:
		s.handleCross(sess, packet)
	case network.MsgTypeUncrossLetter:
		s.handleUncross(sess, packet)
	case network.MsgTypePassTurn:
		s.handlePass(sess, packet)
	case network.MsgTypeReorder:
		s.handleReorder(sess, packet)
	case network.MsgTypeStartTraining:
		s.handleStartTraining(sess, packet)
	case network.MsgTypeTimerStart:
		s.handleTimerStart(sess, packet)
	case network.MsgTypeTimerPause:
		s.handleTimerPause(sess, packet)
	case network.MsgTypeTimerReset:
		s.handleTimerReset(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}
