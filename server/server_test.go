package server

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/trainroom/broadcast"
	"github.com/wfunc/trainroom/models"
	"github.com/wfunc/trainroom/network"
	"github.com/wfunc/trainroom/persistence"
	"github.com/wfunc/trainroom/room"
	"github.com/wfunc/trainroom/services"
	"github.com/wfunc/trainroom/session"
	"github.com/wfunc/trainroom/timer"
)

// MockConnection 测试用连接
type MockConnection struct {
	mu   sync.Mutex
	sent []*network.Packet
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
	return nil
}

func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return nil }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *MockConnection) CountByMsgID(msgID uint16) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.sent {
		if p.MsgID == msgID {
			n++
		}
	}
	return n
}

func (m *MockConnection) LastState(t *testing.T) *models.RoomState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].MsgID != network.MsgTypeRoomState {
			continue
		}
		var state models.RoomState
		if err := json.Unmarshal(m.sent[i].Data, &state); err != nil {
			t.Fatalf("Bad state payload: %v", err)
		}
		return &state
	}
	t.Fatal("No state packet received")
	return nil
}

// fakeScheduler fires ticks on demand instead of on the clock.
type fakeScheduler struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{nextID: 1, tasks: make(map[int64]func())}
}

func (f *fakeScheduler) Schedule(delay time.Duration, interval time.Duration, callback func()) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.tasks[id] = callback
	return id
}

func (f *fakeScheduler) Cancel(timerId int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, timerId)
}

func (f *fakeScheduler) TaskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func newTestServer() (*RoomServer, *persistence.MemoryStore, *fakeScheduler) {
	store := persistence.NewMemoryStore()
	sched := newFakeScheduler()

	s := &RoomServer{
		registry:       room.NewRegistry(),
		sessionManager: session.NewManager(),
		store:          store,
		training:       services.NewTrainingService(nil),
		shutdownChan:   make(chan struct{}),
	}
	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)
	s.timers = timer.NewPlayerTimers(s.registry, sched, s.broadcaster)
	return s, store, sched
}

func (s *RoomServer) connect(id string) (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	sess := session.NewSession(id, conn)
	s.sessionManager.Add(sess)
	return sess, conn
}

func packet(t *testing.T, msgID uint16, payload interface{}) *network.Packet {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	return &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))}
}

func (s *RoomServer) join(t *testing.T, sess *session.Session, roomID, playerID, name string) {
	t.Helper()
	s.handlePacket(sess, packet(t, network.MsgTypeJoinRoom, joinPayload{
		RoomID: roomID,
		Player: models.Player{ID: playerID, Name: name},
	}))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestJoin_CreatesRoomAndBroadcasts(t *testing.T) {
	s, store, _ := newTestServer()

	sess1, conn1 := s.connect("s1")
	s.join(t, sess1, "R1", "P1", "Аня")

	if sess1.UserID != "P1" {
		t.Errorf("Join should bind the player id to the session, got %q", sess1.UserID)
	}
	if sess1.RoomID() != "R1" {
		t.Errorf("Join should subscribe the session, got %q", sess1.RoomID())
	}

	state := conn1.LastState(t)
	if state.Current != "P1" || len(state.Order) != 1 {
		t.Errorf("Unexpected state after first join: %+v", state)
	}

	sess2, conn2 := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")

	// Both members get the second join's broadcast.
	if conn1.CountByMsgID(network.MsgTypeRoomState) != 2 {
		t.Errorf("First member should have 2 state packets, got %d", conn1.CountByMsgID(network.MsgTypeRoomState))
	}
	state = conn2.LastState(t)
	if state.Current != "P1" {
		t.Errorf("Second join must not steal the turn, current is %q", state.Current)
	}
	if len(state.Order) != 2 || state.Order[1] != "P2" {
		t.Errorf("Expected order [P1 P2], got %v", state.Order)
	}

	waitFor(t, func() bool { return store.Has("R1") }, "Snapshot was never persisted")
}

func TestJoin_RestoresSnapshot(t *testing.T) {
	s, store, _ := newTestServer()

	snap := models.NewRoomState("R1")
	snap.Players = append(snap.Players, &models.Player{ID: "P1", Name: "Аня", Timer: 30})
	snap.Order = []string{"P1"}
	snap.Crossed = []string{"А", "Б"}
	snap.Current = "P1"
	raw, _ := json.Marshal(snap)
	store.Put("R1", raw)

	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P2", "Боря")

	state := conn.LastState(t)
	if len(state.Players) != 2 {
		t.Fatalf("Expected restored player plus joiner, got %d players", len(state.Players))
	}
	p1 := state.FindPlayer("P1")
	if p1 == nil || p1.Timer != 30 {
		t.Errorf("Restored player should keep its timer, got %+v", p1)
	}
	if len(state.Crossed) != 2 {
		t.Errorf("Crossed letters should survive the restore, got %v", state.Crossed)
	}
	if state.Current != "P1" {
		t.Errorf("Turn should come back from the snapshot, got %q", state.Current)
	}
}

func TestJoin_BrokenSnapshotIgnored(t *testing.T) {
	s, store, _ := newTestServer()
	store.Put("R1", []byte(`{"id":"R1","players":[null],"crossed":[],"order":[],"current":""}`))

	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")

	state := conn.LastState(t)
	if len(state.Players) != 1 || state.Players[0].ID != "P1" {
		t.Errorf("Broken snapshot should be discarded, got players %+v", state.Players)
	}
	if state.Current != "P1" {
		t.Errorf("Joiner should hold the turn in the fresh room, got %q", state.Current)
	}
}

func TestJoin_MalformedPayloadIgnored(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")

	s.handlePacket(sess, &network.Packet{MsgID: network.MsgTypeJoinRoom, Data: []byte("{bad")})
	s.handlePacket(sess, packet(t, network.MsgTypeJoinRoom, joinPayload{RoomID: "R1"}))

	if conn.SentCount() != 0 {
		t.Errorf("Malformed joins must be dropped silently, got %d packets", conn.SentCount())
	}
	if s.registry.Count() != 0 {
		t.Errorf("No room should have been created, got %d", s.registry.Count())
	}
}

func TestCross_AdvancesTurnAndSwapsTimers(t *testing.T) {
	s, _, sched := newTestServer()
	sess1, conn1 := s.connect("s1")
	s.join(t, sess1, "R1", "P1", "Аня")
	sess2, _ := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")

	before := conn1.CountByMsgID(network.MsgTypeRoomState)
	s.handlePacket(sess1, packet(t, network.MsgTypeCrossLetter, letterPayload{RoomID: "R1", Letter: "А"}))

	state := conn1.LastState(t)
	if len(state.Crossed) != 1 || state.Crossed[0] != "А" {
		t.Errorf("Expected crossed [А], got %v", state.Crossed)
	}
	if state.Current != "P2" {
		t.Errorf("Turn should advance to P2, got %q", state.Current)
	}
	p2 := state.FindPlayer("P2")
	if p2 == nil || !p2.Running {
		t.Error("New current player's timer should be running")
	}
	if p1 := state.FindPlayer("P1"); p1.Running {
		t.Error("Previous player's timer should be paused")
	}
	if sched.TaskCount() != 1 {
		t.Errorf("Expected exactly one live tick task, got %d", sched.TaskCount())
	}
	if got := conn1.CountByMsgID(network.MsgTypeRoomState); got != before+1 {
		t.Errorf("Cross should broadcast exactly once, got %d new packets", got-before)
	}
}

func TestCross_DuplicateAndInvalidSilent(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")

	s.handlePacket(sess, packet(t, network.MsgTypeCrossLetter, letterPayload{RoomID: "R1", Letter: "А"}))
	before := conn.SentCount()

	s.handlePacket(sess, packet(t, network.MsgTypeCrossLetter, letterPayload{RoomID: "R1", Letter: "А"}))
	s.handlePacket(sess, packet(t, network.MsgTypeCrossLetter, letterPayload{RoomID: "R1", Letter: "Q"}))
	s.handlePacket(sess, packet(t, network.MsgTypeCrossLetter, letterPayload{RoomID: "nope", Letter: "Б"}))

	if conn.SentCount() != before {
		t.Errorf("Rejected crosses must not broadcast, got %d new packets", conn.SentCount()-before)
	}
	snap, _ := s.registry.Peek("R1")
	if len(snap.Crossed) != 1 {
		t.Errorf("State should be untouched, crossed is %v", snap.Crossed)
	}
}

func TestUncross(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	s.handlePacket(sess, packet(t, network.MsgTypeCrossLetter, letterPayload{RoomID: "R1", Letter: "А"}))

	before := conn.SentCount()
	s.handlePacket(sess, packet(t, network.MsgTypeUncrossLetter, letterPayload{RoomID: "R1", Letter: "А"}))

	state := conn.LastState(t)
	if len(state.Crossed) != 0 {
		t.Errorf("Expected no crossed letters, got %v", state.Crossed)
	}
	if conn.SentCount() != before+1 {
		t.Errorf("Uncross should broadcast once, got %d new packets", conn.SentCount()-before)
	}

	// Uncrossing an absent letter is silent.
	s.handlePacket(sess, packet(t, network.MsgTypeUncrossLetter, letterPayload{RoomID: "R1", Letter: "А"}))
	if conn.SentCount() != before+1 {
		t.Error("Uncrossing an absent letter must not broadcast")
	}
}

func TestPass_ValidatesSender(t *testing.T) {
	s, _, _ := newTestServer()
	sess1, conn1 := s.connect("s1")
	s.join(t, sess1, "R1", "P1", "Аня")
	sess2, _ := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")

	before := conn1.SentCount()

	// Stale pass: P2 is not the current player.
	s.handlePacket(sess2, packet(t, network.MsgTypePassTurn, passPayload{RoomID: "R1", FromID: "P2", ToID: "P1"}))
	if conn1.SentCount() != before {
		t.Error("Rejected pass must not broadcast")
	}

	s.handlePacket(sess1, packet(t, network.MsgTypePassTurn, passPayload{RoomID: "R1", FromID: "P1", ToID: "P2"}))
	state := conn1.LastState(t)
	if state.Current != "P2" {
		t.Errorf("Expected current P2 after pass, got %q", state.Current)
	}
}

func TestReorder_RejectsNonPermutation(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	s.join(t, sess, "R1", "P1", "Аня") // rejoin, still one player

	before := conn.SentCount()
	s.handlePacket(sess, packet(t, network.MsgTypeReorder, orderPayload{RoomID: "R1", Order: []string{"P1", "P1"}}))
	s.handlePacket(sess, packet(t, network.MsgTypeReorder, orderPayload{RoomID: "R1", Order: []string{"ghost"}}))

	if conn.SentCount() != before {
		t.Error("Rejected reorders must not broadcast")
	}

	sess2, _ := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")
	s.handlePacket(sess, packet(t, network.MsgTypeReorder, orderPayload{RoomID: "R1", Order: []string{"P2", "P1"}}))

	state := conn.LastState(t)
	if state.Order[0] != "P2" {
		t.Errorf("Expected order [P2 P1], got %v", state.Order)
	}
}

func TestLeave_LastPlayerDeletesRoom(t *testing.T) {
	s, store, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	waitFor(t, func() bool { return store.Has("R1") }, "Snapshot was never persisted")

	s.handlePacket(sess, packet(t, network.MsgTypeLeaveRoom, playerPayload{RoomID: "R1", PlayerID: "P1"}))

	if _, exists := s.registry.Peek("R1"); exists {
		t.Error("Empty room should be dropped from the registry")
	}
	if sess.RoomID() != "" {
		t.Errorf("Leave should unsubscribe the session, got %q", sess.RoomID())
	}

	// The leaver still gets the final empty state.
	state := conn.LastState(t)
	if len(state.Players) != 0 {
		t.Errorf("Final broadcast should be empty, got %d players", len(state.Players))
	}

	waitFor(t, func() bool { return !store.Has("R1") }, "Snapshot was never deleted")
}

func TestLeave_NonLastPlayerKeepsRoom(t *testing.T) {
	s, _, sched := newTestServer()
	sess1, _ := s.connect("s1")
	s.join(t, sess1, "R1", "P1", "Аня")
	sess2, conn2 := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")

	s.handlePacket(sess2, packet(t, network.MsgTypeTimerStart, playerPayload{RoomID: "R1", PlayerID: "P2"}))
	if sched.TaskCount() != 1 {
		t.Fatalf("Expected 1 tick task, got %d", sched.TaskCount())
	}

	s.handlePacket(sess2, packet(t, network.MsgTypeLeaveRoom, playerPayload{RoomID: "R1", PlayerID: "P2"}))

	snap, exists := s.registry.Peek("R1")
	if !exists {
		t.Fatal("Room should survive while members remain")
	}
	if len(snap.Players) != 1 || snap.Players[0].ID != "P1" {
		t.Errorf("Expected only P1 left, got %+v", snap.Players)
	}
	if sched.TaskCount() != 0 {
		t.Errorf("Leaver's tick task should be cancelled, %d left", sched.TaskCount())
	}
	// conn2 is still counted here because removal broadcasts before the
	// session is torn down, matching the leaver seeing the final state.
	state := conn2.LastState(t)
	if state.FindPlayer("P2") != nil {
		t.Error("Removed player should be absent from the broadcast")
	}
}

func TestLeave_ForeignRoomKeepsSubscription(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	before := conn.SentCount()

	// Stale leave naming a different room must not touch this session.
	s.handlePacket(sess, packet(t, network.MsgTypeLeaveRoom, playerPayload{RoomID: "other", PlayerID: "P1"}))

	if sess.RoomID() != "R1" {
		t.Errorf("Session should still be subscribed to R1, got %q", sess.RoomID())
	}
	if conn.SentCount() != before {
		t.Errorf("Stale leave must be silent, got %d new packets", conn.SentCount()-before)
	}
	if _, exists := s.registry.Peek("R1"); !exists {
		t.Error("Room must be untouched")
	}
}

func TestKick_UnknownPlayerSilent(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")

	before := conn.SentCount()
	s.handlePacket(sess, packet(t, network.MsgTypeKickPlayer, playerPayload{RoomID: "R1", PlayerID: "ghost"}))
	s.handlePacket(sess, packet(t, network.MsgTypeKickPlayer, playerPayload{RoomID: "nope", PlayerID: "P1"}))

	if conn.SentCount() != before {
		t.Errorf("Kicking a missing player must be silent, got %d new packets", conn.SentCount()-before)
	}
	if _, exists := s.registry.Peek("R1"); !exists {
		t.Error("Room must be untouched")
	}
}

func TestTimerPause_SendsToast(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	s.handlePacket(sess, packet(t, network.MsgTypeTimerStart, playerPayload{RoomID: "R1", PlayerID: "P1"}))

	s.handlePacket(sess, packet(t, network.MsgTypeTimerPause, playerPayload{RoomID: "R1", PlayerID: "P1"}))

	if conn.CountByMsgID(network.MsgTypeToast) != 1 {
		t.Errorf("Expected 1 toast, got %d", conn.CountByMsgID(network.MsgTypeToast))
	}
	state := conn.LastState(t)
	if state.FindPlayer("P1").Running {
		t.Error("Pause should stop the timer")
	}
}

func TestTimerReset_Zeroes(t *testing.T) {
	s, _, sched := newTestServer()
	sess, conn := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	s.handlePacket(sess, packet(t, network.MsgTypeTimerStart, playerPayload{RoomID: "R1", PlayerID: "P1"}))

	s.registry.Visit("R1", func(rs *models.RoomState) {
		rs.FindPlayer("P1").Timer = 40
	})

	s.handlePacket(sess, packet(t, network.MsgTypeTimerReset, playerPayload{RoomID: "R1", PlayerID: "P1"}))

	state := conn.LastState(t)
	p := state.FindPlayer("P1")
	if p.Timer != 0 || p.Running {
		t.Errorf("Reset should stop and zero the timer, got %+v", p)
	}
	if sched.TaskCount() != 0 {
		t.Errorf("Reset should cancel the tick task, %d left", sched.TaskCount())
	}
}

func TestStartTraining_StartsCurrentAndToasts(t *testing.T) {
	s, _, _ := newTestServer()
	sess1, conn1 := s.connect("s1")
	s.join(t, sess1, "R1", "P1", "Аня")
	sess2, _ := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")

	s.handlePacket(sess2, packet(t, network.MsgTypeStartTraining, roomPayload{RoomID: "R1"}))

	state := conn1.LastState(t)
	if !state.FindPlayer("P1").Running {
		t.Error("Current player's timer should be running")
	}
	if state.FindPlayer("P2").Running {
		t.Error("Only the current player's timer starts")
	}

	toasts := conn1.CountByMsgID(network.MsgTypeToast)
	if toasts != 1 {
		t.Fatalf("Expected 1 toast, got %d", toasts)
	}
}

func TestDisconnect_MarksOffline(t *testing.T) {
	s, _, sched := newTestServer()
	sess, _ := s.connect("s1")
	s.join(t, sess, "R1", "P1", "Аня")
	sess2, conn2 := s.connect("s2")
	s.join(t, sess2, "R1", "P2", "Боря")

	s.handlePacket(sess, packet(t, network.MsgTypeTimerStart, playerPayload{RoomID: "R1", PlayerID: "P1"}))
	before := conn2.CountByMsgID(network.MsgTypeRoomState)

	s.sessionManager.Remove(sess.GetID())
	s.markOffline(sess.GetID())

	state := conn2.LastState(t)
	p1 := state.FindPlayer("P1")
	if p1 == nil {
		t.Fatal("Disconnected player must stay in the room")
	}
	if p1.Online {
		t.Error("Disconnected player should be marked offline")
	}
	if conn2.CountByMsgID(network.MsgTypeRoomState) != before+1 {
		t.Error("Offline sweep should broadcast once per affected room")
	}
	// The timer keeps ticking for offline players.
	if sched.TaskCount() != 1 {
		t.Errorf("Disconnect must not cancel the tick task, got %d", sched.TaskCount())
	}
	if !p1.Running {
		t.Error("Disconnect must not pause the timer")
	}
}

func TestHeartbeat_RefreshesActivity(t *testing.T) {
	s, _, _ := newTestServer()
	sess, conn := s.connect("s1")

	before := sess.LastActive()
	time.Sleep(time.Millisecond)
	s.handlePacket(sess, &network.Packet{MsgID: network.MsgTypeHeartbeat})

	if !sess.LastActive().After(before) {
		t.Error("Heartbeat should refresh the activity time")
	}
	if conn.SentCount() != 0 {
		t.Errorf("Heartbeat must not broadcast, got %d packets", conn.SentCount())
	}
}
