// room/turn.go
package room

import (
	"github.com/wfunc/trainroom/models"
)

// 回合与成员管理的纯逻辑，调用方负责在房间锁内执行
// (Registry.Mutate / Registry.Visit)。每个函数维护两条不变量:
// order 恰好是当前玩家ID的集合，current 要么为空要么在 order 中。

// Join 添加玩家；已存在则只刷新在线状态与连接标识
func Join(rs *models.RoomState, player models.Player, sessionID string) {
	if existing := rs.FindPlayer(player.ID); existing != nil {
		existing.Online = true
		if sessionID != "" {
			existing.SessionID = sessionID
		}
		return
	}

	p := player
	p.Online = true
	p.SessionID = sessionID
	rs.Players = append(rs.Players, &p)
	rs.Order = append(rs.Order, p.ID)
	if rs.Current == "" {
		rs.Current = p.ID
	}
}

// Remove 移除玩家(主动离开或被踢)；被移除的是当前回合玩家时，
// 回合顺延到 order 的新首位
func Remove(rs *models.RoomState, playerID string) {
	players := rs.Players[:0]
	for _, p := range rs.Players {
		if p.ID != playerID {
			players = append(players, p)
		}
	}
	rs.Players = players

	order := rs.Order[:0]
	for _, id := range rs.Order {
		if id != playerID {
			order = append(order, id)
		}
	}
	rs.Order = order

	if rs.Current == playerID {
		if len(rs.Order) > 0 {
			rs.Current = rs.Order[0]
		} else {
			rs.Current = ""
		}
	}
}

// Restore 用持久化快照覆盖内存状态。快照里不带连接标识，
// 已在房的活连接按玩家ID保留下来，否则断线清理会漏掉他们
func Restore(rs *models.RoomState, snap *models.RoomState) {
	for _, p := range snap.Players {
		if existing := rs.FindPlayer(p.ID); existing != nil {
			p.SessionID = existing.SessionID
		}
	}
	*rs = *snap
}

// Cross marks a letter off. Returns false (untouched state) when the
// letter is unknown or already crossed.
func Cross(rs *models.RoomState, letter string) bool {
	if !models.ValidLetter(letter) {
		return false
	}
	if rs.HasCrossed(letter) {
		return false
	}
	rs.Crossed = append(rs.Crossed, letter)
	return true
}

// Uncross removes a letter. Returns false when it was not crossed.
func Uncross(rs *models.RoomState, letter string) bool {
	for i, l := range rs.Crossed {
		if l == letter {
			rs.Crossed = append(rs.Crossed[:i], rs.Crossed[i+1:]...)
			return true
		}
	}
	return false
}

// Pass 移交回合。fromID 必须是当前回合玩家且 toID 在 order 中，
// 否则丢弃(过期或伪造的客户端指令)
func Pass(rs *models.RoomState, fromID, toID string) bool {
	if rs.Current != fromID {
		return false
	}
	for _, id := range rs.Order {
		if id == toID {
			rs.Current = toID
			return true
		}
	}
	return false
}

// Reorder 替换回合顺序。新顺序必须恰好是当前玩家ID的一个排列，
// 否则丢弃
func Reorder(rs *models.RoomState, order []string) bool {
	if len(order) != len(rs.Players) {
		return false
	}
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if rs.FindPlayer(id) == nil {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	rs.Order = append(rs.Order[:0], order...)
	return true
}

// NextAfter returns the id following the given one in turn order,
// wrapping around. Empty order yields "".
func NextAfter(rs *models.RoomState, id string) string {
	if len(rs.Order) == 0 {
		return ""
	}
	for i, cur := range rs.Order {
		if cur == id {
			return rs.Order[(i+1)%len(rs.Order)]
		}
	}
	return rs.Order[0]
}
