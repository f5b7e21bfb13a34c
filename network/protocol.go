package network

const (
	MsgTypeHeartbeat = 1

	// 入站指令
	MsgTypeJoinRoom      = 101
	MsgTypeLeaveRoom     = 102
	MsgTypeKickPlayer    = 103
	MsgTypeCrossLetter   = 201
	MsgTypeUncrossLetter = 202
	MsgTypePassTurn      = 203
	MsgTypeReorder       = 204
	MsgTypeStartTraining = 205
	MsgTypeTimerStart    = 211
	MsgTypeTimerPause    = 212
	MsgTypeTimerReset    = 213

	// 出站消息
	MsgTypeRoomState = 301
	MsgTypeToast     = 302
)
