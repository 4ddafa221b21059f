package room

import "github.com/wfunc/roomserver/models"

// Broadcaster defines the interface for fanning out named events to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, event string, payload map[string]interface{}) error
	CloseRoom(roomID string)
}

// Recorder 接收房间生命周期通知用于落库，实现方必须是尽力而为：
// 任何失败都不得影响房间操作。
type Recorder interface {
	RoomStarted(snapshot models.RoomSnapshot)
	RoomClosed(snapshot models.RoomSnapshot)
}
