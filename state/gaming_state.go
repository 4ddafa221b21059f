package state

import (
	"time"

	"github.com/wfunc/roomserver/logger"
)

// GamingState 游戏进行状态，由就绪检查触发进入，房间存续期内不再退出
type GamingState struct {
	RoomStateBase
	StartedAt time.Time
}

// NewGamingState 创建新的游戏状态
func NewGamingState(room RoomContext) *GamingState {
	return &GamingState{
		RoomStateBase: RoomStateBase{
			ID:   PhaseGaming,
			Room: room,
		},
		StartedAt: time.Now(),
	}
}

// OnEnter 进入游戏状态
func (s *GamingState) OnEnter() {
	if logger.Log != nil {
		logger.Log.Infof("房间 %s 进入游戏状态", s.Room.GetID())
	}
}

// Elapsed 返回开局以来的时长
func (s *GamingState) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}
