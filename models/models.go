// models/models.go
package models

import (
	"time"
)

// SessionState 玩家会话状态
type SessionState string

const (
	StateIdle SessionState = "IDLE"
	StateDie  SessionState = "DIE"
)

const (
	DefaultMaxHP     = 100
	DefaultCurrentHP = 100
)

// Stats 玩家生命值
type Stats struct {
	MaxHP     float64 `json:"maxHp"`
	CurrentHP float64 `json:"currentHp"`
}

// DefaultStats returns a fresh stats block for a newly joined or revived user.
func DefaultStats() Stats {
	return Stats{MaxHP: DefaultMaxHP, CurrentHP: DefaultCurrentHP}
}

// Vector3 位置/旋转分量
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform 最后上报的位姿，按字段 last-write-wins，核心不做插值
type Transform struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

// UserState 房间内单个玩家的可变会话状态
type UserState struct {
	Account    string       `json:"account"`
	Nickname   string       `json:"nickname"`
	Character  string       `json:"character,omitempty"` // 空串表示未选择
	IsReady    bool         `json:"isReady"`
	Stats      Stats        `json:"stats"`
	State      SessionState `json:"state"`
	Transform  *Transform   `json:"transform,omitempty"`
	JoinedAt   time.Time    `json:"joinedAt"`
	LastActive time.Time    `json:"lastActive"`
}

// RoomState 房间聚合状态
type RoomState struct {
	Initialized   bool       `json:"initialized"`
	GameStarted   bool       `json:"gameStarted"`
	GameStartTime *time.Time `json:"gameStartTime,omitempty"`
	UserCount     int        `json:"userCount"`
	LastActivity  time.Time  `json:"lastActivity"`
}

// RoomSnapshot 房间状态的一致性快照，供读取/持久化/RPC使用
type RoomSnapshot struct {
	RoomID string               `json:"roomId"`
	State  RoomState            `json:"state"`
	Users  map[string]UserState `json:"users"`
}

// DamageResult applyDamage 的返回值，核心不负责广播伤害事件
type DamageResult struct {
	Success       bool    `json:"success"`
	TargetAccount string  `json:"targetAccount"`
	NewHP         float64 `json:"newHp"`
}

// PongResult 服务端对延迟探测的原样回显
type PongResult struct {
	ClientPingTime int64 `json:"clientPingTime"`
	ServerPongTime int64 `json:"serverPongTime"`
}

// GameRecord 对局落库记录
type GameRecord struct {
	RoomID       string                 `json:"room_id"`
	Participants map[string]interface{} `json:"participants"`
	Result       map[string]interface{} `json:"result"`
	Duration     int                    `json:"duration"` // 秒
	CreatedAt    time.Time              `json:"created_at"`
}
