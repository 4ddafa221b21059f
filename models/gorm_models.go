// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormPlayer 玩家模型，按 account 维度累积对局数据
type GormPlayer struct {
	gorm.Model
	Account string                 `gorm:"uniqueIndex;not null"`
	Record  map[string]interface{} `gorm:"type:jsonb"`
	Stats   map[string]interface{} `gorm:"type:jsonb"`
}

// GormGameRecord 对局记录模型
type GormGameRecord struct {
	gorm.Model
	RoomID       string                 `gorm:"index;not null"`
	Participants map[string]interface{} `gorm:"type:jsonb;not null"`
	Result       map[string]interface{} `gorm:"type:jsonb;not null"`
	Duration     int                    `gorm:"default:0"` // 对局时长(秒)
}

// GormRoomSnapshot 开局时的房间快照模型
type GormRoomSnapshot struct {
	gorm.Model
	RoomID string                 `gorm:"uniqueIndex;not null"`
	Phase  string                 `gorm:"not null"`
	Users  map[string]interface{} `gorm:"type:jsonb"`
}

// PlayerAggregate 玩家统计信息
type PlayerAggregate struct {
	TotalGames int `json:"total_games"`
	PlayTime   int `json:"play_time"` // 总对局时长(秒)
}
