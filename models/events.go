// models/events.go
package models

// 广播事件名。消费端将未知事件/字段视为前向兼容扩展。
const (
	EventSystemMessage = "system-message"
	EventChatMessage   = "chat-message"
	EventEffectEvent   = "effect-event"
	EventRoomState     = "room-state"
)

// system-message 子类型
const (
	SubtypeJoin            = "join"
	SubtypeLeave           = "leave"
	SubtypeCharacterSelect = "character-select"
	SubtypeGameStart       = "game-start"
	SubtypePlayerJoinGame  = "player-join-game"
)

// SystemMessage 构造 system-message 负载
func SystemMessage(subtype, account, nickname string, ts int64) map[string]interface{} {
	return map[string]interface{}{
		"subtype":   subtype,
		"account":   account,
		"nickname":  nickname,
		"timestamp": ts,
	}
}

// ChatMessage 构造 chat-message 负载
func ChatMessage(account, nickname, content string, ts int64) map[string]interface{} {
	return map[string]interface{}{
		"account":   account,
		"nickname":  nickname,
		"message":   content,
		"timestamp": ts,
	}
}

// EffectEvent 构造 effect-event 负载，config 由渲染层解释
func EffectEvent(account, effectType string, config map[string]interface{}, ts int64) map[string]interface{} {
	return map[string]interface{}{
		"sender":    account,
		"type":      effectType,
		"config":    config,
		"timestamp": ts,
	}
}
