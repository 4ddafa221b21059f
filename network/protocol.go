package network

// 消息ID是封闭枚举：客户端动作经由固定的ID分发，
// 不做基于字符串的动态派发。
const (
	MsgTypeHeartbeat = 1
	MsgTypePing      = 2

	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeSetCharacter = 103
	MsgTypeToggleReady  = 104
	MsgTypeChatMessage  = 105
	MsgTypeEffectEvent  = 106
	MsgTypeApplyDamage  = 107
	MsgTypeRevive       = 108
	MsgTypeTransform    = 109

	MsgTypeRoomEvent = 301 // 广播事件信封 {event, payload, timestamp}
	MsgTypeError     = 401
)
