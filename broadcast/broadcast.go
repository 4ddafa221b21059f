// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
)

var (
	ErrQueueFull = errors.New("room broadcast queue full")
)

// 每个房间的派发队列长度。满了直接丢弃并记日志：
// 广播契约是尽力而为，房间操作的延迟不能受传输层拖累。
const defaultQueueSize = 256

// Envelope 下发给客户端的事件信封
type Envelope struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, event string, payload map[string]interface{}) error
	BroadcastToAccounts(accounts []string, event string, payload map[string]interface{}) error
	CloseRoom(roomID string)
}

// RoomBroadcaster 基于房间的广播器。入队在调用方的临界区内完成，
// 真正的成员解析和网络发送由每房间一个的派发协程执行，
// 保证事件观察到的状态不落后于后续读取。
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager

	mutex  sync.Mutex
	queues map[string]chan Envelope
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
		queues:         make(map[string]chan Envelope),
	}
}

// BroadcastToRoom 入队即返回，不做任何网络IO，也不触碰房间锁
func (b *RoomBroadcaster) BroadcastToRoom(roomID string, event string, payload map[string]interface{}) error {
	env := Envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}

	queue := b.queueFor(roomID)
	select {
	case queue <- env:
		return nil
	default:
		logger.Log.Warnf("room %s: broadcast queue full, dropping %s event", roomID, event)
		return ErrQueueFull
	}
}

// BroadcastToAccounts 定向下发，绕过房间队列（管理用途）
func (b *RoomBroadcaster) BroadcastToAccounts(accounts []string, event string, payload map[string]interface{}) error {
	env := Envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	for _, account := range accounts {
		for _, s := range b.sessionManager.GetByAccount(account) {
			if err := s.Send(network.MsgTypeRoomEvent, data); err != nil {
				// 发送失败的连接交给读循环收尾
				continue
			}
		}
	}
	return nil
}

// CloseRoom 关闭房间的派发队列，排空后协程退出
func (b *RoomBroadcaster) CloseRoom(roomID string) {
	b.mutex.Lock()
	queue, exists := b.queues[roomID]
	if exists {
		delete(b.queues, roomID)
	}
	b.mutex.Unlock()

	if exists {
		close(queue)
	}
}

func (b *RoomBroadcaster) queueFor(roomID string) chan Envelope {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	queue, exists := b.queues[roomID]
	if !exists {
		queue = make(chan Envelope, defaultQueueSize)
		b.queues[roomID] = queue
		go b.dispatch(roomID, queue)
	}
	return queue
}

// dispatch 是房间的派发协程：按入队顺序把事件发给当前全部成员。
// 房间ID是隔离边界，成员每次投递时重新解析。
func (b *RoomBroadcaster) dispatch(roomID string, queue chan Envelope) {
	for env := range queue {
		r, exists := b.roomManager.Get(roomID)
		if !exists {
			// 房间已拆除，丢弃滞留事件
			continue
		}

		data, err := json.Marshal(env)
		if err != nil {
			logger.Log.Errorf("room %s: marshal %s event failed: %v", roomID, env.Event, err)
			continue
		}

		for _, account := range r.MemberAccounts() {
			for _, s := range b.sessionManager.GetByAccount(account) {
				if err := s.Send(network.MsgTypeRoomEvent, data); err != nil {
					continue
				}
			}
		}
	}
}
