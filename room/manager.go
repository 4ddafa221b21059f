// room/manager.go
package room

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/roomserver/gameerr"
	"github.com/wfunc/roomserver/logger"
)

// Manager 管理所有房间。房间表自身有一把锁；
// 房间内部状态由各自的锁串行化，互不影响。
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex

	broadcaster    Broadcaster
	recorder       Recorder
	maxPlayers     int
	idleTimeout    time.Duration
	broadcastState bool
}

// NewManager 创建房间管理器
func NewManager(maxPlayers int, idleTimeout time.Duration) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		maxPlayers:  maxPlayers,
		idleTimeout: idleTimeout,
	}
}

// SetBroadcaster 注入广播器（广播器反向依赖管理器取成员，启动时注入一次）
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// SetRecorder 注入落库回调，可为空
func (m *Manager) SetRecorder(rec Recorder) {
	m.recorder = rec
}

// EnableStateBroadcast 打开周期性房间状态广播
func (m *Manager) EnableStateBroadcast() {
	m.broadcastState = true
}

// Join 加入房间。roomID 为空时创建新房间；指定的房间不存在时
// 按 join-or-create 策略以该ID创建。返回最终的房间ID。
func (m *Manager) Join(roomID, account, nickname string) (string, error) {
	if strings.TrimSpace(nickname) == "" {
		return "", gameerr.Validationf("join room: nickname must not be empty")
	}

	if roomID == "" {
		roomID = uuid.New().String()
	}

	// 房间可能在取到引用后、加入前被并发拆除，遇到 ErrRoomClosed 重建重试
	for {
		r := m.getOrCreate(roomID)
		err := r.Join(account, nickname)
		if err == ErrRoomClosed {
			continue
		}
		if err != nil {
			return "", err
		}
		return roomID, nil
	}
}

// Leave 离开房间，最后一个成员离开时拆除房间
func (m *Manager) Leave(roomID, account string) (string, error) {
	r, exists := m.Get(roomID)
	if !exists {
		return "", gameerr.NotFoundf("leave room: room %s not found", roomID)
	}

	empty, err := r.Leave(account)
	if err != nil {
		return "", err
	}

	if empty {
		m.Remove(roomID)
	}
	return roomID, nil
}

// Get 获取房间
func (m *Manager) Get(roomID string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, exists := m.rooms[roomID]
	return r, exists
}

// Count 当前房间数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Remove 拆除空房间。markClosed 失败说明又有人加入，放弃拆除。
func (m *Manager) Remove(roomID string) {
	m.mutex.Lock()
	r, exists := m.rooms[roomID]
	if !exists {
		m.mutex.Unlock()
		return
	}
	if !r.markClosed() {
		m.mutex.Unlock()
		return
	}
	delete(m.rooms, roomID)
	m.mutex.Unlock()

	if m.broadcaster != nil {
		m.broadcaster.CloseRoom(roomID)
	}
	if m.recorder != nil && r.GetState().GameStarted {
		go m.recorder.RoomClosed(r.ClosingSnapshot())
	}
	logger.Log.Infof("room %s removed", roomID)
}

// TickAll 由外部调度器按固定节拍调用，执行周期维护。
// 任何单个房间的失败都不会影响其余房间。
func (m *Manager) TickAll(deltaMs float64) {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	for _, r := range rooms {
		r.Tick(deltaMs, m.broadcastState)

		// 空置超时的房间兜底回收
		if m.idleTimeout > 0 && r.MemberCount() == 0 && r.IdleFor() > m.idleTimeout {
			m.Remove(r.ID)
		}
	}
}

func (m *Manager) getOrCreate(roomID string) *Room {
	m.mutex.RLock()
	r, exists := m.rooms[roomID]
	m.mutex.RUnlock()
	if exists {
		return r
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if r, exists = m.rooms[roomID]; exists {
		return r
	}

	r = NewRoom(roomID, m.maxPlayers, m.broadcaster, m.recorder)
	m.rooms[roomID] = r
	logger.Log.Infof("room %s created", roomID)
	return r
}
