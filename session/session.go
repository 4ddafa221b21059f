// session/session.go
package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfunc/roomserver/network"
)

// 聊天/特效消息的限流参数
const (
	messageRateInterval = 300 * time.Millisecond
	messageRateBurst    = 5
)

type Session struct {
	ID         string
	Conn       network.Connection
	Account    string // 认证层下发的账号标识
	RoomID     string
	Data       map[string]interface{} // 自定义数据
	CreatedAt  time.Time
	LastActive time.Time
	limiter    *rate.Limiter
	mutex      sync.RWMutex
}

func NewSession(id, account string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		Account:    account,
		CreatedAt:  now,
		LastActive: now,
		Data:       make(map[string]interface{}),
		limiter:    rate.NewLimiter(rate.Every(messageRateInterval), messageRateBurst),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Data[key]
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) SendJSON(msgID uint16, v interface{}) error {
	s.Touch()
	return s.Conn.SendJSON(msgID, v)
}

// Touch 刷新活跃时间
func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

// AllowMessage 聊天和特效消息限流，超频直接拒绝
func (s *Session) AllowMessage() bool {
	return s.limiter.Allow()
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// GetByAccount 同一账号可能有多条连接（重连窗口期）
func (m *Manager) GetByAccount(account string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Account == account {
			result = append(result, session)
		}
	}
	return result
}
