// room/room.go
package room

import (
	"strings"
	"sync"
	"time"

	"github.com/wfunc/roomserver/gameerr"
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/models"
	"github.com/wfunc/roomserver/state"
)

// Room 是单个房间的权威状态：用户表和房间聚合状态放在同一把锁下，
// 每个变更操作都是一个完整的临界区。不同房间互不阻塞。
type Room struct {
	ID         string
	CreatedAt  time.Time
	MaxPlayers int

	mu       sync.Mutex
	state    models.RoomState
	users    map[string]*models.UserState
	departed map[string]models.UserState // 开局后离开的玩家的最终状态
	machine  state.StateMachine
	closed   bool

	broadcaster Broadcaster
	recorder    Recorder
}

// ErrRoomClosed 房间已被管理器拆除，调用方需要重新获取房间
var ErrRoomClosed = gameerr.NotFoundf("room already closed")

// NewRoom 创建一个新房间
func NewRoom(id string, maxPlayers int, broadcaster Broadcaster, recorder Recorder) *Room {
	now := time.Now()
	r := &Room{
		ID:         id,
		CreatedAt:  now,
		MaxPlayers: maxPlayers,
		users:      make(map[string]*models.UserState),
		state: models.RoomState{
			Initialized:  true,
			GameStarted:  false,
			LastActivity: now,
		},
		broadcaster: broadcaster,
		recorder:    recorder,
	}
	r.machine = state.NewForwardOnlyMachine(r)
	return r
}

// --- 实现 state.RoomContext 接口 ---

func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Broadcast 把事件交给广播器的房间队列，入队即返回
func (r *Room) Broadcast(event string, payload map[string]interface{}) error {
	if r.broadcaster == nil {
		return nil
	}
	return r.broadcaster.BroadcastToRoom(r.ID, event, payload)
}

// --- 房间操作 ---

// Join 写入一个新的 UserState。重复加入会重置该账号的会话状态
// （改昵称需要重新加入）。
func (r *Room) Join(account, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return gameerr.Validationf("join room: nickname must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}

	if _, rejoining := r.users[account]; !rejoining {
		if r.MaxPlayers > 0 && len(r.users) >= r.MaxPlayers {
			return gameerr.Preconditionf("join room: room %s is full", r.ID)
		}
	}

	now := time.Now()
	r.users[account] = &models.UserState{
		Account:    account,
		Nickname:   nickname,
		Stats:      models.DefaultStats(),
		State:      models.StateIdle,
		JoinedAt:   now,
		LastActive: now,
	}
	r.touchLocked(now)

	r.Broadcast(models.EventSystemMessage,
		models.SystemMessage(models.SubtypeJoin, account, nickname, now.UnixMilli()))
	return nil
}

// Leave 先用当前昵称广播离开消息，再移除成员。
// 返回值表示房间是否因此变空。
func (r *Room) Leave(account string) (empty bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[account]
	if !exists {
		return false, gameerr.NotFoundf("leave room: account %s is not a member of room %s", account, r.ID)
	}

	now := time.Now()
	r.Broadcast(models.EventSystemMessage,
		models.SystemMessage(models.SubtypeLeave, account, user.Nickname, now.UnixMilli()))

	// 开局后的离开者要留在对局记录里，移除前保存最终状态
	if r.state.GameStarted {
		if r.departed == nil {
			r.departed = make(map[string]models.UserState)
		}
		r.departed[account] = copyUser(user)
	}

	delete(r.users, account)
	r.touchLocked(now)

	return len(r.users) == 0, nil
}

// SetCharacter 无条件覆盖角色选择，角色ID的合法性由渲染层负责
func (r *Room) SetCharacter(account, character string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[account]
	if !exists {
		return "", gameerr.NotFoundf("set character: account %s is not a member of room %s", account, r.ID)
	}

	now := time.Now()
	user.Character = character
	user.LastActive = now
	r.touchLocked(now)

	payload := models.SystemMessage(models.SubtypeCharacterSelect, account, user.Nickname, now.UnixMilli())
	payload["character"] = character
	r.Broadcast(models.EventSystemMessage, payload)

	return character, nil
}

// ToggleReady 翻转就绪标志。第一个就绪成功的玩家触发开局，
// 锁保证并发就绪下 game-start 恰好广播一次。
func (r *Room) ToggleReady(account string) (bool, error) {
	var startedSnapshot *models.RoomSnapshot

	r.mu.Lock()
	user, exists := r.users[account]
	if !exists {
		r.mu.Unlock()
		return false, gameerr.NotFoundf("toggle ready: account %s is not a member of room %s", account, r.ID)
	}
	if user.Character == "" {
		r.mu.Unlock()
		return false, gameerr.Preconditionf("toggle ready: select a character first")
	}

	now := time.Now()
	user.IsReady = !user.IsReady
	user.LastActive = now
	r.touchLocked(now)
	ready := user.IsReady

	if ready {
		if !r.state.GameStarted {
			r.state.GameStarted = true
			startTime := now
			r.state.GameStartTime = &startTime

			if err := r.machine.ChangeState(state.NewGamingState(r)); err != nil {
				logger.Log.Errorf("room %s: phase change on game start failed: %v", r.ID, err)
			}

			r.Broadcast(models.EventSystemMessage,
				models.SystemMessage(models.SubtypeGameStart, account, user.Nickname, now.UnixMilli()))

			snap := r.snapshotLocked()
			startedSnapshot = &snap
		} else {
			// 游戏已在进行，通知在场玩家有新玩家激活
			r.Broadcast(models.EventSystemMessage,
				models.SystemMessage(models.SubtypePlayerJoinGame, account, user.Nickname, now.UnixMilli()))
		}
	}
	// 取消就绪不广播，只更新状态
	r.mu.Unlock()

	if startedSnapshot != nil && r.recorder != nil {
		go r.recorder.RoomStarted(*startedSnapshot)
	}
	return ready, nil
}

// SendMessage 聊天消息广播
func (r *Room) SendMessage(account, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return gameerr.Validationf("send message: message must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[account]
	if !exists {
		return gameerr.NotFoundf("send message: account %s is not a member of room %s", account, r.ID)
	}

	now := time.Now()
	user.LastActive = now
	r.touchLocked(now)

	r.Broadcast(models.EventChatMessage,
		models.ChatMessage(account, user.Nickname, message, now.UnixMilli()))
	return nil
}

// SendEffectEvent 特效事件的纯转发，config 不做解释。
// 广播失败只记录日志，不影响调用方。
func (r *Room) SendEffectEvent(account, effectType string, config map[string]interface{}) error {
	if effectType == "" {
		return gameerr.Validationf("send effect event: type must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[account]
	if !exists {
		return gameerr.NotFoundf("send effect event: account %s is not a member of room %s", account, r.ID)
	}

	now := time.Now()
	user.LastActive = now
	r.touchLocked(now)

	if err := r.Broadcast(models.EventEffectEvent,
		models.EffectEvent(account, effectType, config, now.UnixMilli())); err != nil {
		logger.Log.Warnf("room %s: effect event broadcast failed: %v", r.ID, err)
	}
	return nil
}

// ApplyDamage 扣血并在同一次更新内处理死亡转换。
// 结果只返回给调用方，伤害事件的传播由调用方负责。
func (r *Room) ApplyDamage(targetAccount string, damage float64) (models.DamageResult, error) {
	if strings.TrimSpace(targetAccount) == "" {
		return models.DamageResult{}, gameerr.Validationf("apply damage: target account must not be empty")
	}
	if damage <= 0 {
		return models.DamageResult{}, gameerr.Validationf("apply damage: damage amount must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[targetAccount]
	if !exists {
		return models.DamageResult{}, gameerr.NotFoundf("apply damage: account %s is not a member of room %s", targetAccount, r.ID)
	}

	// 老客户端可能在 stats 结构迁移前入场
	if user.Stats.MaxHP <= 0 {
		user.Stats = models.DefaultStats()
	}

	newHP := user.Stats.CurrentHP - damage
	if newHP < 0 {
		newHP = 0
	}
	user.Stats.CurrentHP = newHP
	if newHP <= 0 {
		user.State = models.StateDie
	}

	r.touchLocked(time.Now())

	return models.DamageResult{
		Success:       true,
		TargetAccount: targetAccount,
		NewHP:         newHP,
	}, nil
}

// Revive 复活为满血 IDLE。非成员返回 false 并记录日志，不抛错。
func (r *Room) Revive(account string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[account]
	if !exists {
		logger.Log.Warnf("room %s: revive for non-member account %s", r.ID, account)
		return false
	}

	now := time.Now()
	user.State = models.StateIdle
	user.Stats = models.DefaultStats()
	user.LastActive = now
	r.touchLocked(now)

	return true
}

// UpdateTransform 位姿按最后写入为准，核心不做插值
func (r *Room) UpdateTransform(account string, transform models.Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[account]
	if !exists {
		return gameerr.NotFoundf("update transform: account %s is not a member of room %s", account, r.ID)
	}

	now := time.Now()
	user.Transform = &transform
	user.LastActive = now
	r.touchLocked(now)

	return nil
}

// Tick 周期维护钩子。任何失败都被吞掉，绝不向调度器抛出。
func (r *Room) Tick(deltaMs float64, broadcastState bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Errorf("room %s: tick panic recovered: %v", r.ID, rec)
		}
	}()

	if current := r.machine.GetCurrentState(); current != nil {
		current.OnUpdate()
	}

	if broadcastState {
		snap := r.Snapshot()
		r.Broadcast(models.EventRoomState, map[string]interface{}{
			"roomId": snap.RoomID,
			"state":  snap.State,
			"users":  snap.Users,
		})
	}
}

// Snapshot 返回一致性快照（深拷贝），与在途写入互斥
func (r *Room) Snapshot() models.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() models.RoomSnapshot {
	users := make(map[string]models.UserState, len(r.users))
	for account, user := range r.users {
		users[account] = copyUser(user)
	}
	return models.RoomSnapshot{
		RoomID: r.ID,
		State:  r.state,
		Users:  users,
	}
}

func copyUser(user *models.UserState) models.UserState {
	copied := *user
	if user.Transform != nil {
		transform := *user.Transform
		copied.Transform = &transform
	}
	return copied
}

// ClosingSnapshot 返回写对局记录用的快照：当前成员加上开局后
// 离开的玩家。拆除时房间已空，只看在场成员参与者必然丢失。
func (r *Room) ClosingSnapshot() models.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshotLocked()
	for account, user := range r.departed {
		if _, present := snap.Users[account]; !present {
			snap.Users[account] = user
		}
	}
	return snap
}

// Phase 返回房间相位（waiting/gaming）
func (r *Room) Phase() string {
	if current := r.machine.GetCurrentState(); current != nil {
		return current.GetID()
	}
	return state.PhaseWaiting
}

// GetState 返回房间聚合状态副本
func (r *Room) GetState() models.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// MemberAccounts 返回当前成员账号列表，供广播器取连接
func (r *Room) MemberAccounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]string, 0, len(r.users))
	for account := range r.users {
		accounts = append(accounts, account)
	}
	return accounts
}

// IdleFor 距最后一次活动的时长
func (r *Room) IdleFor() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.state.LastActivity)
}

// markClosed 由管理器在拆除前调用，拒绝后续加入
func (r *Room) markClosed() (wasEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.users) > 0 {
		return false
	}
	r.closed = true
	return true
}

// touchLocked 维护 userCount 与 users 的一致性以及活跃时间。
// 必须在每个变更操作的临界区内调用。
func (r *Room) touchLocked(now time.Time) {
	r.state.UserCount = len(r.users)
	r.state.LastActivity = now
}
