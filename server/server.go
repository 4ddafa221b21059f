package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/roomserver/auth"
	"github.com/wfunc/roomserver/broadcast"
	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/gameerr"
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/models"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/persistence"
	"github.com/wfunc/roomserver/room"
	roomserver_rpc "github.com/wfunc/roomserver/rpc"
	"github.com/wfunc/roomserver/services"
	"github.com/wfunc/roomserver/session"
	"github.com/wfunc/roomserver/timer"
)

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	records        *services.RecordService
	authenticator  *auth.Authenticator
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	rpcServer      *roomserver_rpc.Server
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		roomManager:    room.NewManager(cfg.Room.MaxPlayers, cfg.Room.IdleTimeout),
		sessionManager: session.NewManager(),
		authenticator:  auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AllowGuest),
		monitor:        monitor.NewMonitor("roomserver"),
		timers:         timer.NewTimerManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	s.roomManager.SetBroadcaster(s.broadcaster)
	if cfg.Room.BroadcastState {
		s.roomManager.EnableStateBroadcast()
	}

	// 落库可选，关闭时纯内存运行
	if db != nil {
		s.records = services.NewRecordService(db)
		s.roomManager.SetRecorder(s.records)
	}

	// 初始化RPC服务器
	rpcServer, err := roomserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	roomService := roomserver_rpc.NewRoomService(s.roomManager, s.records)
	rpc.Register(roomService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.monitor.StartServer(s.cfg.Server.MonitorAddress)

	// 外部调度器按固定节拍驱动房间维护
	tickInterval := s.cfg.Room.TickInterval
	s.timers.AddTimer(tickInterval, tickInterval, func() {
		s.roomManager.TickAll(float64(tickInterval.Milliseconds()))
		s.monitor.SetActiveRooms(s.roomManager.Count())
	})

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	return http.ListenAndServe(s.cfg.Server.HTTPAddress, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	account, err := s.authenticator.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, account)
}

func (s *GameServer) handleConnection(conn *websocket.Conn, account string) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(30 * time.Second)
	sess := session.NewSession(uuid.New().String(), account, wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, account: %s, session ID: %s",
		wsConn.RemoteAddr(), account, sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		// 断线即离房，最后一个成员离开时房间被拆除
		if sess.RoomID != "" {
			if _, err := s.roomManager.Leave(sess.RoomID, sess.Account); err != nil {
				logger.Log.Debugf("leave on disconnect: %v", err)
			}
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.monitor.IncMessagesReceived()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
	case network.MsgTypePing:
		s.handlePing(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.handleLeaveRoom(sess)
	case network.MsgTypeSetCharacter:
		s.handleSetCharacter(sess, packet)
	case network.MsgTypeToggleReady:
		s.handleToggleReady(sess)
	case network.MsgTypeChatMessage:
		s.handleChatMessage(sess, packet)
	case network.MsgTypeEffectEvent:
		s.handleEffectEvent(sess, packet)
	case network.MsgTypeApplyDamage:
		s.handleApplyDamage(sess, packet)
	case network.MsgTypeRevive:
		s.handleRevive(sess)
	case network.MsgTypeTransform:
		s.handleTransform(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}

	s.monitor.ObserveOperationLatency(time.Since(start))
}

// sendError 把分类后的错误下发给调用方
func (s *GameServer) sendError(sess *session.Session, op string, err error) {
	sess.SendJSON(network.MsgTypeError, map[string]interface{}{
		"op":      op,
		"kind":    gameerr.Kind(err),
		"message": err.Error(),
	})
}

// handlePing 纯回显，不触碰任何房间状态。内部失败也必须返回
// 结构完整的应答，延迟测量要能优雅退化。
func (s *GameServer) handlePing(sess *session.Session, packet *network.Packet) {
	var req struct {
		ClientPingTime *int64 `json:"clientPingTime"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		req.ClientPingTime = nil
	}

	sess.SendJSON(network.MsgTypePing, map[string]interface{}{
		"clientPingTime": req.ClientPingTime,
		"serverPongTime": time.Now().UnixMilli(),
	})
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req struct {
		RoomID   string `json:"room_id"`
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "join", gameerr.Validationf("join room: malformed request"))
		return
	}

	roomID, err := s.roomManager.Join(req.RoomID, sess.Account, req.Nickname)
	if err != nil {
		s.sendError(sess, "join", err)
		return
	}
	sess.RoomID = roomID

	logger.Log.Infof("Account %s joined room %s", sess.Account, roomID)
	sess.SendJSON(network.MsgTypeJoinRoom, map[string]string{"room_id": roomID})
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) {
	if sess.RoomID == "" {
		s.sendError(sess, "leave", gameerr.NotFoundf("leave room: not in a room"))
		return
	}

	roomID, err := s.roomManager.Leave(sess.RoomID, sess.Account)
	if err != nil {
		s.sendError(sess, "leave", err)
		return
	}
	sess.RoomID = ""

	sess.SendJSON(network.MsgTypeLeaveRoom, map[string]string{"room_id": roomID})
}

func (s *GameServer) handleSetCharacter(sess *session.Session, packet *network.Packet) {
	r, ok := s.memberRoom(sess, "character")
	if !ok {
		return
	}

	var req struct {
		Character string `json:"character"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "character", gameerr.Validationf("set character: malformed request"))
		return
	}

	character, err := r.SetCharacter(sess.Account, req.Character)
	if err != nil {
		s.sendError(sess, "character", err)
		return
	}
	sess.SendJSON(network.MsgTypeSetCharacter, map[string]string{"character": character})
}

func (s *GameServer) handleToggleReady(sess *session.Session) {
	r, ok := s.memberRoom(sess, "ready")
	if !ok {
		return
	}

	ready, err := r.ToggleReady(sess.Account)
	if err != nil {
		s.sendError(sess, "ready", err)
		return
	}
	sess.SendJSON(network.MsgTypeToggleReady, map[string]bool{"ready": ready})
}

func (s *GameServer) handleChatMessage(sess *session.Session, packet *network.Packet) {
	r, ok := s.memberRoom(sess, "chat")
	if !ok {
		return
	}
	if !sess.AllowMessage() {
		s.sendError(sess, "chat", gameerr.Validationf("send message: rate limit exceeded"))
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "chat", gameerr.Validationf("send message: malformed request"))
		return
	}

	if err := r.SendMessage(sess.Account, req.Message); err != nil {
		s.sendError(sess, "chat", err)
		return
	}
	s.monitor.IncBroadcastsSent()
	sess.SendJSON(network.MsgTypeChatMessage, map[string]bool{"ok": true})
}

func (s *GameServer) handleEffectEvent(sess *session.Session, packet *network.Packet) {
	r, ok := s.memberRoom(sess, "effect")
	if !ok {
		return
	}
	if !sess.AllowMessage() {
		s.sendError(sess, "effect", gameerr.Validationf("send effect event: rate limit exceeded"))
		return
	}

	var req struct {
		Type   string                 `json:"type"`
		Config map[string]interface{} `json:"config"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "effect", gameerr.Validationf("send effect event: malformed request"))
		return
	}

	if err := r.SendEffectEvent(sess.Account, req.Type, req.Config); err != nil {
		s.sendError(sess, "effect", err)
		return
	}
	s.monitor.IncBroadcastsSent()
	sess.SendJSON(network.MsgTypeEffectEvent, map[string]bool{"ok": true})
}

func (s *GameServer) handleApplyDamage(sess *session.Session, packet *network.Packet) {
	r, ok := s.memberRoom(sess, "damage")
	if !ok {
		return
	}

	var req struct {
		TargetAccount string  `json:"targetAccount"`
		DamageAmount  float64 `json:"damageAmount"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, "damage", gameerr.Validationf("apply damage: malformed request"))
		return
	}

	result, err := r.ApplyDamage(req.TargetAccount, req.DamageAmount)
	if err != nil {
		s.sendError(sess, "damage", err)
		return
	}
	// 结果只回给调用方，向房间传播伤害事件由客户端走特效通道
	sess.SendJSON(network.MsgTypeApplyDamage, result)
}

func (s *GameServer) handleRevive(sess *session.Session) {
	r, ok := s.memberRoom(sess, "revive")
	if !ok {
		return
	}
	ok = r.Revive(sess.Account)
	sess.SendJSON(network.MsgTypeRevive, map[string]bool{"ok": ok})
}

func (s *GameServer) handleTransform(sess *session.Session, packet *network.Packet) {
	r, ok := s.memberRoom(sess, "transform")
	if !ok {
		return
	}

	var transform models.Transform
	if err := json.Unmarshal(packet.Data, &transform); err != nil {
		s.sendError(sess, "transform", gameerr.Validationf("update transform: malformed request"))
		return
	}

	if err := r.UpdateTransform(sess.Account, transform); err != nil {
		s.sendError(sess, "transform", err)
	}
}

// memberRoom 解析会话当前绑定的房间
func (s *GameServer) memberRoom(sess *session.Session, op string) (*room.Room, bool) {
	if sess.RoomID == "" {
		s.sendError(sess, op, gameerr.NotFoundf("%s: not in a room", op))
		return nil, false
	}
	r, exists := s.roomManager.Get(sess.RoomID)
	if !exists {
		s.sendError(sess, op, gameerr.NotFoundf("%s: room %s not found", op, sess.RoomID))
		return nil, false
	}
	return r, true
}
