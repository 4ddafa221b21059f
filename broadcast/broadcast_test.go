package broadcast

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/models"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
)

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	m.Run()
}

// CaptureConnection records every packet sent through it.
type CaptureConnection struct {
	mutex   sync.Mutex
	packets []*network.Packet
}

func (c *CaptureConnection) Send(msgID uint16, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.packets = append(c.packets, &network.Packet{MsgID: msgID, Data: buf, Length: uint16(len(buf))})
	return nil
}

func (c *CaptureConnection) SendJSON(msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(msgID, data)
}

func (c *CaptureConnection) Close() error                         { return nil }
func (c *CaptureConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *CaptureConnection) SetHeartbeat(interval time.Duration)  {}
func (c *CaptureConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (c *CaptureConnection) Envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var envelopes []Envelope
	for _, p := range c.packets {
		require.Equal(t, uint16(network.MsgTypeRoomEvent), p.MsgID)
		var env Envelope
		require.NoError(t, json.Unmarshal(p.Data, &env))
		envelopes = append(envelopes, env)
	}
	return envelopes
}

// waitFor polls until the condition holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

type fixture struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *RoomBroadcaster
}

func newFixture() *fixture {
	roomManager := room.NewManager(0, time.Minute)
	sessionManager := session.NewManager()
	b := NewRoomBroadcaster(roomManager, sessionManager)
	roomManager.SetBroadcaster(b)
	return &fixture{roomManager: roomManager, sessionManager: sessionManager, broadcaster: b}
}

func (f *fixture) connect(account string) *CaptureConnection {
	conn := &CaptureConnection{}
	f.sessionManager.Add(session.NewSession("sess_"+account, account, conn))
	return conn
}

func TestBroadcastToRoom_AllMembersReceive(t *testing.T) {
	f := newFixture()
	connA := f.connect("acc_a")
	connB := f.connect("acc_b")

	roomID, err := f.roomManager.Join("", "acc_a", "alice")
	require.NoError(t, err)
	_, err = f.roomManager.Join(roomID, "acc_b", "bob")
	require.NoError(t, err)

	require.NoError(t, f.broadcaster.BroadcastToRoom(roomID, models.EventChatMessage,
		models.ChatMessage("acc_a", "alice", "hi", time.Now().UnixMilli())))

	waitFor(t, func() bool {
		return len(connA.Envelopes(t)) >= 1 && len(connB.Envelopes(t)) >= 1
	})

	envs := connB.Envelopes(t)
	last := envs[len(envs)-1]
	assert.Equal(t, models.EventChatMessage, last.Event)
	assert.Equal(t, "hi", last.Payload["message"])
	assert.NotZero(t, last.Timestamp)
}

func TestBroadcastToRoom_PreservesOrder(t *testing.T) {
	f := newFixture()
	conn := f.connect("acc_a")

	roomID, err := f.roomManager.Join("", "acc_a", "alice")
	require.NoError(t, err)

	// Skip the join system-message already queued by Join
	waitFor(t, func() bool { return len(conn.Envelopes(t)) >= 1 })
	base := len(conn.Envelopes(t))

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, f.broadcaster.BroadcastToRoom(roomID, models.EventChatMessage,
			map[string]interface{}{"seq": i}))
	}

	waitFor(t, func() bool { return len(conn.Envelopes(t)) >= base+n })

	envs := conn.Envelopes(t)[base:]
	for i, env := range envs[:n] {
		assert.Equal(t, float64(i), env.Payload["seq"], "events must be delivered in enqueue order")
	}
}

func TestBroadcastToRoom_RoomIsolation(t *testing.T) {
	f := newFixture()
	connA := f.connect("acc_a")
	connB := f.connect("acc_b")

	roomA, err := f.roomManager.Join("", "acc_a", "alice")
	require.NoError(t, err)
	_, err = f.roomManager.Join("", "acc_b", "bob")
	require.NoError(t, err)

	require.NoError(t, f.broadcaster.BroadcastToRoom(roomA, models.EventEffectEvent,
		map[string]interface{}{"type": "explosion"}))

	waitFor(t, func() bool {
		for _, env := range connA.Envelopes(t) {
			if env.Event == models.EventEffectEvent {
				return true
			}
		}
		return false
	})

	for _, env := range connB.Envelopes(t) {
		assert.NotEqual(t, models.EventEffectEvent, env.Event,
			"a room's events must not leak to another room's members")
	}
}

func TestBroadcastToAccounts_Direct(t *testing.T) {
	f := newFixture()
	connA := f.connect("acc_a")
	connB := f.connect("acc_b")

	require.NoError(t, f.broadcaster.BroadcastToAccounts([]string{"acc_a"},
		"admin-notice", map[string]interface{}{"text": "maintenance"}))

	envs := connA.Envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "admin-notice", envs[0].Event)
	assert.Empty(t, connB.Envelopes(t))
}

func TestCloseRoom_StopsDispatch(t *testing.T) {
	f := newFixture()
	conn := f.connect("acc_a")

	roomID, err := f.roomManager.Join("", "acc_a", "alice")
	require.NoError(t, err)
	waitFor(t, func() bool { return len(conn.Envelopes(t)) >= 1 })

	_, err = f.roomManager.Leave(roomID, "acc_a")
	require.NoError(t, err)

	// Enqueue after teardown recreates a queue whose dispatcher drops events
	f.broadcaster.BroadcastToRoom(roomID, models.EventChatMessage, map[string]interface{}{"late": true})

	time.Sleep(50 * time.Millisecond)
	for _, env := range conn.Envelopes(t) {
		assert.Nil(t, env.Payload["late"], "events for removed rooms must be dropped")
	}
}
