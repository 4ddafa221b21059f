package server

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/network"
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

func (c *CaptureConnection) LastPacket(t *testing.T) *network.Packet {
	t.Helper()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	require.NotEmpty(t, c.packets, "expected a reply packet")
	return c.packets[len(c.packets)-1]
}

func newPingFixture() (*GameServer, *session.Session, *CaptureConnection) {
	conn := &CaptureConnection{}
	sess := session.NewSession("sess_ping", "acc_ping", conn)
	return &GameServer{}, sess, conn
}

func TestHandlePing_EchoesClientTime(t *testing.T) {
	s, sess, conn := newPingFixture()

	s.handlePing(sess, &network.Packet{
		MsgID: network.MsgTypePing,
		Data:  []byte(`{"clientPingTime":1724400000123}`),
	})

	reply := conn.LastPacket(t)
	assert.Equal(t, uint16(network.MsgTypePing), reply.MsgID)

	var pong map[string]interface{}
	require.NoError(t, json.Unmarshal(reply.Data, &pong))
	assert.Equal(t, float64(1724400000123), pong["clientPingTime"], "pong must echo the probe timestamp unchanged")
	assert.Greater(t, pong["serverPongTime"], float64(0))
}

func TestHandlePing_MalformedPayloadEchoesNull(t *testing.T) {
	malformed := [][]byte{
		[]byte(`{"clientPingTime":`),
		[]byte(`not json at all`),
		[]byte(`{"clientPingTime":"later"}`),
	}

	for _, data := range malformed {
		s, sess, conn := newPingFixture()

		s.handlePing(sess, &network.Packet{MsgID: network.MsgTypePing, Data: data})

		reply := conn.LastPacket(t)
		require.Equal(t, uint16(network.MsgTypePing), reply.MsgID,
			"ping must reply even on malformed input: %q", data)

		var pong map[string]interface{}
		require.NoError(t, json.Unmarshal(reply.Data, &pong))
		assert.Nil(t, pong["clientPingTime"], "malformed probe gets a null echo, payload %q", data)
		assert.Greater(t, pong["serverPongTime"], float64(0))
	}
}

func TestHandlePing_MissingFieldEchoesNull(t *testing.T) {
	s, sess, conn := newPingFixture()

	s.handlePing(sess, &network.Packet{MsgID: network.MsgTypePing, Data: []byte(`{}`)})

	var pong map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.LastPacket(t).Data, &pong))
	assert.Nil(t, pong["clientPingTime"])
}
