package network

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodePacket(t *testing.T) {
	payload := []byte(`{"nickname":"alice"}`)
	raw := EncodePacket(MsgTypeJoinRoom, payload)

	packet, err := DecodePacket(raw)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}

	if packet.MsgID != MsgTypeJoinRoom {
		t.Errorf("Expected msg ID %d, got %d", MsgTypeJoinRoom, packet.MsgID)
	}
	if int(packet.Length) != len(payload) {
		t.Errorf("Expected length %d, got %d", len(payload), packet.Length)
	}
	if !bytes.Equal(packet.Data, payload) {
		t.Errorf("Payload mismatch: %q", packet.Data)
	}
}

func TestDecodePacket_Empty(t *testing.T) {
	raw := EncodePacket(MsgTypeToggleReady, nil)
	packet, err := DecodePacket(raw)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	if len(packet.Data) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(packet.Data))
	}
}

func TestDecodePacket_Short(t *testing.T) {
	if _, err := DecodePacket([]byte{0, 1}); err != io.ErrShortBuffer {
		t.Errorf("Expected io.ErrShortBuffer, got %v", err)
	}
}
