package room

import (
	"sync"
	"testing"
	"time"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/models"
)

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	m.Run()
}

// MockBroadcaster is a test double for the Broadcaster interface.
// It records every event so tests can assert on fan-out behavior.
type MockBroadcaster struct {
	mutex  sync.Mutex
	events []RecordedEvent
	closed []string
}

type RecordedEvent struct {
	RoomID  string
	Event   string
	Payload map[string]interface{}
}

func (m *MockBroadcaster) BroadcastToRoom(roomID string, event string, payload map[string]interface{}) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events = append(m.events, RecordedEvent{RoomID: roomID, Event: event, Payload: payload})
	return nil
}

func (m *MockBroadcaster) CloseRoom(roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = append(m.closed, roomID)
}

func (m *MockBroadcaster) Events() []RecordedEvent {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]RecordedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// CountSubtype counts system-message events with the given subtype.
func (m *MockBroadcaster) CountSubtype(subtype string) int {
	count := 0
	for _, e := range m.Events() {
		if e.Event == models.EventSystemMessage && e.Payload["subtype"] == subtype {
			count++
		}
	}
	return count
}

func newTestManager() (*Manager, *MockBroadcaster) {
	manager := NewManager(8, time.Minute)
	mockBroadcaster := &MockBroadcaster{}
	manager.SetBroadcaster(mockBroadcaster)
	return manager, mockBroadcaster
}

func TestManager_JoinCreatesRoom(t *testing.T) {
	manager, _ := newTestManager()

	roomID, err := manager.Join("", "acc_1", "alice")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if roomID == "" {
		t.Fatal("Join should return a generated room ID")
	}

	r, exists := manager.Get(roomID)
	if !exists {
		t.Fatal("Get should find the created room")
	}
	if r.MemberCount() != 1 {
		t.Errorf("Expected member count to be 1, got %d", r.MemberCount())
	}
}

func TestManager_JoinOrCreateWithExplicitID(t *testing.T) {
	manager, _ := newTestManager()

	roomID, err := manager.Join("custom_room", "acc_1", "alice")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if roomID != "custom_room" {
		t.Errorf("Expected room ID custom_room, got %s", roomID)
	}

	// Second caller joins the same room
	roomID2, err := manager.Join("custom_room", "acc_2", "bob")
	if err != nil {
		t.Fatalf("Second join failed: %v", err)
	}
	if roomID2 != roomID {
		t.Errorf("Expected both callers in room %s, got %s", roomID, roomID2)
	}

	r, _ := manager.Get(roomID)
	if r.MemberCount() != 2 {
		t.Errorf("Expected member count to be 2, got %d", r.MemberCount())
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 room, got %d", manager.Count())
	}
}

func TestManager_LastLeaveRemovesRoom(t *testing.T) {
	manager, mockBroadcaster := newTestManager()

	roomID, _ := manager.Join("", "acc_1", "alice")
	manager.Join(roomID, "acc_2", "bob")

	if _, err := manager.Leave(roomID, "acc_1"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if _, exists := manager.Get(roomID); !exists {
		t.Fatal("Room should survive while members remain")
	}

	if _, err := manager.Leave(roomID, "acc_2"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if _, exists := manager.Get(roomID); exists {
		t.Fatal("Room should be removed after the last member leaves")
	}

	mockBroadcaster.mutex.Lock()
	closed := len(mockBroadcaster.closed)
	mockBroadcaster.mutex.Unlock()
	if closed != 1 {
		t.Errorf("Expected broadcaster CloseRoom to be called once, got %d", closed)
	}
}

func TestRoom_JoinFull(t *testing.T) {
	mockBroadcaster := &MockBroadcaster{}
	r := NewRoom("full_room", 1, mockBroadcaster, nil)

	if err := r.Join("acc_1", "alice"); err != nil {
		t.Fatalf("Failed to add the first player: %v", err)
	}
	if err := r.Join("acc_2", "bob"); err == nil {
		t.Fatal("Should not be able to join a full room")
	}
	if r.MemberCount() != 1 {
		t.Errorf("Expected member count to be 1, got %d", r.MemberCount())
	}
}

func TestManager_IdleRoomExpiry(t *testing.T) {
	manager, _ := newTestManager()
	manager.idleTimeout = time.Millisecond

	// A room that lost its members without teardown (defensive path)
	r := manager.getOrCreate("stale_room")
	if r.MemberCount() != 0 {
		t.Fatal("Setup failed: room should be empty")
	}

	time.Sleep(5 * time.Millisecond)
	manager.TickAll(100)

	if _, exists := manager.Get("stale_room"); exists {
		t.Error("Idle empty room should be expired by TickAll")
	}
}
