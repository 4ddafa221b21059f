// state/interfaces.go
package state

// RoomContext defines the interface that a Room must implement to be managed
// by the phase machine. This breaks the import cycle between room and state.
// Phase transitions happen inside the room's critical section, so states must
// not call back into locking room methods; broadcast enqueue is safe.
type RoomContext interface {
	GetID() string
	Broadcast(event string, payload map[string]interface{}) error
}
