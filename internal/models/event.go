package models

// EventRoomUpdate is the type tag of room update events.
const EventRoomUpdate = "ROOM_UPDATE"

// Push channel control actions sent by clients.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// RoomUpdate is the event delivered to subscribers when a room changes.
type RoomUpdate struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Room   Room   `json:"room"`
}

// NewRoomUpdate wraps room in an update event.
func NewRoomUpdate(room Room) RoomUpdate {
	return RoomUpdate{Type: EventRoomUpdate, RoomID: room.ID, Room: room}
}

// SubscribeMessage is sent by push channel clients to manage room subscriptions.
type SubscribeMessage struct {
	Action string `json:"action"`
	RoomID string `json:"roomId"`
}
