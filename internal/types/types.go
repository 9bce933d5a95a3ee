package types

import "github.com/DoyleJ11/handfill/internal/room"

const (
	MsgSnapshot = "Snapshot"
	MsgError    = "Error"
)

// ServerMessage is pushed over the watch websocket.
type ServerMessage struct {
	Type    string     `json:"type"` // "Snapshot" | "Error"
	Key     string     `json:"key,omitempty"`
	Version int64      `json:"version"`
	Room    *room.Room `json:"room"`
	Error   string     `json:"error,omitempty"`
}

type PutRequest struct {
	ExpectedVersion int64      `json:"expectedVersion"`
	Room            *room.Room `json:"room"`
}

// DocumentResponse is one committed document; Room is null when it does not exist.
type DocumentResponse struct {
	Key     string     `json:"key"`
	Version int64      `json:"version"`
	Room    *room.Room `json:"room"`
}

type KeysResponse struct {
	Keys []string `json:"keys"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
