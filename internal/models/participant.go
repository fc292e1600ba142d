package models

// Participant is a named member of a room. Only tracked by server-side backends.
type Participant struct {
	ID       string  `json:"id"` // ULID
	Name     *string `json:"name"`
	JoinedAt int64   `json:"joinedAt"` // Unix ms
}
