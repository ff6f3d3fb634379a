package sync

import "time"

const (
	ReasonStaleWrite = "stale_write"
	ReasonMissing    = "missing"
	ReasonNotAllowed = "not_allowed"
)

// Conflict is a rejected operation: a structured response item, not an
// error. The client re-fetches, then decides whether to discard or
// reapply its local change.
type Conflict struct {
	OperationID     string     `json:"operationId"`
	Op              string     `json:"op"`
	ID              string     `json:"id"`
	ClientUpdatedAt *time.Time `json:"clientUpdatedAt"`
	ServerUpdatedAt time.Time  `json:"serverUpdatedAt"`
	ServerEntity    any        `json:"serverEntity"`
	Reason          string     `json:"reason"`
}

type Applied struct {
	OperationID string `json:"operationId"`
	Op          string `json:"op"`
	ID          string `json:"id"`
	Entity      any    `json:"entity,omitempty"`
}

type Result struct {
	Applied   []Applied  `json:"applied"`
	Conflicts []Conflict `json:"conflicts"`
}

// stale reports whether the server row is strictly newer than the client
// believed. An equal timestamp accepts the write: the client saw the
// current state.
func stale(clientUpdatedAt *time.Time, serverUpdatedAt time.Time) bool {
	return clientUpdatedAt != nil && serverUpdatedAt.After(*clientUpdatedAt)
}

func conflict(op Operation, serverUpdatedAt time.Time, entity any, reason string) Conflict {
	return Conflict{
		OperationID:     op.OperationID,
		Op:              op.Op,
		ID:              op.ID,
		ClientUpdatedAt: op.ClientUpdatedAt,
		ServerUpdatedAt: serverUpdatedAt,
		ServerEntity:    entity,
		Reason:          reason,
	}
}
