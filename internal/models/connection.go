package models

import "time"

// Mode is the kind of session a client is searching for.
type Mode string

const (
	ModeText      Mode = "text"
	ModeVideo     Mode = "video"
	ModeSpy       Mode = "spy"
	ModeInterests Mode = "interests"
)

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeText, ModeVideo, ModeSpy, ModeInterests:
		return true
	}
	return false
}

// Role is the part a client plays in a spy session.
type Role string

const (
	RoleQuestioner Role = "questioner"
	RoleWatcher    Role = "watcher"
)

// Status is the position of a connection in the idle -> searching -> connected cycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusConnected Status = "connected"
)

// Connection is the state the hub keeps for one live client connection.
// It is owned by the hub goroutine and must not be shared with transports.
type Connection struct {
	// ID is the relay address of the connection. It never changes.
	ID string `json:"id"`

	Mode      Mode     `json:"mode,omitempty"`
	Language  string   `json:"language,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Role      Role     `json:"role,omitempty"`
	Question  string   `json:"question,omitempty"`

	Status Status `json:"status"`

	// PartnerID is set only while connected. For spy watchers it is the other
	// watcher; the questioner of a triad has no partner.
	PartnerID string `json:"partnerId,omitempty"`
	// SessionID links the connection to its Pair or Triad.
	SessionID string `json:"sessionId,omitempty"`

	// SearchSeq grows with every accepted search so expiry timers can tell
	// whether they still refer to the current wait.
	SearchSeq       uint64    `json:"-"`
	SearchStartedAt time.Time `json:"-"`
	ConnectedAt     time.Time `json:"connectedAt"`
}

// NewConnection returns an idle record for a freshly opened connection.
func NewConnection(id string, now time.Time) *Connection {
	return &Connection{
		ID:          id,
		Status:      StatusIdle,
		ConnectedAt: now,
	}
}

// ResetToIdle drops all session and search state but keeps the identity.
func (c *Connection) ResetToIdle() {
	c.Status = StatusIdle
	c.PartnerID = ""
	c.SessionID = ""
	c.SearchStartedAt = time.Time{}
}

// Snapshot returns a copy that is safe to hand out of the hub goroutine.
func (c *Connection) Snapshot() Connection {
	cp := *c
	if c.Interests != nil {
		cp.Interests = append([]string(nil), c.Interests...)
	}
	return cp
}
