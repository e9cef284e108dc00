package models

import "time"

// Spy display roles handed out at triad formation.
const (
	SpyRoleQuestioner = "questioner"
	SpyRoleStranger1  = "stranger1"
	SpyRoleStranger2  = "stranger2"
)

// EndReason tells why a session was dissolved.
type EndReason string

const (
	EndReasonEnded        EndReason = "ended"
	EndReasonDisconnected EndReason = "disconnected"
	EndReasonRestart      EndReason = "restart"
)

// Session is either a *Pair or a *Triad.
type Session interface {
	SessionID() string
	SessionMode() Mode
	Members() []string
	Started() time.Time
}

// Pair is a two-party text, video or interests session.
type Pair struct {
	ID              string
	Mode            Mode
	A, B            string
	CommonInterests []string
	StartedAt       time.Time
}

func (p *Pair) SessionID() string  { return p.ID }
func (p *Pair) SessionMode() Mode  { return p.Mode }
func (p *Pair) Members() []string  { return []string{p.A, p.B} }
func (p *Pair) Started() time.Time { return p.StartedAt }

// Other returns the member of p that is not id.
func (p *Pair) Other(id string) string {
	if id == p.A {
		return p.B
	}
	return p.A
}

// Triad is a spy session: two watchers chat while the questioner observes.
type Triad struct {
	RoomID     string
	Questioner string
	Watcher1   string
	Watcher2   string
	Question   string
	StartedAt  time.Time
}

func (t *Triad) SessionID() string  { return t.RoomID }
func (t *Triad) SessionMode() Mode  { return ModeSpy }
func (t *Triad) Members() []string  { return []string{t.Questioner, t.Watcher1, t.Watcher2} }
func (t *Triad) Started() time.Time { return t.StartedAt }

// IsWatcherPair reports whether a and b are the two watchers of t, in either order.
func (t *Triad) IsWatcherPair(a, b string) bool {
	return (a == t.Watcher1 && b == t.Watcher2) || (a == t.Watcher2 && b == t.Watcher1)
}
