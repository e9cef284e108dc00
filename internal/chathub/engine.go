package chathub

import (
	"errors"
	"fmt"
	"strangerchat/backend/internal/models"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyConnected rejects a search from a connection that is in a session.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrUnknownConnection marks a stale reference. It is never shown to clients.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Notifier delivers an outbound event to a connection id.
type Notifier func(to string, ev models.Event)

// SessionObserver hears about sessions forming and dissolving.
type SessionObserver interface {
	SessionStarted(s models.Session)
	SessionEnded(s models.Session, reason models.EndReason, at time.Time)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(models.Session)                            {}
func (nopObserver) SessionEnded(models.Session, models.EndReason, time.Time) {}

// Stats is a point-in-time view of the hub state.
type Stats struct {
	Connections int              `json:"connections"`
	Idle        int              `json:"idle"`
	Searching   int              `json:"searching"`
	Connected   int              `json:"connected"`
	Sessions    int              `json:"sessions"`
	Queues      map[QueueKey]int `json:"queues"`
}

// engine is the synchronous core: registry, waiting rooms, matching, relay
// and teardown. Every method runs to completion without blocking, so a
// single caller goroutine makes each operation atomic.
type engine struct {
	registry *Registry
	rooms    *WaitingRooms
	sessions map[string]models.Session

	notify   Notifier
	observer SessionObserver
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
}

func newEngine(notify Notifier, observer SessionObserver, now func() time.Time, log *zap.Logger) *engine {
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &engine{
		registry: NewRegistry(),
		rooms:    NewWaitingRooms(),
		sessions: make(map[string]models.Session),
		notify:   notify,
		observer: observer,
		now:      now,
		newID:    uuid.NewString,
		log:      log,
	}
}

// Open registers a new idle connection.
func (e *engine) Open(id string) (*models.Connection, bool) {
	return e.registry.Create(id, e.now())
}

// Search validates the request, moves the record into the right queue and
// runs the matcher for that queue.
func (e *engine) Search(id string, req models.SearchRequest) (*models.Connection, error) {
	rec, ok := e.registry.Get(id)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if rec.Status == models.StatusConnected {
		return rec, ErrAlreadyConnected
	}

	in, err := req.Validate()
	if err != nil {
		return rec, err
	}

	// A repeated search replaces the previous one.
	e.rooms.RemoveAll(id)

	rec.Mode = in.Mode
	rec.Language = in.Language
	rec.Interests = in.Interests
	rec.Role = in.Role
	rec.Question = in.Question
	rec.Status = models.StatusSearching
	rec.PartnerID = ""
	rec.SessionID = ""
	rec.SearchSeq++
	rec.SearchStartedAt = e.now()

	key := QueueFor(in)
	if !e.rooms.Enqueue(key, rec) {
		// RemoveAll above makes this unreachable.
		rec.ResetToIdle()
		return rec, fmt.Errorf("enqueue %s into %s: already queued", id, key)
	}

	e.log.Debug("search queued",
		zap.String("conn_id", id),
		zap.String("mode", string(in.Mode)),
		zap.String("queue", string(key)),
	)
	e.notify(id, models.Event{Type: models.EventSearching, Data: models.Searching{Mode: in.Mode}})

	e.match(key)
	return rec, nil
}

// Expire ends a search that is still waiting under generation seq.
func (e *engine) Expire(id string, seq uint64) bool {
	rec, ok := e.registry.Get(id)
	if !ok || rec.Status != models.StatusSearching || rec.SearchSeq != seq {
		return false
	}
	e.rooms.RemoveAll(id)
	rec.ResetToIdle()
	e.notify(id, models.Event{Type: models.EventSearchTimeout, Data: models.SearchTimeout{Mode: rec.Mode}})
	return true
}

// Inspect returns a copy of the record for id.
func (e *engine) Inspect(id string) (models.Connection, bool) {
	rec, ok := e.registry.Get(id)
	if !ok {
		return models.Connection{}, false
	}
	snap := rec.Snapshot()
	return snap, true
}

func (e *engine) Stats() Stats {
	byStatus := e.registry.CountByStatus()
	return Stats{
		Connections: e.registry.Len(),
		Idle:        byStatus[models.StatusIdle],
		Searching:   byStatus[models.StatusSearching],
		Connected:   byStatus[models.StatusConnected],
		Sessions:    len(e.sessions),
		Queues:      e.rooms.Depths(),
	}
}
