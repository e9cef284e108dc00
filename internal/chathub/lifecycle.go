package chathub

import (
	"strangerchat/backend/internal/models"

	"go.uber.org/zap"
)

// EndChat handles an explicit endChat from id. A session, if any, is
// dissolved and the others are told chatEnded; a pending search is cancelled.
// id stays registered and idle. Repeated calls are no-ops.
func (e *engine) EndChat(id string) bool {
	rec, ok := e.registry.Get(id)
	if !ok {
		return false
	}
	ended := e.dissolve(rec, models.EndReasonEnded)
	e.rooms.RemoveAll(id)
	rec.ResetToIdle()
	return ended
}

// Disconnect tears down everything id holds and forgets it. Partners are told
// partnerDisconnected. Unknown ids are ignored.
func (e *engine) Disconnect(id string) bool {
	rec, ok := e.registry.Get(id)
	if !ok {
		return false
	}
	e.dissolve(rec, models.EndReasonDisconnected)
	e.rooms.RemoveAll(id)
	e.registry.Remove(id)
	return true
}

// dissolve ends the session rec belongs to. Every other member that is still
// registered is notified first and then reset to idle.
func (e *engine) dissolve(rec *models.Connection, reason models.EndReason) bool {
	if rec.SessionID == "" {
		return false
	}
	s, ok := e.sessions[rec.SessionID]
	if !ok {
		// Linkage without a session: clear it so the record can search again.
		rec.PartnerID = ""
		rec.SessionID = ""
		return false
	}
	delete(e.sessions, rec.SessionID)

	evType := models.EventChatEnded
	if reason == models.EndReasonDisconnected {
		evType = models.EventPartnerDisconnected
	}

	for _, member := range s.Members() {
		if member == rec.ID {
			continue
		}
		other, ok := e.registry.Get(member)
		if !ok || other.SessionID != s.SessionID() {
			continue
		}
		e.notify(member, models.Event{Type: evType})
		other.ResetToIdle()
	}

	e.observer.SessionEnded(s, reason, e.now())
	e.log.Info("session dissolved",
		zap.String("session_id", s.SessionID()),
		zap.String("conn_id", rec.ID),
		zap.String("reason", string(reason)),
	)
	return true
}
