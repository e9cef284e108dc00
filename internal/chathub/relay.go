package chathub

import "strangerchat/backend/internal/models"

// RelayResult reports what a relay call did.
type RelayResult struct {
	Delivered bool
	Mirrored  bool
}

// RelayMessage forwards a chat message with a server timestamp.
func (e *engine) RelayMessage(from string, req models.MessageRequest) RelayResult {
	ev := models.Event{Type: models.EventMessage, Data: models.RelayedMessage{
		From:      from,
		Text:      req.Text,
		Timestamp: e.now(),
	}}
	return e.relay(from, req.To, ev, true)
}

// RelayTyping forwards a typing indicator.
func (e *engine) RelayTyping(from string, req models.TypingRequest) RelayResult {
	ev := models.Event{Type: models.EventTyping, Data: models.RelayedTyping{
		From:     from,
		IsTyping: req.IsTyping,
	}}
	return e.relay(from, req.To, ev, true)
}

// RelaySignal forwards a negotiation payload without looking at it.
// Signals are never mirrored to a spy questioner.
func (e *engine) RelaySignal(from string, req models.SignalRequest) RelayResult {
	ev := models.Event{Type: models.EventSignal, Data: models.RelayedSignal{
		From:   from,
		Signal: req.Signal,
	}}
	return e.relay(from, req.To, ev, false)
}

// relay delivers ev to `to` if it is still registered. Missing targets are
// dropped silently. When mirror is set and from/to are the watchers of a
// triad, the questioner gets a copy.
func (e *engine) relay(from, to string, ev models.Event, mirror bool) RelayResult {
	var res RelayResult
	if to == "" || to == from {
		return res
	}
	sender, ok := e.registry.Get(from)
	if !ok {
		return res
	}

	if _, ok := e.registry.Get(to); ok {
		e.notify(to, ev)
		res.Delivered = true
	}

	if !mirror || sender.SessionID == "" {
		return res
	}
	t, ok := e.sessions[sender.SessionID].(*models.Triad)
	if !ok || !t.IsWatcherPair(from, to) {
		return res
	}
	if _, ok := e.registry.Get(t.Questioner); ok {
		e.notify(t.Questioner, ev)
		res.Mirrored = true
	}
	return res
}
