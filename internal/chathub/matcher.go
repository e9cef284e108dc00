package chathub

import (
	"strangerchat/backend/internal/models"

	"go.uber.org/zap"
)

// match runs the rule of the queue that just grew.
func (e *engine) match(key QueueKey) {
	switch key {
	case QueueText, QueueVideo:
		e.matchFIFO(key)
	case QueueInterests:
		e.matchInterests()
	case QueueSpyQuestioners, QueueSpyWatchers:
		e.matchSpy()
	}
}

// matchFIFO pairs the two oldest records of a text or video queue.
// The language tag is deliberately not consulted.
func (e *engine) matchFIFO(key QueueKey) {
	for e.rooms.Len(key) >= 2 {
		a, _ := e.rooms.DequeueFront(key)
		b, _ := e.rooms.DequeueFront(key)

		p := e.startPair(models.Mode(key), a, b, nil)

		e.notify(a.ID, models.Event{Type: models.EventMatched, Data: models.Matched{PartnerID: b.ID}})
		e.notify(b.ID, models.Event{Type: models.EventMatched, Data: models.Matched{PartnerID: a.ID}})

		e.log.Info("pair matched",
			zap.String("session_id", p.ID),
			zap.String("mode", string(p.Mode)),
		)
	}
}

// matchInterests pairs the two queued records sharing the most interests.
func (e *engine) matchInterests() {
	for e.rooms.Len(QueueInterests) >= 2 {
		i, j := bestInterestsPair(e.rooms.Members(QueueInterests))
		taken := e.rooms.Take(QueueInterests, i, j)
		a, b := taken[0], taken[1]

		common := models.CommonInterests(a.Interests, b.Interests)
		p := e.startPair(models.ModeInterests, a, b, common)

		e.notify(a.ID, models.Event{Type: models.EventInterestsMatched, Data: models.InterestsMatched{PartnerID: b.ID, CommonInterests: common}})
		e.notify(b.ID, models.Event{Type: models.EventInterestsMatched, Data: models.InterestsMatched{PartnerID: a.ID, CommonInterests: common}})

		e.log.Info("interests matched",
			zap.String("session_id", p.ID),
			zap.Int("common", len(common)),
		)
	}
}

// bestInterestsPair returns the positions i < j of the pair with the largest
// interest intersection. Ties go to the earliest arrivals. The queue must
// hold at least two records.
func bestInterestsPair(q []*models.Connection) (int, int) {
	bi, bj, best := 0, 1, -1
	for i := 0; i < len(q); i++ {
		for j := i + 1; j < len(q); j++ {
			score := len(models.CommonInterests(q[i].Interests, q[j].Interests))
			if score > best {
				bi, bj, best = i, j, score
			}
		}
	}
	return bi, bj
}

// matchSpy forms a triad from the oldest questioner and the two oldest watchers.
func (e *engine) matchSpy() {
	for e.rooms.Len(QueueSpyQuestioners) >= 1 && e.rooms.Len(QueueSpyWatchers) >= 2 {
		q, _ := e.rooms.DequeueFront(QueueSpyQuestioners)
		w1, _ := e.rooms.DequeueFront(QueueSpyWatchers)
		w2, _ := e.rooms.DequeueFront(QueueSpyWatchers)

		t := &models.Triad{
			RoomID:     "spy_" + e.newID(),
			Questioner: q.ID,
			Watcher1:   w1.ID,
			Watcher2:   w2.ID,
			Question:   q.Question,
			StartedAt:  e.now(),
		}
		for _, rec := range []*models.Connection{q, w1, w2} {
			rec.Status = models.StatusConnected
			rec.SessionID = t.RoomID
		}
		q.PartnerID = ""
		w1.PartnerID = w2.ID
		w2.PartnerID = w1.ID
		e.sessions[t.RoomID] = t

		e.notify(q.ID, models.Event{Type: models.EventSpyMatched, Data: models.SpyMatched{
			RoomID:    t.RoomID,
			Role:      models.SpyRoleQuestioner,
			Strangers: []string{w1.ID, w2.ID},
		}})
		e.notify(w1.ID, models.Event{Type: models.EventSpyMatched, Data: models.SpyMatched{
			RoomID:     t.RoomID,
			Role:       models.SpyRoleStranger1,
			Questioner: q.ID,
			Partner:    w2.ID,
			Question:   t.Question,
		}})
		e.notify(w2.ID, models.Event{Type: models.EventSpyMatched, Data: models.SpyMatched{
			RoomID:     t.RoomID,
			Role:       models.SpyRoleStranger2,
			Questioner: q.ID,
			Partner:    w1.ID,
			Question:   t.Question,
		}})

		e.observer.SessionStarted(t)
		e.log.Info("spy triad formed", zap.String("session_id", t.RoomID))
	}
}

// startPair links a and b symmetrically and records the session.
func (e *engine) startPair(mode models.Mode, a, b *models.Connection, common []string) *models.Pair {
	p := &models.Pair{
		ID:              e.newID(),
		Mode:            mode,
		A:               a.ID,
		B:               b.ID,
		CommonInterests: common,
		StartedAt:       e.now(),
	}
	a.Status, b.Status = models.StatusConnected, models.StatusConnected
	a.PartnerID, b.PartnerID = b.ID, a.ID
	a.SessionID, b.SessionID = p.ID, p.ID
	e.sessions[p.ID] = p

	e.observer.SessionStarted(p)
	return p
}
