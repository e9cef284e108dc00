package chathub

import "strangerchat/backend/internal/models"

// QueueKey names one waiting-room queue.
type QueueKey string

const (
	QueueText           QueueKey = "text"
	QueueVideo          QueueKey = "video"
	QueueInterests      QueueKey = "interests"
	QueueSpyQuestioners QueueKey = "spy.questioners"
	QueueSpyWatchers    QueueKey = "spy.watchers"
)

// AllQueues lists every queue in a stable order.
var AllQueues = []QueueKey{QueueText, QueueVideo, QueueInterests, QueueSpyQuestioners, QueueSpyWatchers}

// QueueFor returns the queue an intent belongs to.
func QueueFor(in models.Intent) QueueKey {
	switch in.Mode {
	case models.ModeVideo:
		return QueueVideo
	case models.ModeInterests:
		return QueueInterests
	case models.ModeSpy:
		if in.Role == models.RoleQuestioner {
			return QueueSpyQuestioners
		}
		return QueueSpyWatchers
	default:
		return QueueText
	}
}

// WaitingRooms keeps the per-mode queues of records awaiting a match.
// A record is in at most one queue at a time. Like Registry it belongs to the
// ManagerService goroutine.
type WaitingRooms struct {
	queues map[QueueKey][]*models.Connection
	// where maps a connection id to the queue holding it.
	where map[string]QueueKey
}

func NewWaitingRooms() *WaitingRooms {
	w := &WaitingRooms{
		queues: make(map[QueueKey][]*models.Connection, len(AllQueues)),
		where:  make(map[string]QueueKey),
	}
	for _, k := range AllQueues {
		w.queues[k] = nil
	}
	return w
}

// Enqueue appends rec to the tail of key. It refuses (returns false) when rec
// is already queued anywhere; callers evict with RemoveAll first.
func (w *WaitingRooms) Enqueue(key QueueKey, rec *models.Connection) bool {
	if _, queued := w.where[rec.ID]; queued {
		return false
	}
	w.queues[key] = append(w.queues[key], rec)
	w.where[rec.ID] = key
	return true
}

// DequeueFront pops the oldest record of key.
func (w *WaitingRooms) DequeueFront(key QueueKey) (*models.Connection, bool) {
	q := w.queues[key]
	if len(q) == 0 {
		return nil, false
	}
	rec := q[0]
	q[0] = nil
	w.queues[key] = q[1:]
	delete(w.where, rec.ID)
	return rec, true
}

// Take removes the records at the given positions of key and returns them in
// the order requested.
func (w *WaitingRooms) Take(key QueueKey, idx ...int) []*models.Connection {
	q := w.queues[key]
	out := make([]*models.Connection, 0, len(idx))
	drop := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		out = append(out, q[i])
		drop[i] = struct{}{}
	}

	kept := q[:0]
	for i, rec := range q {
		if _, ok := drop[i]; ok {
			delete(w.where, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	for i := len(kept); i < len(q); i++ {
		q[i] = nil
	}
	w.queues[key] = kept
	return out
}

// RemoveAll scans every queue and evicts id wherever it is found. It reports
// whether the record was queued.
func (w *WaitingRooms) RemoveAll(id string) bool {
	removed := false
	for _, key := range AllQueues {
		q := w.queues[key]
		kept := q[:0]
		for _, rec := range q {
			if rec.ID == id {
				removed = true
				continue
			}
			kept = append(kept, rec)
		}
		for i := len(kept); i < len(q); i++ {
			q[i] = nil
		}
		w.queues[key] = kept
	}
	delete(w.where, id)
	return removed
}

// QueueOf reports which queue holds id.
func (w *WaitingRooms) QueueOf(id string) (QueueKey, bool) {
	key, ok := w.where[id]
	return key, ok
}

func (w *WaitingRooms) Len(key QueueKey) int { return len(w.queues[key]) }

// Members returns the queue in arrival order. The slice must not be modified.
func (w *WaitingRooms) Members(key QueueKey) []*models.Connection { return w.queues[key] }

// Depths returns the length of every queue.
func (w *WaitingRooms) Depths() map[QueueKey]int {
	out := make(map[QueueKey]int, len(w.queues))
	for k, q := range w.queues {
		out[k] = len(q)
	}
	return out
}
