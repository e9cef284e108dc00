package storage

import (
	"context"
	"strangerchat/backend/internal/models"
	"time"

	"go.uber.org/zap"
)

// DefaultRecorderBuffer is the number of pending audit writes a Recorder holds.
const DefaultRecorderBuffer = 1024

type recordJob struct {
	started bool
	session models.Session
	reason  models.EndReason
	at      time.Time
}

// Recorder writes the session audit off the hub goroutine. It implements the
// hub's SessionObserver; its methods never block. When the buffer is full the
// write is dropped and logged.
type Recorder struct {
	store   Storage
	jobs    chan recordJob
	timeout time.Duration
	log     *zap.Logger
}

func NewRecorder(store Storage, buf int, log *zap.Logger) *Recorder {
	if buf <= 0 {
		buf = DefaultRecorderBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		jobs:    make(chan recordJob, buf),
		timeout: 5 * time.Second,
		log:     log.Named("recorder"),
	}
}

func (r *Recorder) SessionStarted(s models.Session) {
	r.enqueue(recordJob{started: true, session: s, at: s.Started()})
}

func (r *Recorder) SessionEnded(s models.Session, reason models.EndReason, at time.Time) {
	r.enqueue(recordJob{session: s, reason: reason, at: at})
}

func (r *Recorder) enqueue(j recordJob) {
	select {
	case r.jobs <- j:
	default:
		r.log.Warn("audit buffer full, dropping record", zap.String("session_id", j.session.SessionID()))
	}
}

// Run writes queued records until ctx is cancelled, then flushes what is
// already buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case j := <-r.jobs:
			r.write(ctx, j)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	for {
		select {
		case j := <-r.jobs:
			r.write(ctx, j)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, j recordJob) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	s := j.session
	ev := SessionEvent{
		SessionID: s.SessionID(),
		Mode:      s.SessionMode(),
		Members:   s.Members(),
		At:        j.at,
	}

	if j.started {
		ev.Type = SessionEventStarted
		if err := r.store.SaveRoom(ctx, models.NewChatRoom(s)); err != nil {
			r.log.Error("save room", zap.String("session_id", ev.SessionID), zap.Error(err))
		}
	} else {
		ev.Type = SessionEventEnded
		ev.Reason = j.reason
		if err := r.store.CloseRoom(ctx, ev.SessionID, j.reason, j.at); err != nil {
			r.log.Error("close room", zap.String("session_id", ev.SessionID), zap.Error(err))
		}
	}

	if err := r.store.PublishSessionEvent(ctx, ev); err != nil {
		r.log.Warn("publish session event", zap.String("session_id", ev.SessionID), zap.Error(err))
	}
}
