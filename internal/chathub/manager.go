package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"strangerchat/backend/internal/metrics"
	"strangerchat/backend/internal/models"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrHubStopped is returned by queries made after Run has returned.
var ErrHubStopped = errors.New("chat hub stopped")

// Options configures a ManagerService. Zero values are usable.
type Options struct {
	// Clock drives message timestamps and search expiry. Defaults to the wall clock.
	Clock clock.Clock
	// SearchTimeout bounds how long a search may wait. Zero disables expiry.
	SearchTimeout time.Duration
	// Observer is told about every session formed and dissolved.
	Observer SessionObserver
	// Metrics defaults to collectors on a private registry.
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type expiry struct {
	id  string
	seq uint64
}

// ManagerService is the hub. One goroutine (Run) owns the registry, the
// waiting rooms, the sessions and the client table; everything else talks to
// it over channels, which makes every search, match and teardown atomic.
type ManagerService struct {
	registerCh   chan Client
	unregisterCh chan Client
	incomingCh   chan models.InboundEvent
	expireCh     chan expiry
	opsCh        chan func()
	done         chan struct{}

	clients map[string]Client
	engine  *engine
	timers  map[string]*clock.Timer
	// evict collects clients whose send buffer overflowed during the current
	// operation.
	evict []string

	clock         clock.Clock
	searchTimeout time.Duration
	observer      SessionObserver
	metrics       *metrics.Metrics
	log           *zap.Logger
}

// NewManagerService builds a hub. Call Run to start it.
func NewManagerService(opts Options) *ManagerService {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &ManagerService{
		registerCh:    make(chan Client),
		unregisterCh:  make(chan Client),
		incomingCh:    make(chan models.InboundEvent),
		expireCh:      make(chan expiry),
		opsCh:         make(chan func()),
		done:          make(chan struct{}),
		clients:       make(map[string]Client),
		timers:        make(map[string]*clock.Timer),
		clock:         opts.Clock,
		searchTimeout: opts.SearchTimeout,
		observer:      opts.Observer,
		metrics:       opts.Metrics,
		log:           opts.Logger,
	}
	m.engine = newEngine(m.deliver, m, m.clock.Now, opts.Logger)
	return m
}

// Run processes hub operations until ctx is cancelled. It must be called once.
func (m *ManagerService) Run(ctx context.Context) error {
	defer close(m.done)
	m.log.Info("chat hub started", zap.Duration("search_timeout", m.searchTimeout))

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case c := <-m.registerCh:
			m.handleRegister(c)
		case c := <-m.unregisterCh:
			m.handleUnregister(c)
		case ev := <-m.incomingCh:
			m.handleInbound(ev)
		case exp := <-m.expireCh:
			if m.engine.Expire(exp.id, exp.seq) {
				delete(m.timers, exp.id)
			}
		case fn := <-m.opsCh:
			fn()
		}
		m.afterOp()
	}
}

// Register hands a new client to the hub. It returns false once the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.registerCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister reports that a client's connection is gone.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.unregisterCh <- c:
	case <-m.done:
	}
}

// Dispatch queues an inbound event. SenderID must be set by the transport.
func (m *ManagerService) Dispatch(ev models.InboundEvent) bool {
	select {
	case m.incomingCh <- ev:
		return true
	case <-m.done:
		return false
	}
}

// Stats returns counters describing the hub state.
func (m *ManagerService) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := m.do(ctx, func() { st = m.engine.Stats() })
	return st, err
}

// Inspect returns a copy of the connection record for id.
func (m *ManagerService) Inspect(ctx context.Context, id string) (models.Connection, bool, error) {
	var (
		rec models.Connection
		ok  bool
	)
	err := m.do(ctx, func() { rec, ok = m.engine.Inspect(id) })
	return rec, ok, err
}

// do runs fn on the hub goroutine and waits for it.
func (m *ManagerService) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		fn()
		close(finished)
	}

	select {
	case m.opsCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrHubStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrHubStopped
	}
}

func (m *ManagerService) handleRegister(c Client) {
	id := c.GetUserID()
	if _, exists := m.clients[id]; exists {
		m.log.Warn("refusing duplicate connection", zap.String("conn_id", id))
		c.Close()
		return
	}

	m.clients[id] = c
	m.engine.Open(id)
	m.deliver(id, models.Event{Type: models.EventWelcome, Data: models.Welcome{ID: id}})
	m.log.Debug("client registered", zap.String("conn_id", id))
}

func (m *ManagerService) handleUnregister(c Client) {
	id := c.GetUserID()
	if cur, ok := m.clients[id]; !ok || cur != c {
		return
	}
	m.engine.Disconnect(id)
	m.dropClient(id)
	m.log.Debug("client unregistered", zap.String("conn_id", id))
}

func (m *ManagerService) handleInbound(ev models.InboundEvent) {
	id := ev.SenderID
	if _, ok := m.clients[id]; !ok {
		return
	}

	switch ev.Type {
	case models.EventSearch:
		var req models.SearchRequest
		if err := decodeData(ev.Data, &req); err != nil {
			m.rejectSearch(id, err)
			return
		}
		rec, err := m.engine.Search(id, req)
		if err != nil {
			if !errors.Is(err, ErrUnknownConnection) {
				m.rejectSearch(id, err)
			}
			return
		}
		m.scheduleExpiry(rec)

	case models.EventMessage:
		var req models.MessageRequest
		if m.decodeRelay(id, ev, &req) {
			m.countRelay(ev.Type, m.engine.RelayMessage(id, req))
		}

	case models.EventTyping:
		var req models.TypingRequest
		if m.decodeRelay(id, ev, &req) {
			m.countRelay(ev.Type, m.engine.RelayTyping(id, req))
		}

	case models.EventSignal:
		var req models.SignalRequest
		if m.decodeRelay(id, ev, &req) {
			m.countRelay(ev.Type, m.engine.RelaySignal(id, req))
		}

	case models.EventEndChat:
		m.engine.EndChat(id)
		m.stopTimer(id)

	default:
		m.log.Debug("unknown event type", zap.String("conn_id", id), zap.String("event", ev.Type))
		m.metrics.DroppedEvents.WithLabelValues(metrics.DropMalformed).Inc()
	}
}

func (m *ManagerService) decodeRelay(id string, ev models.InboundEvent, dst any) bool {
	if err := decodeData(ev.Data, dst); err != nil {
		m.log.Debug("malformed payload", zap.String("conn_id", id), zap.String("event", ev.Type), zap.Error(err))
		m.metrics.DroppedEvents.WithLabelValues(metrics.DropMalformed).Inc()
		return false
	}
	return true
}

func (m *ManagerService) rejectSearch(id string, err error) {
	m.metrics.SearchRejected.Inc()
	m.deliver(id, models.Event{Type: models.EventSearchRejected, Data: models.SearchRejected{Reason: err.Error()}})
}

func (m *ManagerService) countRelay(kind string, res RelayResult) {
	if !res.Delivered {
		m.metrics.DroppedEvents.WithLabelValues(metrics.DropStaleTarget).Inc()
		return
	}
	m.metrics.RelayedEvents.WithLabelValues(kind).Inc()
	if res.Mirrored {
		m.metrics.RelayedEvents.WithLabelValues(kind).Inc()
	}
}

func (m *ManagerService) scheduleExpiry(rec *models.Connection) {
	if m.searchTimeout <= 0 || rec.Status != models.StatusSearching {
		return
	}
	m.stopTimer(rec.ID)

	id, seq := rec.ID, rec.SearchSeq
	m.timers[id] = m.clock.AfterFunc(m.searchTimeout, func() {
		select {
		case m.expireCh <- expiry{id: id, seq: seq}:
		case <-m.done:
		}
	})
}

func (m *ManagerService) stopTimer(id string) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

// deliver is the engine's Notifier. It never blocks.
func (m *ManagerService) deliver(to string, ev models.Event) {
	c, ok := m.clients[to]
	if !ok {
		m.metrics.DroppedEvents.WithLabelValues(metrics.DropStaleTarget).Inc()
		return
	}
	select {
	case c.GetSendChannel() <- ev:
	default:
		m.log.Warn("send buffer full, evicting client", zap.String("conn_id", to), zap.String("event", ev.Type))
		m.metrics.DroppedEvents.WithLabelValues(metrics.DropSlowConsumer).Inc()
		m.evict = append(m.evict, to)
	}
}

func (m *ManagerService) dropClient(id string) {
	c, ok := m.clients[id]
	if !ok {
		return
	}
	delete(m.clients, id)
	m.stopTimer(id)
	c.Close()
}

func (m *ManagerService) afterOp() {
	for len(m.evict) > 0 {
		id := m.evict[0]
		m.evict = m.evict[1:]
		if _, ok := m.clients[id]; !ok {
			continue
		}
		m.engine.Disconnect(id)
		m.dropClient(id)
	}

	m.metrics.Connections.Set(float64(m.engine.registry.Len()))
	for key, n := range m.engine.rooms.Depths() {
		m.metrics.QueueDepth.WithLabelValues(string(key)).Set(float64(n))
	}
}

func (m *ManagerService) shutdown() {
	for id := range m.clients {
		m.engine.Disconnect(id)
		m.dropClient(id)
	}
	m.log.Info("chat hub stopped")
}

// SessionStarted implements SessionObserver for the engine.
func (m *ManagerService) SessionStarted(s models.Session) {
	m.metrics.Matches.WithLabelValues(string(s.SessionMode())).Inc()
	for _, id := range s.Members() {
		m.stopTimer(id)
	}
	m.observer.SessionStarted(s)
}

// SessionEnded implements SessionObserver for the engine.
func (m *ManagerService) SessionEnded(s models.Session, reason models.EndReason, at time.Time) {
	m.metrics.SessionsEnded.WithLabelValues(string(s.SessionMode()), string(reason)).Inc()
	m.observer.SessionEnded(s, reason, at)
}

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
