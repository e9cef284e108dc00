package chathub_test

import (
	"context"
	"encoding/json"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockClient is an in-memory Client used by the hub tests.
type MockClient struct {
	id     string
	send   chan models.Event
	closed chan struct{}
	once   sync.Once
}

func NewMockClient(id string, buf int) *MockClient {
	return &MockClient{
		id:     id,
		send:   make(chan models.Event, buf),
		closed: make(chan struct{}),
	}
}

func (c *MockClient) GetUserID() string                   { return c.id }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.send }
func (c *MockClient) Run()                                {}
func (c *MockClient) Close()                              { c.once.Do(func() { close(c.closed) }) }

func (c *MockClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func recv(t *testing.T, c *MockClient) models.Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no event received", c.id)
		return models.Event{}
	}
}

func expectNothing(t *testing.T, c *MockClient) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("%s: unexpected event %s", c.id, ev.Type)
	default:
	}
}

func inbound(t *testing.T, from, typ string, data any) models.InboundEvent {
	t.Helper()
	ev := models.InboundEvent{Type: typ, SenderID: from}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		ev.Data = raw
	}
	return ev
}

type hubFixture struct {
	hub    *chathub.ManagerService
	clock  *clock.Mock
	cancel context.CancelFunc
	done   chan struct{}
}

func startHub(t *testing.T, timeout time.Duration) *hubFixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	hub := chathub.NewManagerService(chathub.Options{
		Clock:         clk,
		SearchTimeout: timeout,
		Logger:        zaptest.NewLogger(t),
	})
	ctx, cancel := context.WithCancel(context.Background())
	f := &hubFixture{hub: hub, clock: clk, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

// sync waits until the hub has processed everything sent before it.
func (f *hubFixture) sync(t *testing.T) {
	t.Helper()
	_, err := f.hub.Stats(context.Background())
	require.NoError(t, err)
}

func (f *hubFixture) connect(t *testing.T, id string) *MockClient {
	t.Helper()
	c := NewMockClient(id, 16)
	require.True(t, f.hub.Register(c))
	ev := recv(t, c)
	require.Equal(t, models.EventWelcome, ev.Type)
	assert.Equal(t, models.Welcome{ID: id}, ev.Data)
	return c
}

func (f *hubFixture) inspect(t *testing.T, id string) (models.Connection, bool) {
	t.Helper()
	rec, ok, err := f.hub.Inspect(context.Background(), id)
	require.NoError(t, err)
	return rec, ok
}

func TestTextChatEndToEnd(t *testing.T) {
	f := startHub(t, 0)
	x := f.connect(t, "X")
	y := f.connect(t, "Y")

	f.hub.Dispatch(inbound(t, "X", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	assert.Equal(t, models.Event{Type: models.EventSearching, Data: models.Searching{Mode: models.ModeText}}, recv(t, x))

	f.hub.Dispatch(inbound(t, "Y", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	assert.Equal(t, models.EventSearching, recv(t, y).Type)

	assert.Equal(t, models.Event{Type: models.EventMatched, Data: models.Matched{PartnerID: "Y"}}, recv(t, x))
	assert.Equal(t, models.Event{Type: models.EventMatched, Data: models.Matched{PartnerID: "X"}}, recv(t, y))

	f.hub.Dispatch(inbound(t, "X", models.EventMessage, models.MessageRequest{To: "Y", Text: "hi"}))
	assert.Equal(t, models.Event{Type: models.EventMessage, Data: models.RelayedMessage{
		From:      "X",
		Text:      "hi",
		Timestamp: f.clock.Now(),
	}}, recv(t, y))
	expectNothing(t, x)

	f.hub.Dispatch(inbound(t, "Y", models.EventTyping, models.TypingRequest{To: "X", IsTyping: true}))
	assert.Equal(t, models.RelayedTyping{From: "Y", IsTyping: true}, recv(t, x).Data)

	f.hub.Dispatch(inbound(t, "X", models.EventEndChat, nil))
	assert.Equal(t, models.EventChatEnded, recv(t, y).Type)
	f.sync(t)
	expectNothing(t, x)

	rec, ok := f.inspect(t, "Y")
	require.True(t, ok)
	assert.Equal(t, models.StatusIdle, rec.Status)
}

func TestDisconnectReleasesPartner(t *testing.T) {
	f := startHub(t, 0)
	x := f.connect(t, "X")
	y := f.connect(t, "Y")
	z := f.connect(t, "Z")

	for _, id := range []string{"X", "Y"} {
		f.hub.Dispatch(inbound(t, id, models.EventSearch, models.SearchRequest{Mode: models.ModeVideo}))
	}
	recv(t, x)
	recv(t, x)
	recv(t, y)
	recv(t, y)

	f.hub.Unregister(x)
	assert.Equal(t, models.EventPartnerDisconnected, recv(t, y).Type)
	f.sync(t)
	assert.True(t, x.isClosed())

	_, ok := f.inspect(t, "X")
	assert.False(t, ok)
	rec, ok := f.inspect(t, "Y")
	require.True(t, ok)
	assert.Equal(t, models.StatusIdle, rec.Status)
	assert.Empty(t, rec.PartnerID)

	// Messages addressed to the departed peer are dropped.
	f.hub.Dispatch(inbound(t, "Y", models.EventMessage, models.MessageRequest{To: "X", Text: "still there?"}))

	f.hub.Dispatch(inbound(t, "Y", models.EventSearch, models.SearchRequest{Mode: models.ModeVideo}))
	f.hub.Dispatch(inbound(t, "Z", models.EventSearch, models.SearchRequest{Mode: models.ModeVideo}))
	assert.Equal(t, models.EventSearching, recv(t, y).Type)
	assert.Equal(t, models.Matched{PartnerID: "Z"}, recv(t, y).Data)
	recv(t, z)
	assert.Equal(t, models.Matched{PartnerID: "Y"}, recv(t, z).Data)
}

func TestDuplicateRegisterIsRefused(t *testing.T) {
	f := startHub(t, 0)
	first := f.connect(t, "dup")

	second := NewMockClient("dup", 4)
	require.True(t, f.hub.Register(second))
	f.sync(t)
	assert.True(t, second.isClosed())
	assert.False(t, first.isClosed())
	expectNothing(t, second)

	// Unregistering the refused client must not tear down the first one.
	f.hub.Unregister(second)
	_, ok := f.inspect(t, "dup")
	assert.True(t, ok)
}

func TestMalformedSearchIsRejected(t *testing.T) {
	f := startHub(t, 0)
	c := f.connect(t, "c")

	f.hub.Dispatch(inbound(t, "c", models.EventSearch, models.SearchRequest{Mode: models.ModeSpy}))
	ev := recv(t, c)
	require.Equal(t, models.EventSearchRejected, ev.Type)
	assert.Contains(t, ev.Data.(models.SearchRejected).Reason, "role")

	f.hub.Dispatch(models.InboundEvent{Type: models.EventSearch, SenderID: "c", Data: json.RawMessage(`{"mode":42}`)})
	assert.Equal(t, models.EventSearchRejected, recv(t, c).Type)

	st, err := f.hub.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Searching)
}

func TestSearchWhileConnectedIsRejectedByHub(t *testing.T) {
	f := startHub(t, 0)
	a := f.connect(t, "a")
	f.connect(t, "b")
	f.hub.Dispatch(inbound(t, "a", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	f.hub.Dispatch(inbound(t, "b", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	recv(t, a)
	recv(t, a)

	f.hub.Dispatch(inbound(t, "a", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	ev := recv(t, a)
	assert.Equal(t, models.Event{Type: models.EventSearchRejected, Data: models.SearchRejected{Reason: "already connected"}}, ev)
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	f := startHub(t, 0)
	partner := f.connect(t, "partner")

	// The welcome event fills the only slot.
	slow := NewMockClient("slow", 1)
	require.True(t, f.hub.Register(slow))
	f.hub.Dispatch(inbound(t, "partner", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	f.hub.Dispatch(inbound(t, "slow", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	f.sync(t)

	assert.True(t, slow.isClosed())
	_, ok := f.inspect(t, "slow")
	assert.False(t, ok)

	// The pair forms within the same operation; the eviction that follows
	// dissolves it.
	assert.Equal(t, models.EventSearching, recv(t, partner).Type)
	assert.Equal(t, models.Matched{PartnerID: "slow"}, recv(t, partner).Data)
	assert.Equal(t, models.EventPartnerDisconnected, recv(t, partner).Type)
	rec, ok := f.inspect(t, "partner")
	require.True(t, ok)
	assert.Equal(t, models.StatusIdle, rec.Status)
}

func TestSearchTimeout(t *testing.T) {
	f := startHub(t, time.Minute)
	c := f.connect(t, "c")

	f.hub.Dispatch(inbound(t, "c", models.EventSearch, models.SearchRequest{Mode: models.ModeInterests, Interests: []string{"go"}}))
	recv(t, c)
	f.sync(t)

	f.clock.Add(30 * time.Second)
	f.sync(t)
	expectNothing(t, c)

	f.clock.Add(30 * time.Second)
	assert.Equal(t, models.Event{Type: models.EventSearchTimeout, Data: models.SearchTimeout{Mode: models.ModeInterests}}, recv(t, c))

	rec, ok := f.inspect(t, "c")
	require.True(t, ok)
	assert.Equal(t, models.StatusIdle, rec.Status)
}

func TestMatchedSearchDoesNotExpire(t *testing.T) {
	f := startHub(t, time.Minute)
	a := f.connect(t, "a")
	b := f.connect(t, "b")

	f.hub.Dispatch(inbound(t, "a", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	f.hub.Dispatch(inbound(t, "b", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))
	recv(t, a)
	recv(t, a)
	recv(t, b)
	recv(t, b)
	f.sync(t)

	f.clock.Add(2 * time.Minute)
	f.sync(t)
	expectNothing(t, a)
	expectNothing(t, b)

	rec, _ := f.inspect(t, "a")
	assert.Equal(t, models.StatusConnected, rec.Status)
}

func TestSpyTriadThroughHub(t *testing.T) {
	f := startHub(t, 0)
	q := f.connect(t, "q")
	w1 := f.connect(t, "w1")
	w2 := f.connect(t, "w2")

	f.hub.Dispatch(inbound(t, "q", models.EventSearch, models.SearchRequest{Mode: models.ModeSpy, Role: models.RoleQuestioner, Question: "cats or dogs?"}))
	f.hub.Dispatch(inbound(t, "w1", models.EventSearch, models.SearchRequest{Mode: models.ModeSpy, Role: models.RoleWatcher}))
	f.hub.Dispatch(inbound(t, "w2", models.EventSearch, models.SearchRequest{Mode: models.ModeSpy, Role: models.RoleWatcher}))

	recv(t, q)
	qm := recv(t, q).Data.(models.SpyMatched)
	assert.Equal(t, []string{"w1", "w2"}, qm.Strangers)
	recv(t, w1)
	wm := recv(t, w1).Data.(models.SpyMatched)
	assert.Equal(t, "cats or dogs?", wm.Question)
	assert.Equal(t, qm.RoomID, wm.RoomID)
	recv(t, w2)
	recv(t, w2)

	f.hub.Dispatch(inbound(t, "w1", models.EventMessage, models.MessageRequest{To: "w2", Text: "dogs"}))
	assert.Equal(t, "dogs", recv(t, w2).Data.(models.RelayedMessage).Text)
	assert.Equal(t, "dogs", recv(t, q).Data.(models.RelayedMessage).Text)

	f.hub.Unregister(w2)
	assert.Equal(t, models.EventPartnerDisconnected, recv(t, q).Type)
	assert.Equal(t, models.EventPartnerDisconnected, recv(t, w1).Type)
}

func TestStatsCountsConnections(t *testing.T) {
	f := startHub(t, 0)
	f.connect(t, "a")
	f.connect(t, "b")
	f.connect(t, "c")
	f.hub.Dispatch(inbound(t, "a", models.EventSearch, models.SearchRequest{Mode: models.ModeText}))

	st, err := f.hub.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.Connections)
	assert.Equal(t, 1, st.Searching)
	assert.Equal(t, 2, st.Idle)
	assert.Equal(t, 1, st.Queues[chathub.QueueText])
}

func TestStoppedHub(t *testing.T) {
	f := startHub(t, 0)
	c := f.connect(t, "c")

	f.cancel()
	<-f.done

	assert.True(t, c.isClosed())
	assert.False(t, f.hub.Register(NewMockClient("late", 1)))
	assert.False(t, f.hub.Dispatch(models.InboundEvent{Type: models.EventEndChat, SenderID: "c"}))
	_, err := f.hub.Stats(context.Background())
	assert.ErrorIs(t, err, chathub.ErrHubStopped)
}
