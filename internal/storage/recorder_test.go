package storage_test

import (
	"context"
	"errors"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockStorage) CloseRoom(ctx context.Context, roomID string, reason models.EndReason, at time.Time) error {
	args := m.Called(ctx, roomID, reason, at)
	return args.Error(0)
}

func (m *MockStorage) PublishSessionEvent(ctx context.Context, ev storage.SessionEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func runRecorder(t *testing.T, r *storage.Recorder) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, r.Run(ctx))
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestRecorderWritesStartAndEnd(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(3 * time.Minute)
	pair := &models.Pair{ID: "p1", Mode: models.ModeInterests, A: "a", B: "b", CommonInterests: []string{"go"}, StartedAt: started}

	ms := new(MockStorage)
	ms.On("SaveRoom", mock.Anything, mock.MatchedBy(func(room *models.ChatRoom) bool {
		return room.RoomID == "p1" && room.IsActive && len(room.Participants) == 2 && room.CommonInterests[0] == "go"
	})).Return(nil).Once()
	ms.On("CloseRoom", mock.Anything, "p1", models.EndReasonDisconnected, ended).Return(nil).Once()
	ms.On("PublishSessionEvent", mock.Anything, storage.SessionEvent{
		Type: storage.SessionEventStarted, SessionID: "p1", Mode: models.ModeInterests, Members: []string{"a", "b"}, At: started,
	}).Return(nil).Once()
	ms.On("PublishSessionEvent", mock.Anything, storage.SessionEvent{
		Type: storage.SessionEventEnded, SessionID: "p1", Mode: models.ModeInterests, Members: []string{"a", "b"},
		Reason: models.EndReasonDisconnected, At: ended,
	}).Return(nil).Once()

	r := storage.NewRecorder(ms, 8, zaptest.NewLogger(t))
	r.SessionStarted(pair)
	r.SessionEnded(pair, models.EndReasonDisconnected, ended)

	stop := runRecorder(t, r)
	stop()

	ms.AssertExpectations(t)
}

func TestRecorderKeepsGoingAfterErrors(t *testing.T) {
	triad := &models.Triad{RoomID: "spy_1", Questioner: "q", Watcher1: "w1", Watcher2: "w2", StartedAt: time.Now()}

	ms := new(MockStorage)
	ms.On("SaveRoom", mock.Anything, mock.Anything).Return(errors.New("db down"))
	ms.On("PublishSessionEvent", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	r := storage.NewRecorder(ms, 8, zaptest.NewLogger(t))
	r.SessionStarted(triad)
	r.SessionStarted(triad)

	// Run drains the buffer even when cancelled straight away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	ms.AssertNumberOfCalls(t, "SaveRoom", 2)
	ms.AssertNumberOfCalls(t, "PublishSessionEvent", 2)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	pair := &models.Pair{ID: "p", Mode: models.ModeText, A: "a", B: "b"}
	ms := new(MockStorage)
	ms.On("SaveRoom", mock.Anything, mock.Anything).Return(nil)
	ms.On("PublishSessionEvent", mock.Anything, mock.Anything).Return(nil)

	r := storage.NewRecorder(ms, 1, zaptest.NewLogger(t))
	r.SessionStarted(pair)
	r.SessionStarted(pair) // dropped, never blocks

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	ms.AssertNumberOfCalls(t, "SaveRoom", 1)
}

func TestServiceWithoutBackends(t *testing.T) {
	s := storage.NewStorageService(nil, nil)
	ctx := context.Background()

	assert.NoError(t, s.SaveRoom(ctx, &models.ChatRoom{RoomID: "x"}))
	assert.NoError(t, s.CloseRoom(ctx, "x", models.EndReasonEnded, time.Now()))
	assert.NoError(t, s.PublishSessionEvent(ctx, storage.SessionEvent{Type: storage.SessionEventStarted}))

	_, err := s.ListRooms(ctx, 10, false)
	assert.ErrorIs(t, err, storage.ErrNoBackend)
	_, err = s.CloseStaleRooms(ctx, time.Now())
	assert.ErrorIs(t, err, storage.ErrNoBackend)
	assert.ErrorIs(t, s.Migrate(), storage.ErrNoBackend)
}

func TestModeCounterKey(t *testing.T) {
	assert.Equal(t, "stats:sessions:spy", storage.ModeCounterKey(models.ModeSpy))
}
