package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strangerchat/backend/internal/models"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionChannel is the Redis Pub/Sub channel session events are published on.
const SessionChannel = "strangerchat:sessions"

// ErrNoBackend is returned when an operation needs a store that is not configured.
var ErrNoBackend = errors.New("storage backend not configured")

// Storage is what the Recorder needs to persist the session audit.
type Storage interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID string, reason models.EndReason, at time.Time) error
	PublishSessionEvent(ctx context.Context, ev SessionEvent) error
}

// SessionEvent is published on SessionChannel whenever a session starts or ends.
type SessionEvent struct {
	Type      string           `json:"type"` // "started" or "ended"
	SessionID string           `json:"sessionId"`
	Mode      models.Mode      `json:"mode"`
	Members   []string         `json:"members"`
	Reason    models.EndReason `json:"reason,omitempty"`
	At        time.Time        `json:"at"`
}

const (
	SessionEventStarted = "started"
	SessionEventEnded   = "ended"
)

// Service implements Storage on PostgreSQL (gorm) and Redis. Either may be nil,
// in which case the matching half becomes a no-op.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the audit table.
func (s *Service) Migrate() error {
	if s.DB == nil {
		return ErrNoBackend
	}
	return s.DB.AutoMigrate(&models.ChatRoom{})
}

// SaveRoom зберігає кімнату в PostgreSQL
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom закриває кімнату, встановлюючи IsActive = false, EndedAt та EndReason
func (s *Service) CloseRoom(ctx context.Context, roomID string, reason models.EndReason, at time.Time) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": string(reason),
		}).Error
}

// CloseStaleRooms closes every row still marked active. Sessions live only in
// memory, so after a restart none of them can still be running.
func (s *Service) CloseStaleRooms(ctx context.Context, at time.Time) (int64, error) {
	if s.DB == nil {
		return 0, ErrNoBackend
	}
	res := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"ended_at":   at,
			"end_reason": string(models.EndReasonRestart),
		})
	return res.RowsAffected, res.Error
}

// ListRooms returns the newest audit rows first.
func (s *Service) ListRooms(ctx context.Context, limit int, activeOnly bool) ([]models.ChatRoom, error) {
	if s.DB == nil {
		return nil, ErrNoBackend
	}
	if limit <= 0 {
		limit = 50
	}

	var rooms []models.ChatRoom
	q := s.DB.WithContext(ctx).Order("started_at desc").Limit(limit)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// PublishSessionEvent публікує подію в Redis Pub/Sub і рахує сесії за режимом.
func (s *Service) PublishSessionEvent(ctx context.Context, ev SessionEvent) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, SessionChannel, payload)
		if ev.Type == SessionEventStarted {
			pipe.Incr(ctx, ModeCounterKey(ev.Mode))
		}
		return nil
	})
	return err
}

// SessionCounts reads the per-mode session counters.
func (s *Service) SessionCounts(ctx context.Context) (map[models.Mode]int64, error) {
	if s.Redis == nil {
		return nil, ErrNoBackend
	}
	modes := []models.Mode{models.ModeText, models.ModeVideo, models.ModeInterests, models.ModeSpy}
	out := make(map[models.Mode]int64, len(modes))
	for _, m := range modes {
		n, err := s.Redis.Get(ctx, ModeCounterKey(m)).Int64()
		if errors.Is(err, redis.Nil) {
			n, err = 0, nil
		}
		if err != nil {
			return nil, err
		}
		out[m] = n
	}
	return out, nil
}

// SubscribeSessions subscribes to SessionChannel.
func (s *Service) SubscribeSessions(ctx context.Context) (*redis.PubSub, error) {
	if s.Redis == nil {
		return nil, ErrNoBackend
	}
	return s.Redis.Subscribe(ctx, SessionChannel), nil
}

// ModeCounterKey is the Redis key counting sessions formed in mode.
func ModeCounterKey(mode models.Mode) string {
	return "stats:sessions:" + string(mode)
}
