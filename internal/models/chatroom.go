package models

import (
	"time"

	"github.com/lib/pq" // Необхідний для pq.StringArray
)

// ChatRoom is the audit row written for every session the hub forms.
// It records who was paired and when, never what was said.
type ChatRoom struct {
	// RoomID is the pair session id or the spy roomId.
	RoomID string `gorm:"primaryKey" json:"room_id"`
	// Mode is the matching mode that formed the session.
	Mode string `gorm:"type:text;not null;index" json:"mode"`
	// Participants holds the connection ids of all members.
	Participants pq.StringArray `gorm:"type:text[]" json:"participants"`
	// CommonInterests is filled for interests-mode sessions.
	CommonInterests pq.StringArray `gorm:"type:text[]" json:"common_interests,omitempty"`
	// IsActive is true until the session is dissolved.
	IsActive bool `gorm:"index" json:"is_active"`
	// StartedAt is the match time.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is nil while the session is active.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// EndReason is one of the EndReason values.
	EndReason string `gorm:"type:text" json:"end_reason,omitempty"`
}

// NewChatRoom builds the audit row for a freshly formed session.
func NewChatRoom(s Session) *ChatRoom {
	room := &ChatRoom{
		RoomID:       s.SessionID(),
		Mode:         string(s.SessionMode()),
		Participants: pq.StringArray(s.Members()),
		IsActive:     true,
		StartedAt:    s.Started(),
	}
	if p, ok := s.(*Pair); ok && len(p.CommonInterests) > 0 {
		room.CommonInterests = pq.StringArray(p.CommonInterests)
	}
	return room
}
