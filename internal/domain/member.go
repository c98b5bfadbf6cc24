package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemberID string

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	ID       MemberID   `gorm:"primaryKey;size:36" json:"id"`
	RoomID   RoomID     `gorm:"size:36;not null;index" json:"room_id"`
	UserID   UserID     `gorm:"size:36;index" json:"-"`
	Name     string     `gorm:"size:36;not null" json:"name"`
	JoinSeq  int        `gorm:"not null" json:"join_seq"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(roomID RoomID, userID UserID, name string) (*Member, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	return &Member{
		ID:       MemberID(uuid.NewString()),
		RoomID:   roomID,
		UserID:   userID,
		Name:     name,
		JoinedAt: time.Now(),
	}, nil
}

// Present reports whether the member has not left its room.
func (m *Member) Present() bool { return m.LeftAt == nil }
