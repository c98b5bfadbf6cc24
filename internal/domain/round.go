package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	RoundID      string
	SubmissionID string
)

// Round is one scored sub-phase of a room's game.
type Round struct {
	ID          RoundID    `gorm:"primaryKey;size:36" json:"id"`
	RoomID      RoomID     `gorm:"size:36;not null;index" json:"room_id"`
	Number      int        `gorm:"not null" json:"number"`
	Closed      bool       `gorm:"not null;default:false" json:"closed"`
	ForceClosed bool       `gorm:"not null;default:false" json:"force_closed"`
	StartedAt   time.Time  `json:"started_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func NewRound(roomID RoomID, number int) *Round {
	return &Round{
		ID:        RoundID(uuid.NewString()),
		RoomID:    roomID,
		Number:    number,
		StartedAt: time.Now(),
	}
}

// Payload is what a member hands in for a round.
type Payload struct {
	ImageURL string `json:"image_url,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Points   int    `json:"points"`
}

// Submission stores one member's payload for one round.
type Submission struct {
	ID        SubmissionID `gorm:"primaryKey;size:36" json:"id"`
	RoundID   RoundID      `gorm:"size:36;not null;uniqueIndex:idx_round_member" json:"round_id"`
	MemberID  MemberID     `gorm:"size:36;not null;uniqueIndex:idx_round_member" json:"member_id"`
	ImageURL  string       `gorm:"size:512" json:"image_url,omitempty"`
	Answer    string       `gorm:"size:512" json:"answer,omitempty"`
	Points    int          `gorm:"not null;default:0" json:"points"`
	CreatedAt time.Time    `json:"created_at"`
}

func NewSubmission(roundID RoundID, memberID MemberID, p Payload) *Submission {
	return &Submission{
		ID:       SubmissionID(uuid.NewString()),
		RoundID:  roundID,
		MemberID: memberID,
		ImageURL: p.ImageURL,
		Answer:   p.Answer,
		Points:   p.Points,
	}
}
