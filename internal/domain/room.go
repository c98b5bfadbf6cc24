package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomID string

type RoomStatus string

const (
	RoomOpen       RoomStatus = "open"
	RoomInProgress RoomStatus = "in_progress"
	RoomFinished   RoomStatus = "finished"
)

type Room struct {
	ID           RoomID     `gorm:"primaryKey;size:36" json:"id"`
	CreatorID    MemberID   `gorm:"size:36" json:"creator_id"`
	Capacity     int        `gorm:"not null" json:"capacity"`
	MinMembers   int        `gorm:"not null" json:"min_members"`
	TotalRounds  int        `gorm:"not null" json:"total_rounds"`
	CurrentRound int        `gorm:"not null;default:0" json:"current_round"`
	Status       RoomStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Limits bounds a room's size and length.
type Limits struct {
	Capacity    int `json:"capacity"`
	MinMembers  int `json:"min_members"`
	TotalRounds int `json:"total_rounds"`
}

func NewRoom(limits Limits) *Room {
	return &Room{
		ID:          RoomID(uuid.NewString()),
		Capacity:    limits.Capacity,
		MinMembers:  limits.MinMembers,
		TotalRounds: limits.TotalRounds,
		Status:      RoomOpen,
	}
}
