package core

import (
	"context"
	"io"
	"time"

	"github.com/dkeye/Rooms/internal/domain"
)

// Store is row-level CRUD for rooms, members, rounds and submissions.
// Lookups of missing rows return the matching domain not-found error,
// everything else is wrapped in domain.ErrStorage.
type Store interface {
	// InTx runs fn inside one transaction; fn must only use the Store it is given.
	InTx(ctx context.Context, fn func(tx Store) error) error

	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	UpdateRoom(ctx context.Context, room *domain.Room) error
	ListRooms(ctx context.Context, status domain.RoomStatus) ([]*domain.Room, error)

	AddMember(ctx context.Context, m *domain.Member) error
	GetMember(ctx context.Context, id domain.MemberID) (*domain.Member, error)
	// Members returns the room's members in join order.
	Members(ctx context.Context, roomID domain.RoomID, presentOnly bool) ([]*domain.Member, error)
	MarkLeft(ctx context.Context, id domain.MemberID, at time.Time) error
	NextJoinSeq(ctx context.Context, roomID domain.RoomID) (int, error)
	// ActiveMemberships lists present members of uid in rooms that are not finished.
	ActiveMemberships(ctx context.Context, uid domain.UserID) ([]*domain.Member, error)

	CreateRound(ctx context.Context, r *domain.Round) error
	GetRound(ctx context.Context, id domain.RoundID) (*domain.Round, error)
	LatestRound(ctx context.Context, roomID domain.RoomID) (*domain.Round, error)
	UpdateRound(ctx context.Context, r *domain.Round) error

	AddSubmission(ctx context.Context, s *domain.Submission) error
	Submissions(ctx context.Context, roundID domain.RoundID) ([]*domain.Submission, error)
	// ClosedSubmissions returns submissions of every closed round of the room.
	ClosedSubmissions(ctx context.Context, roomID domain.RoomID) ([]*domain.Submission, error)
}

// ImageStore persists uploaded images and hands back a stable URL.
type ImageStore interface {
	Save(ctx context.Context, roundID domain.RoundID, filename string, r io.Reader) (string, error)
	// Remove deletes an image previously returned by Save.
	Remove(ctx context.Context, url string) error
}

// RoomView is a read-only snapshot for APIs.
type RoomView struct {
	Room    *domain.Room     `json:"room"`
	Members []*domain.Member `json:"members"`
}

// RoundView is a round with what has been handed in so far.
type RoundView struct {
	Round       *domain.Round        `json:"round"`
	Submissions []*domain.Submission `json:"submissions"`
}
