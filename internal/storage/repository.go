package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

// Repository implements core.Store on top of gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func (r *Repository) InTx(ctx context.Context, fn func(tx core.Store) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
	if err != nil && domain.Kind(err) == "" {
		return storageErr("transaction", err)
	}
	return err
}

func (r *Repository) CreateRoom(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return storageErr("create room", err)
	}
	return nil
}

func (r *Repository) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, storageErr("get room", err)
	}
	return &room, nil
}

func (r *Repository) UpdateRoom(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Save(room).Error; err != nil {
		return storageErr("update room", err)
	}
	return nil
}

func (r *Repository) ListRooms(ctx context.Context, status domain.RoomStatus) ([]*domain.Room, error) {
	q := r.db.WithContext(ctx).Order("created_at")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rooms []*domain.Room
	if err := q.Find(&rooms).Error; err != nil {
		return nil, storageErr("list rooms", err)
	}
	return rooms, nil
}

func (r *Repository) AddMember(ctx context.Context, m *domain.Member) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return storageErr("add member", err)
	}
	return nil
}

func (r *Repository) GetMember(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	var m domain.Member
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, storageErr("get member", err)
	}
	return &m, nil
}

func (r *Repository) Members(ctx context.Context, roomID domain.RoomID, presentOnly bool) ([]*domain.Member, error) {
	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if presentOnly {
		q = q.Where("left_at IS NULL")
	}
	var members []*domain.Member
	if err := q.Order("join_seq").Find(&members).Error; err != nil {
		return nil, storageErr("list members", err)
	}
	return members, nil
}

func (r *Repository) MarkLeft(ctx context.Context, id domain.MemberID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Member{}).
		Where("id = ? AND left_at IS NULL", id).
		Update("left_at", at).Error
	if err != nil {
		return storageErr("mark left", err)
	}
	return nil
}

func (r *Repository) NextJoinSeq(ctx context.Context, roomID domain.RoomID) (int, error) {
	var last int
	err := r.db.WithContext(ctx).Model(&domain.Member{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(join_seq), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, storageErr("next join seq", err)
	}
	return last + 1, nil
}

func (r *Repository) ActiveMemberships(ctx context.Context, uid domain.UserID) ([]*domain.Member, error) {
	var members []*domain.Member
	err := r.db.WithContext(ctx).
		Joins("JOIN rooms ON rooms.id = members.room_id").
		Where("members.user_id = ? AND members.left_at IS NULL AND rooms.status <> ?", uid, domain.RoomFinished).
		Find(&members).Error
	if err != nil {
		return nil, storageErr("active memberships", err)
	}
	return members, nil
}

func (r *Repository) CreateRound(ctx context.Context, round *domain.Round) error {
	if err := r.db.WithContext(ctx).Create(round).Error; err != nil {
		return storageErr("create round", err)
	}
	return nil
}

func (r *Repository) GetRound(ctx context.Context, id domain.RoundID) (*domain.Round, error) {
	var round domain.Round
	if err := r.db.WithContext(ctx).First(&round, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, storageErr("get round", err)
	}
	return &round, nil
}

func (r *Repository) LatestRound(ctx context.Context, roomID domain.RoomID) (*domain.Round, error) {
	var round domain.Round
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("number DESC").
		First(&round).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, storageErr("latest round", err)
	}
	return &round, nil
}

func (r *Repository) UpdateRound(ctx context.Context, round *domain.Round) error {
	if err := r.db.WithContext(ctx).Save(round).Error; err != nil {
		return storageErr("update round", err)
	}
	return nil
}

func (r *Repository) AddSubmission(ctx context.Context, s *domain.Submission) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateSubmission
		}
		return storageErr("add submission", err)
	}
	return nil
}

func (r *Repository) Submissions(ctx context.Context, roundID domain.RoundID) ([]*domain.Submission, error) {
	var subs []*domain.Submission
	err := r.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("created_at, id").
		Find(&subs).Error
	if err != nil {
		return nil, storageErr("list submissions", err)
	}
	return subs, nil
}

func (r *Repository) ClosedSubmissions(ctx context.Context, roomID domain.RoomID) ([]*domain.Submission, error) {
	var subs []*domain.Submission
	err := r.db.WithContext(ctx).
		Joins("JOIN rounds ON rounds.id = submissions.round_id").
		Where("rounds.room_id = ? AND rounds.closed = ?", roomID, true).
		Find(&subs).Error
	if err != nil {
		return nil, storageErr("closed submissions", err)
	}
	return subs, nil
}
