package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrRoomClosed          = errors.New("room is not open")
	ErrInvalidTransition   = errors.New("invalid round transition")
	ErrDuplicateSubmission = errors.New("member already submitted")
	ErrRoundClosed         = errors.New("round is closed")
	ErrRoomNotFinished     = errors.New("room is not finished")
	ErrStorage             = errors.New("storage error")
	ErrUpload              = errors.New("upload error")

	ErrRoundNotFound  = errors.New("round not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrInvalidInput   = errors.New("invalid input")

	ErrUnsupportedImage = fmt.Errorf("%w: unsupported image type", ErrUpload)
	ErrImageTooLarge    = fmt.Errorf("%w: image too large", ErrUpload)
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomFull, "room_full"},
	{ErrRoomClosed, "room_closed"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrDuplicateSubmission, "duplicate_submission"},
	{ErrRoundClosed, "round_closed"},
	{ErrRoomNotFinished, "room_not_finished"},
	{ErrRoundNotFound, "round_not_found"},
	{ErrMemberNotFound, "member_not_found"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUpload, "upload_error"},
	{ErrStorage, "storage_error"},
}

// Kind names the taxonomy entry err belongs to, or "" for foreign errors.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

// Invalid wraps a validation failure as ErrInvalidInput.
func Invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
