package app

import "errors"

var (
	errEmptyPayload   = errors.New("submission needs an image or an answer")
	errNegativePoints = errors.New("points must not be negative")
)
