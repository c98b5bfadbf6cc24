package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/domain"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrRoundNotFound),
		errors.Is(err, domain.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrRoomClosed),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrRoundClosed),
		errors.Is(err, domain.ErrRoomNotFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUpload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	kind := domain.Kind(err)
	if kind == "" {
		kind = "internal_error"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": err.Error()})
}
