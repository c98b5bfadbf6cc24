package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/domain"
)

var (
	errUnknownStatus = errors.New("unknown room status")
	errNoImageStore  = errors.New("image uploads are disabled")
)

// submitRequest binds both JSON bodies and multipart forms.
type submitRequest struct {
	MemberID domain.MemberID `json:"member_id" form:"member_id" binding:"required"`
	ImageURL string          `json:"image_url" form:"image_url"`
	Answer   string          `json:"answer" form:"answer"`
	Points   int             `json:"points" form:"points"`
}

func (h *handlers) getRound(c *gin.Context) {
	view, err := h.orch.Rounds.GetRound(c.Request.Context(), domain.RoundID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) submit(c *gin.Context) {
	ctx := c.Request.Context()
	roundID := domain.RoundID(c.Param("id"))

	var req submitRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, domain.Invalid(err))
		return
	}

	var uploaded string
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		url, err := h.upload(c, roundID, req)
		if err != nil {
			writeError(c, err)
			return
		}
		if url != "" {
			req.ImageURL, uploaded = url, url
		}
	}

	sub, err := h.orch.Rounds.Submit(ctx, roundID, req.MemberID, domain.Payload{
		ImageURL: req.ImageURL,
		Answer:   req.Answer,
		Points:   req.Points,
	})
	if err != nil {
		if uploaded != "" {
			if rmErr := h.images.Remove(ctx, uploaded); rmErr != nil {
				log.Warn().Err(rmErr).Str("module", "adapters.http").Str("url", uploaded).Msg("drop rejected upload")
			}
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// upload stores the optional "image" part and returns its public URL.
func (h *handlers) upload(c *gin.Context, roundID domain.RoundID, req submitRequest) (string, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", domain.Invalid(err)
	}
	if h.images == nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUpload, errNoImageStore)
	}

	// Refuse early so a rejected submission does not leave a file behind.
	if err := h.orch.Rounds.CheckSubmit(c.Request.Context(), roundID, req.MemberID, req.Points); err != nil {
		return "", err
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrUpload, fh.Filename, err)
	}
	defer f.Close()
	return h.images.Save(c.Request.Context(), roundID, fh.Filename, f)
}

func (h *handlers) closeRound(c *gin.Context) {
	round, err := h.orch.Rounds.CloseRound(c.Request.Context(), domain.RoundID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}
