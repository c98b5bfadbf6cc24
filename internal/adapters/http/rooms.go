package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/domain"
)

type createRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Capacity    int    `json:"capacity" binding:"gte=0"`
	MinMembers  int    `json:"min_members" binding:"gte=0"`
	TotalRounds int    `json:"total_rounds" binding:"gte=0"`
}

type joinRequest struct {
	Name string `json:"name" binding:"required"`
}

type leaveRequest struct {
	MemberID domain.MemberID `json:"member_id" binding:"required"`
}

func userOf(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString(clientTokenKey))
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Invalid(err))
		return
	}
	room, member, err := h.orch.Rooms.CreateRoom(c.Request.Context(), app.CreateRoomInput{
		CreatorName: req.Name,
		UserID:      userOf(c),
		Limits: domain.Limits{
			Capacity:    req.Capacity,
			MinMembers:  req.MinMembers,
			TotalRounds: req.TotalRounds,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room, "member": member})
}

func (h *handlers) listRooms(c *gin.Context) {
	status := domain.RoomStatus(c.Query("status"))
	switch status {
	case "", domain.RoomOpen, domain.RoomInProgress, domain.RoomFinished:
	default:
		writeError(c, domain.Invalid(errUnknownStatus))
		return
	}
	rooms, err := h.orch.Rooms.ListRooms(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) getRoom(c *gin.Context) {
	view, err := h.orch.Rooms.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) joinRoom(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Invalid(err))
		return
	}
	member, err := h.orch.Rooms.JoinRoom(c.Request.Context(), domain.RoomID(c.Param("id")), app.MemberInput{
		Name:   req.Name,
		UserID: userOf(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *handlers) leaveRoom(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Invalid(err))
		return
	}
	if err := h.orch.Rooms.LeaveRoom(c.Request.Context(), domain.RoomID(c.Param("id")), req.MemberID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) startRound(c *gin.Context) {
	round, err := h.orch.Rounds.StartRound(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, round)
}

func (h *handlers) ranks(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	ranks, err := h.orch.Ranks.ComputeRanks(c.Request.Context(), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": roomID, "ranks": ranks})
}
