package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"chat-broker/internal/bridge"
	"chat-broker/internal/models"
	"chat-broker/internal/registry"
	"chat-broker/internal/repositories"
	"chat-broker/internal/telemetry"
)

// RoomHandler exposes the room admin surface: creation, discovery,
// membership, and history.
type RoomHandler struct {
	registry *registry.Service
	bridge   *bridge.Bridge
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(reg *registry.Service, br *bridge.Bridge, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{registry: reg, bridge: br, audit: audit}
}

// CreateRoom creates a room with the caller as its first member.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=128"`
		Kind string `json:"kind" binding:"omitempty,oneof=direct group"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	room, err := h.registry.CreateRoom(c.Request.Context(), req.Name, req.Kind, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "room created: "+room.Name, requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// ListRooms returns the rooms the caller belongs to.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")
	rooms, err := h.registry.ListRooms(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": lo.Map(rooms, func(r models.Room, _ int) string { return r.Name }),
	})
}

// Find is the discovery search over users and rooms.
func (h *RoomHandler) Find(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	userID := c.GetInt("userID")
	result, err := h.registry.Find(c.Request.Context(), query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// AddMember adds the named user to the room.
func (h *RoomHandler) AddMember(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomName := c.Param("room")
	if err := h.registry.AddMember(c.Request.Context(), roomName, req.Username); err != nil {
		h.writeMembershipError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "member added to "+roomName+": "+req.Username, requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"message": "member added"})
}

// RemoveMember removes the named user from the room. Live sessions of that
// user in the room are evicted once the removal commits.
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomName := c.Param("room")
	if err := h.registry.RemoveMember(c.Request.Context(), roomName, req.Username); err != nil {
		h.writeMembershipError(c, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "member removed from "+roomName+": "+req.Username, requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// History returns the room's messages oldest first. Members only.
func (h *RoomHandler) History(c *gin.Context) {
	roomName := c.Param("room")
	room, err := h.registry.GetRoom(c.Request.Context(), roomName)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room lookup failed"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.registry.IsMember(c.Request.Context(), room.ID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	msgs, err := h.bridge.History(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *RoomHandler) writeMembershipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, repositories.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": "user already a member"})
	case errors.Is(err, repositories.ErrNotAMember):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not a member"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership change failed"})
	}
}
