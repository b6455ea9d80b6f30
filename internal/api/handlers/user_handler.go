package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

// UserHandler handles privileged user management and lookups.
type UserHandler struct {
	userService services.IUserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService services.IUserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// AddUser handles POST /critical/add-user. Only super-admins reach this;
// the role gate lives in the router.
func (h *UserHandler) AddUser(c *gin.Context) {
	var input services.CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.userService.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Options handles GET /users/options, the recipient-selection list for
// admins composing a conversation.
func (h *UserHandler) Options(c *gin.Context) {
	userOptions, err := h.userService.Options(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": userOptions})
}
