package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/likegate/internal/middleware"
	"github.com/xxxsen/likegate/internal/pkg/errcode"
	"github.com/xxxsen/likegate/internal/pkg/response"
	"github.com/xxxsen/likegate/internal/service"
)

type AdminHandler struct {
	privileges *service.PrivilegeService
}

func NewAdminHandler(privileges *service.PrivilegeService) *AdminHandler {
	return &AdminHandler{privileges: privileges}
}

type privilegeRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *AdminHandler) Grant(c *gin.Context) {
	var req privilegeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.privileges.Grant(c.Request.Context(), middleware.UserID(c), req.UserID); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": req.UserID, "privileged": true})
}

func (h *AdminHandler) Revoke(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid user_id")
		return
	}
	if err := h.privileges.Revoke(c.Request.Context(), middleware.UserID(c), userID); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "privileged": false})
}
