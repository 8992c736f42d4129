package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/likegate/internal/middleware"
	"github.com/xxxsen/likegate/internal/service"
)

type VerifyHandler struct {
	verifier *service.VerificationService
}

func NewVerifyHandler(verifier *service.VerificationService) *VerifyHandler {
	return &VerifyHandler{verifier: verifier}
}

// Verify answers the link a user opens in the browser, so the reply is plain text.
func (h *VerifyHandler) Verify(c *gin.Context) {
	code := c.Param("code")
	if raw, ok := middleware.VerifyCodeFrom(c.Request.Context()); ok {
		code = raw
	}
	outcome, err := h.verifier.Verify(c.Request.Context(), code)
	if err != nil {
		handleError(c, err)
		return
	}
	c.String(verifyStatus(outcome), outcome.Message())
}

func verifyStatus(outcome service.VerifyOutcome) int {
	switch outcome {
	case service.VerifySuccess:
		return http.StatusOK
	case service.VerifyAlreadyUsed:
		return http.StatusConflict
	case service.VerifyExpired:
		return http.StatusGone
	default:
		return http.StatusNotFound
	}
}
