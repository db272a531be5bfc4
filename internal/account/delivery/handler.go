package delivery

import (
	"errors"
	"net/http"

	"mailping-backend/internal/account/usecase"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	linkUsecase usecase.LinkUsecase
}

func NewAccountHandler(linkUsecase usecase.LinkUsecase) *AccountHandler {
	return &AccountHandler{
		linkUsecase: linkUsecase,
	}
}

type linkRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *AccountHandler) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	userID := c.GetString("userID")
	account, err := h.linkUsecase.LinkGoogleAccount(c.Request.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrAlreadyWatched):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, usecase.ErrNoRefreshToken):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.linkUsecase.ListLinkedAccounts(c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *AccountHandler) Unlink(c *gin.Context) {
	err := h.linkUsecase.UnlinkAccount(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
