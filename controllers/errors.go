package controllers

import (
	"errors"
	"net/http"

	"aiclone/services"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// 500系はプレフィックスを付け、400系はエラーのメッセージをそのまま返す
func respondError(c *gin.Context, err error, context string) {
	status := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError && context != "" {
		msg = context + ": " + msg
	}
	c.JSON(status, gin.H{"error": msg})
}
