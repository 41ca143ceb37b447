package controllers

import (
	"errors"
	"net/http"

	"aiclone/services"

	"github.com/gin-gonic/gin"
)

type ConversationController struct {
	conversations *services.ConversationService
}

func NewConversationController(conversations *services.ConversationService) *ConversationController {
	return &ConversationController{conversations: conversations}
}

type conversationRequest struct {
	User1ID string `json:"user1_id" binding:"required"`
	User2ID string `json:"user2_id" binding:"required"`
	Topic   string `json:"topic"`
}

// 2人のクローンの会話を生成して保存する
func (cc *ConversationController) CreateConversation(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := cc.conversations.Create(c.Request.Context(), services.ConversationRequest{
		User1ID: req.User1ID,
		User2ID: req.User2ID,
		Topic:   req.Topic,
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "One or both users not found"})
			return
		}
		respondError(c, err, "Error generating conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": view.ConversationID,
		"messages":        view.Messages,
		"participants":    view.Participants,
	})
}

func (cc *ConversationController) GetConversations(c *gin.Context) {
	views, err := cc.conversations.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error fetching conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (cc *ConversationController) GetUserConversations(c *gin.Context) {
	views, err := cc.conversations.ListForUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err, "Error fetching user conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}
