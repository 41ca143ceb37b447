package controllers

import (
	"errors"
	"net/http"

	"aiclone/models"
	"aiclone/services"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

// ユーザーとパーソナリティを登録
func (uc *UserController) CreateUser(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := uc.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
			return
		}
		respondError(c, err, "Error creating user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User created successfully",
		"user_id": user.UserID,
	})
}

func (uc *UserController) GetUsers(c *gin.Context) {
	users, err := uc.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Error fetching users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (uc *UserController) GetUser(c *gin.Context) {
	user, err := uc.users.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		respondError(c, err, "Error fetching user")
		return
	}
	c.JSON(http.StatusOK, user)
}
