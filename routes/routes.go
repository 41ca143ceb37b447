package routes

import (
	"log/slog"

	"aiclone/controllers"
	"aiclone/middlewares"
	"aiclone/services"

	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Users         *services.UserService
	Conversations *services.ConversationService
	Logger        *slog.Logger
}

func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(middlewares.Logger(logger), gin.Recovery(), middlewares.CORS())

	users := controllers.NewUserController(deps.Users)
	conversations := controllers.NewConversationController(deps.Conversations)

	api := r.Group("/api")

	api.GET("/health", controllers.HealthCheck)

	// ユーザー（パーソナリティ）
	api.POST("/users", users.CreateUser)
	api.GET("/users", users.GetUsers)
	api.GET("/users/:user_id", users.GetUser)

	// クローン同士の会話
	api.POST("/conversations", conversations.CreateConversation)
	api.GET("/conversations", conversations.GetConversations)
	api.GET("/conversations/:user_id", conversations.GetUserConversations)

	return r
}
