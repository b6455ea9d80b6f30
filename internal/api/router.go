package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/amirrezabahramy/inquiry-system-server/internal/api/handlers"
	"github.com/amirrezabahramy/inquiry-system-server/internal/api/middleware"
	"github.com/amirrezabahramy/inquiry-system-server/internal/config"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient) *gin.Engine {
	userService := services.NewUserService(db, cfg)
	conversationService := services.NewConversationService(db)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigin))
	r.Use(rateLimiter.Limit())

	authHandler := handlers.NewAuthHandler(cfg, userService)
	userHandler := handlers.NewUserHandler(userService)
	conversationHandler := handlers.NewConversationHandler(conversationService, userService, taskClient)
	downloadHandler := handlers.NewDownloadHandler(conversationService)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public routes
		v1.POST("/auth/signup", authHandler.Signup)
		v1.POST("/auth/login", authHandler.Login)

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			critical := authRequired.Group("/critical")
			critical.Use(middleware.RequireRoles(models.RoleSuperAdmin))
			{
				critical.POST("/add-user", userHandler.AddUser)
			}

			users := authRequired.Group("/users")
			users.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				users.GET("/options", userHandler.Options)
			}

			conversations := authRequired.Group("/conversations/:kind")
			{
				conversations.GET("", conversationHandler.List)
				conversations.POST("", middleware.RequireRoles(models.RoleAdmin), conversationHandler.Create)
				conversations.GET("/:id/recipients", middleware.RequireRoles(models.RoleAdmin), conversationHandler.ListRecipients)
				conversations.GET("/:id/recipients/:userId/replies", middleware.RequireRoles(models.RoleAdmin), conversationHandler.ListReplies)
				conversations.GET("/:id/replies", conversationHandler.ListReplies)
				conversations.PATCH("/:id/answer", conversationHandler.SubmitAnswer)
			}

			download := authRequired.Group("/download")
			{
				download.GET("/conversations/:id", downloadHandler.ConversationFile)
				download.GET("/replies/:replyId", downloadHandler.ReplyFile)
			}
		}
	}

	return r
}
