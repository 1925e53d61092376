package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"greendrake/estate/internal/api/handlers"
	"greendrake/estate/internal/api/middleware"
	"greendrake/estate/internal/captcha"
	"greendrake/estate/internal/config"
	"greendrake/estate/internal/email"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/services"
)

// messagesRoute is polled every few seconds by open chats and gets its own buckets.
const messagesRoute = "/v1/chat/:conversationId/messages"

// Services are the workflow services the public API exposes.
type Services struct {
	Conversations services.IConversationService
	Messages      services.IMessageService
	Inquiries     services.IInquiryService
	Verifications services.IVerificationService
}

// SetupRouter configures and returns the main Gin engine. The returned rate
// limiter must be stopped on shutdown.
func SetupRouter(cfg *config.Config, svc Services, captchaVerifier captcha.ITurnstileVerifier) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	log := logger.Global().Named("http")

	r := gin.New()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	// A 1 s poll interval from a few open tabs must never hit the captcha wall.
	rateLimiter.SetRouteLimits(messagesRoute, middleware.Limits{
		SoftRefillRate: cfg.RateLimitSoftRefillRate * 5,
		SoftBucketSize: cfg.RateLimitSoftBucketSize * 5,
		HardRefillRate: cfg.RateLimitHardRefillRate * 5,
		HardBucketSize: cfg.RateLimitHardBucketSize * 5,
	})

	// Apply global middleware first (order matters)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.CaptchaMiddleware(cfg, captchaVerifier))
	r.Use(rateLimiter.Limit())

	jsonApiHandler := handlers.NewJsonApiHandler(cfg, svc.Conversations, svc.Messages, svc.Inquiries, svc.Verifications)
	restChatHandler := handlers.NewRestChatHandler(svc.Conversations, svc.Messages)
	restAdminHandler := handlers.NewRestAdminHandler(svc.Inquiries, svc.Verifications)

	v1 := r.Group("/v1")
	{
		// Auth for JSON API methods is decided per method inside the handler.
		v1.POST("/api", jsonApiHandler.HandleRequest)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		chat := v1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			chat.GET("", restChatHandler.ListConversations)
			chat.GET("/:conversationId/messages", restChatHandler.ListMessages)
			chat.POST("/:conversationId/messages", restChatHandler.PostMessage)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			admin.GET("/verifications", restAdminHandler.ListVerifications)
			admin.GET("/inquiries", restAdminHandler.ListInquiries)
		}
	}

	return r, rateLimiter
}

// SetupServiceRouter configures and returns the service Gin engine. rdb may be
// nil, in which case getTestEmail reports that no mailbox is available.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	log := logger.Global().Named("service_api")

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api", func(c *gin.Context) {
		var req handlers.JsonApiRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info("received shutdown command via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "data": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn("shutdown channel already signaled")
			}

		case "getTestEmail":
			if rdb == nil || !cfg.MockEmailToRedis {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Mock mailbox is not enabled"})
				return
			}
			var args []string // ["email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [email]"})
				return
			}
			key := email.MailboxKey(args[0])

			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()

			// Emails are delivered by the background worker, so poll briefly.
			var raw string
			found := false
			for i := 0; i < 10; i++ {
				var err error
				raw, err = rdb.RPop(ctx, key).Result()
				if err == nil {
					found = true
					break
				}
				if err != redis.Nil {
					log.Error("mock mailbox read failed", zap.String("key", key), zap.Error(err))
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}
			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("No test email for %s", args[0])})
				return
			}

			var captured email.CapturedEmail
			if err := json.Unmarshal([]byte(raw), &captured); err != nil {
				log.Error("mock mailbox entry is not valid JSON", zap.String("key", key), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": captured})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
