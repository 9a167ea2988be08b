package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/innotech-solutions/innotech-api/database"
	"github.com/innotech-solutions/innotech-api/handlers"
	auth_handlers "github.com/innotech-solutions/innotech-api/handlers/auth"
	chat_handlers "github.com/innotech-solutions/innotech-api/handlers/chat"
	session_handlers "github.com/innotech-solutions/innotech-api/handlers/session"
	"github.com/innotech-solutions/innotech-api/services"
	openaisvc "github.com/innotech-solutions/innotech-api/services/openai"
	"github.com/innotech-solutions/innotech-api/utils/auth"
	"github.com/innotech-solutions/innotech-api/utils/cache"
	"github.com/innotech-solutions/innotech-api/utils/middleware"
)

func SetupRoutes(app *fiber.App, store database.Storage) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "innotech-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize Redis cache for brute force protection and the stream guard
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection degrades and the stream guard becomes process-local.", err)
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Initialize auth handler with brute force protection
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection)

	// Completion adapter and streaming chat
	openaiService := openaisvc.NewService(os.Getenv("OPENAI_API_KEY"))
	streamGuard := services.NewStreamGuard(redisCache)
	chatService := services.NewChatService(db, openaiService, streamGuard)
	chatHandler := chat_handlers.NewChatHandler(db, chatService)

	// Agent session CRUD and usage
	sessionService := services.NewSessionService(db)
	sessionHandler := session_handlers.NewSessionHandler(db, sessionService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error { return handlers.HandleCheckHealth(c, store) })

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)

	// Agent session routes (protected)
	sessions := api.Group("/sessions", authMiddleware.Required())
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Post("/", sessionHandler.CreateSession)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Patch("/:id", sessionHandler.UpdateSession)

	// Usage dashboard (protected)
	api.Get("/usage", authMiddleware.Required(), sessionHandler.GetUsage)

	// Streaming chat (protected)
	chat := api.Group("/chat", authMiddleware.Required())
	chat.Post("/stream", chatHandler.StreamMessage)
}
