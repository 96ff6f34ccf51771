package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"heartline/backend/internal/api/handler"
	"heartline/backend/internal/chathub"
	"heartline/backend/internal/models"
	"heartline/backend/internal/moderation"
	"heartline/backend/internal/storage"
	"heartline/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupDependencies() (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	dsn := envOr("DATABASE_DSN",
		"host=localhost user=user password=password dbname=heartlinedb port=5432 sslmode=disable")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.Message{},
		&models.Feedback{},
		&models.Report{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting Heartline Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is not set!")
	}

	// 1. Dependencies
	db, rdb := setupDependencies()
	s := storage.NewStorageService(db, rdb)

	// 2. Core services
	pool := chathub.NewPool(s)
	if err := pool.Load(); err != nil {
		log.Fatalf("Failed to load listener pool: %v", err)
	}
	sessions := chathub.NewSessionManager(s, pool)
	matcher := chathub.NewMatcher(pool, sessions, s)
	router := chathub.NewMessageRouter(s, sessions, moderation.NewService())
	hub := chathub.NewHub(s, pool, sessions, matcher, router)

	// Restore in-flight sessions from the previous run before serving.
	if err := sessions.Recover(); err != nil {
		log.Printf("ERROR: Session recovery: %v", err)
	}

	// Admin report notifications are optional; the bell stays silent when
	// no bot token is configured.
	var notifier *telegram.Notifier
	if botToken := os.Getenv("TELEGRAM_BOT_TOKEN"); botToken != "" {
		adminChatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_ADMIN_CHAT_ID"), 10, 64)
		var err error
		notifier, err = telegram.NewNotifier(botToken, adminChatID)
		if err != nil {
			log.Fatalf("Failed to start report notifier: %v", err)
		}
	}

	// 3. Core goroutines
	go hub.Run()
	go matcher.Run()
	go router.RunRetentionSweeper()
	hub.StartPubSubListener()

	// 4. Gin routing
	r := gin.Default()
	h := handler.NewHandler(hub, pool, matcher, sessions, router, s, notifier, []byte(jwtSecret))

	r.POST("/token", h.IssueToken)

	authed := r.Group("/", h.AuthRequired())
	authed.GET("/ws", h.ServeWebSocket)

	api := authed.Group("/api")
	{
		match := api.Group("/match", h.RoleRequired(models.RoleSharer))
		match.POST("/find-listeners", h.FindListeners)
		match.POST("/request", h.RequestMatch)
		match.POST("/request-chat", h.RequestChat)

		chat := api.Group("/chat")
		chat.GET("/sessions/active", h.GetActiveSession)
		chat.GET("/sessions/:id/messages", h.GetMessages)
		chat.POST("/sessions/:id/end", h.EndChat)

		api.POST("/feedback", h.SubmitFeedback)
		api.POST("/reports", h.SubmitReport)
	}

	server := &http.Server{
		Addr:           envOr("LISTEN_ADDR", ":8080"),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
