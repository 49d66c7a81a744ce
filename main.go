package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"naval-session-engine/handlers"
	"naval-session-engine/middleware"
	"naval-session-engine/models"
	"naval-session-engine/services"
	"naval-session-engine/utils"
	"naval-session-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, raw, def)
		return def
	}
	return time.Duration(secs) * time.Second
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // boards and shots are tiny payloads
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Session{},
		&models.Invite{},
		&models.ScoreRecord{},
		&models.PlayerStanding{},
		&models.StakeConfirmation{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	store := services.NewGormStore(db)
	events := services.NewEventHub()

	scheduler, err := services.NewTurnScheduler()
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	settlement := services.NewSettlementService(store, events)
	registry := services.NewSessionRegistry(store, events, scheduler, settlement)
	registry.TurnTimeout = envDuration("TURN_TIMEOUT_SECONDS", 60*time.Second)
	registry.RematchWindow = envDuration("REMATCH_WINDOW_SECONDS", 30*time.Second)

	pool := services.NewMatchPoolService(registry)
	invites := services.NewInviteService(store, registry)
	sessionService := services.NewSessionService(registry, events)

	// Recurring sweeps share the turn-timer scheduler
	scheduler.Every(time.Minute, invites.ExpireSweep)
	scheduler.Every(5*time.Minute, func() {
		if evicted := registry.CloseIdleSessions(30 * time.Minute); evicted > 0 {
			log.Printf("🧹 Evicted %d idle session(s)", evicted)
		}
		pool.PruneParked(time.Hour)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stakeSyncClient := workers.NewStakeSyncClient(store)
	go workers.PollStakes(ctx, stakeSyncClient, registry, pool, invites, 10*time.Second)
	go workers.PollArchives(ctx, store, time.Minute)

	handlers.SetupSessionRoutes(app, sessionService, settlement, events)
	handlers.SetupMatchPoolRoutes(app, pool)
	handlers.SetupInviteRoutes(app, invites)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Stake confirmation polling running (every 10s)")
	log.Println("✅ Transcript archive polling running (every 60s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	scheduler.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.Printf("Fiber shutdown error: %v", err)
	}
}
