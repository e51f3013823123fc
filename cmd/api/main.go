package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewops/backend/internal/config"
	"github.com/crewops/backend/internal/database"
	"github.com/crewops/backend/internal/handlers"
	"github.com/crewops/backend/internal/middleware"
	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/push"
	"github.com/crewops/backend/internal/services"
	"github.com/crewops/backend/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed admin user if not exists
	seedAdminUser()

	// Initialize the push provider. Without credentials the engine still
	// accepts notifications; delivery resumes once FCM is configured.
	var provider push.Provider
	if cfg.FCMCredentialsFile != "" {
		fcm, err := push.NewFCMProvider(context.Background(), cfg.FCMCredentialsFile, cfg.MaxDeliveryAttempts)
		if err != nil {
			log.Printf("Warning: FCM initialization failed, push delivery disabled: %v", err)
		} else {
			provider = fcm
		}
	}

	// Stores
	notificationStore := store.NewNotificationStore(database.DB)
	deviceStore := store.NewDeviceStore(database.DB)
	auditStore := store.NewAuditStore(database.DB)
	orgStore := store.NewOrgStore(database.DB)

	// Services
	quotaGate := services.NewQuotaGate(database.QuotaCounter{}, notificationStore, auditStore, cfg.DailyNotificationLimit)

	deliveryService := services.NewDeliveryService(
		notificationStore, deviceStore, auditStore, provider,
		time.Duration(cfg.PushTimeoutSeconds)*time.Second, cfg.MaxDeliveryAttempts)

	notificationService := services.NewNotificationService(notificationStore, quotaGate, auditStore, deliveryService)

	escalationService := services.NewEscalationService(
		notificationStore, orgStore, notificationService, auditStore,
		time.Duration(cfg.EscalationSweepMinutes)*time.Minute,
		time.Duration(cfg.EscalationTimeoutHours)*time.Hour)
	escalationService.Start()
	defer escalationService.Stop()

	syncService := services.NewSyncService(notificationStore, auditStore, cfg.SyncBatchSize)

	retentionService := services.NewRetentionService(notificationStore, auditStore, deliveryService)
	if err := retentionService.Start(); err != nil {
		log.Fatalf("Failed to start retention service: %v", err)
	}
	defer retentionService.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "CrewOps Notification API v1.0",
		ServerHeader: "CrewOps",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "crewops-api",
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	notificationHandler := handlers.NewNotificationHandler(notificationService, syncService, escalationService)
	syncHandler := handlers.NewSyncHandler(syncService)
	deviceHandler := handlers.NewDeviceHandler(deviceStore)

	// API routes
	api := app.Group("/api")
	api.Use(middleware.RateLimiter(100))

	// Public routes
	api.Post("/auth/login", authHandler.Login)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg))
	protected.Get("/auth/me", authHandler.Me)

	protected.Get("/notifications", notificationHandler.List)
	protected.Post("/notifications", middleware.SupervisorOrAdmin(), notificationHandler.Create)
	protected.Post("/notifications/:id/read", notificationHandler.MarkRead)
	protected.Post("/notifications/:id/acknowledge", notificationHandler.Acknowledge)

	protected.Post("/sync/notifications", syncHandler.Reconcile)
	protected.Post("/sync/reads", syncHandler.MarkRead)
	protected.Get("/sync/notifications", syncHandler.Changes)

	protected.Post("/devices", deviceHandler.Register)
	protected.Put("/devices/:id/preferences", deviceHandler.UpdatePreferences)
	protected.Delete("/devices/:id", deviceHandler.Unregister)

	admin := protected.Group("/admin", middleware.AdminOnly())
	admin.Post("/escalations/sweep", notificationHandler.SweepEscalations)
	admin.Post("/notifications/:id/escalate", notificationHandler.ForceEscalate)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting CrewOps Notification API on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// seedAdminUser creates the default admin account on first boot
func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("WARNING: ADMIN_PASSWORD not set - using default admin password, change it immediately!")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		return
	}

	admin := models.User{
		Username: "admin",
		Password: string(hashed),
		FullName: "System Administrator",
		Role:     models.RoleAdmin,
		IsActive: true,
	}

	if err := database.DB.Create(&admin).Error; err != nil {
		log.Printf("Failed to seed admin user: %v", err)
		return
	}

	log.Println("Seeded default admin user")
}
