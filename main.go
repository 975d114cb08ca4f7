package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"frequent-buyer-system/handlers"
	"frequent-buyer-system/middleware"
	"frequent-buyer-system/models"
	"frequent-buyer-system/services"
	"frequent-buyer-system/utils"
	"frequent-buyer-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

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
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Tenant-ID, X-User-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitArchiveStore(); err != nil {
		log.Fatal("failed to initialize archive store:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Offer{},
		&models.QualifyingVariation{},
		&models.PurchaseEvent{},
		&models.Reward{},
		&models.Redemption{},
		&models.CustomerSummary{},
		&models.AuditLogEntry{},
		&models.Setting{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// --- POS client (injected once at startup, never a lazy singleton) ---
	posBaseURL := os.Getenv("POS_SERVICE_URL")
	if posBaseURL == "" {
		log.Fatal("POS_SERVICE_URL environment variable not set")
	}
	posToken := os.Getenv("POS_SERVICE_TOKEN")
	if posToken == "" {
		log.Fatal("POS_SERVICE_TOKEN environment variable not set")
	}
	posClient := services.NewHTTPPOSClient(posBaseURL, posToken)

	defaultMaxDiscountCents := int64(2500)
	if v := os.Getenv("DEFAULT_MAX_DISCOUNT_CENTS"); v != "" {
		if cents, err := strconv.ParseInt(v, 10, 64); err == nil && cents > 0 {
			defaultMaxDiscountCents = cents
		}
	}

	auditService := services.NewAuditService(db)
	summaryService := services.NewSummaryService(db)
	settingsService := services.NewSettingsService(db, auditService, defaultMaxDiscountCents)
	rewardService := services.NewRewardStateService(db, auditService, summaryService)
	posSyncService := services.NewPOSSyncService(db, posClient, auditService, settingsService)

	syncWorkers := 4
	if v := os.Getenv("POS_SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			syncWorkers = n
		}
	}
	syncPool := workers.NewPOSSyncPool(posSyncService, syncWorkers, 0)

	ledgerService := services.NewLedgerService(db, rewardService, auditService, settingsService, syncPool)
	redemptionService := services.NewRedemptionService(db, auditService, summaryService, settingsService, syncPool)
	offerService := services.NewOfferService(db, auditService)
	loyaltyService := services.NewLoyaltyService(ledgerService, rewardService, redemptionService, summaryService, auditService, settingsService)
	catchup := workers.NewCatchupReconciler(db, posClient, ledgerService, redemptionService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncPool.Start(ctx)
	catchup.StartDaily(ctx, func() ([]string, error) {
		var tenants []string
		err := db.Model(&models.Offer{}).Distinct("tenant_id").Pluck("tenant_id", &tenants).Error
		return tenants, err
	})

	services.StartLoyaltyScheduler(rewardService, auditService, syncPool)

	handlers.SetupLoyaltyRoutes(app, loyaltyService)
	handlers.SetupAdminRoutes(app, offerService, loyaltyService, catchup)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Printf("✅ POS sync pool running (%d workers)", syncWorkers)
	log.Println("✅ Catchup reconciler running (daily)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
