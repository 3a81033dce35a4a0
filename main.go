package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/yeremiapane/table-split-app/config"
	"github.com/yeremiapane/table-split-app/middlewares"
	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/router"
	"github.com/yeremiapane/table-split-app/services"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading: %v", err)
	}

	utils.InitLogger()
}

func main() {
	db, err := config.InitDB()
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	utils.InitDB(db)

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	autoMigrate(db)

	rateLimiter := middlewares.NewRateLimiter(50, 1)

	// Background reconciler for shares stuck in processing
	sessionSvc := services.NewSessionService(db)
	orderSvc := services.NewOrderService(db, sessionSvc)
	settlementSvc := services.NewSettlementService(db, services.NewGatewayFactory(), orderSvc)
	monitor := services.NewSettlementMonitor(db, settlementSvc)
	monitor.Start()
	defer monitor.Stop()

	r := router.SetupRouter(db)
	r.Use(rateLimiter.RateLimit())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	utils.InfoLogger.Printf("Listening on port %s", port)
	if err := r.Run(":" + port); err != nil {
		utils.ErrorLogger.Fatal(err)
	}
}

func autoMigrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.TableSession{},
		&models.SessionMember{},
		&models.Order{},
		&models.SplitPaymentShare{},
	)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
}
