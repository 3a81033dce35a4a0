package router

import (
	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-split-app/controllers"
	"github.com/yeremiapane/table-split-app/middlewares"
	"github.com/yeremiapane/table-split-app/services"
	"gorm.io/gorm"
)

func SetupRouter(db *gorm.DB) *gin.Engine {
	r := gin.Default()

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())

	sessionSvc := services.NewSessionService(db)
	orderSvc := services.NewOrderService(db, sessionSvc)
	gatewayFactory := services.NewGatewayFactory()
	settlementSvc := services.NewSettlementService(db, gatewayFactory, orderSvc)

	userCtrl := controllers.NewUserController(db)
	sessionCtrl := controllers.NewSessionController(db, sessionSvc)
	orderCtrl := controllers.NewOrderController(db, orderSvc)
	settlementCtrl := controllers.NewSettlementController(db, settlementSvc, orderSvc)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	public := r.Group("/")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/register", userCtrl.Register)
		public.POST("/login", userCtrl.Login)
	}

	// Payment links are reached from a shared URL, not a login session.
	pay := r.Group("/pay")
	pay.Use(middlewares.PaymentSecurityHeaders())
	{
		pay.GET("/:token", settlementCtrl.ResolveByToken)
		pay.POST("/:token", settlementCtrl.Charge)
		pay.POST("/:token/reconcile", settlementCtrl.Reconcile)
	}

	// Gateway webhook; authenticated by its own signature scheme.
	r.POST("/payments/callback", settlementCtrl.HandleCallback)

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	auth := r.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.POST("/logout", userCtrl.Logout)
		auth.GET("/profile", userCtrl.GetProfile)

		// Table sessions
		auth.POST("/sessions", sessionCtrl.ResolveOrCreate)
		auth.GET("/sessions/:session_id", sessionCtrl.GetView) // polled ~3s by pending members
		auth.PATCH("/sessions/:session_id/members/:member_id", sessionCtrl.Decide)
		auth.POST("/sessions/:session_id/close", sessionCtrl.Close)

		// Join gets the strict limiter: a rejected member may re-request
		// without bound.
		join := auth.Group("/")
		join.Use(middlewares.NewStrictRateLimiter())
		{
			join.POST("/sessions/:session_id/join", sessionCtrl.Join)
		}

		// Orders & settlement
		auth.POST("/orders", orderCtrl.CreateOrder)
		auth.GET("/orders/:order_id", orderCtrl.GetOrder)
		auth.POST("/orders/:order_id/split", settlementCtrl.CreateShares)
		auth.GET("/orders/:order_id/payment-status", settlementCtrl.AggregateStatus)
	}

	return r
}
