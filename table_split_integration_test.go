package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeremiapane/table-split-app/controllers"
	"github.com/yeremiapane/table-split-app/middlewares"
	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/services"
	"github.com/yeremiapane/table-split-app/utils"
)

// scriptedGateway answers each charge from a queue of statuses and
// keeps answering the last one when the queue runs dry.
type scriptedGateway struct {
	statuses []string
	calls    int
}

func (s *scriptedGateway) Charge(req *services.ChargeRequest) (*services.ChargeResult, error) {
	idx := s.calls
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.calls++
	return &services.ChargeResult{TransactionID: "txn-" + req.Reference, Status: s.statuses[idx]}, nil
}

func (s *scriptedGateway) Refund(transactionID string, amount int64) error { return nil }

func (s *scriptedGateway) VerifyWebhook(reference, statusCode, grossAmount, signature string) bool {
	return signature == "valid-signature"
}

func (s *scriptedGateway) GetStatus(reference string) (string, error) {
	return services.GatewayStatusSuccess, nil
}

type apiHarness struct {
	db     *gorm.DB
	router *gin.Engine
	stub   *scriptedGateway
}

func newAPIHarness(t *testing.T) *apiHarness {
	utils.InitLogger()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.TableSession{},
		&models.SessionMember{},
		&models.Order{},
		&models.SplitPaymentShare{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	db.Create(&models.Restaurant{Name: "Sate Senayan", Slug: "sate-senayan"})

	stub := &scriptedGateway{statuses: []string{services.GatewayStatusSuccess}}
	factory := services.NewGatewayFactory()
	factory.Register(services.ProviderMidtrans, func() services.PaymentGateway { return stub })
	factory.Register(services.ProviderPix, func() services.PaymentGateway { return stub })

	sessionSvc := services.NewSessionService(db)
	orderSvc := services.NewOrderService(db, sessionSvc)
	settlementSvc := services.NewSettlementService(db, factory, orderSvc)

	userCtrl := controllers.NewUserController(db)
	sessionCtrl := controllers.NewSessionController(db, sessionSvc)
	orderCtrl := controllers.NewOrderController(db, orderSvc)
	settlementCtrl := controllers.NewSettlementController(db, settlementSvc, orderSvc)

	gin.SetMode(gin.TestMode)
	r := gin.Default()

	r.POST("/register", userCtrl.Register)
	r.POST("/login", userCtrl.Login)
	r.GET("/pay/:token", settlementCtrl.ResolveByToken)
	r.POST("/pay/:token", settlementCtrl.Charge)
	r.POST("/pay/:token/reconcile", settlementCtrl.Reconcile)
	r.POST("/payments/callback", settlementCtrl.HandleCallback)

	auth := r.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.POST("/sessions", sessionCtrl.ResolveOrCreate)
		auth.POST("/sessions/:session_id/join", sessionCtrl.Join)
		auth.PATCH("/sessions/:session_id/members/:member_id", sessionCtrl.Decide)
		auth.GET("/sessions/:session_id", sessionCtrl.GetView)
		auth.POST("/sessions/:session_id/close", sessionCtrl.Close)
		auth.POST("/orders", orderCtrl.CreateOrder)
		auth.GET("/orders/:order_id", orderCtrl.GetOrder)
		auth.POST("/orders/:order_id/split", settlementCtrl.CreateShares)
		auth.GET("/orders/:order_id/payment-status", settlementCtrl.AggregateStatus)
	}

	return &apiHarness{db: db, router: r, stub: stub}
}

func (h *apiHarness) request(t *testing.T, method, url, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	data, _ := resp["data"].(map[string]interface{})
	return w, data
}

func (h *apiHarness) signup(t *testing.T, name, email string) (uint, string) {
	w, data := h.request(t, "POST", "/register", "", gin.H{
		"name": name, "email": email, "password": "s3cretpass",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	userID := uint(data["user_id"].(float64))

	w, data = h.request(t, "POST", "/login", "", gin.H{
		"email": email, "password": "s3cretpass",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	return userID, data["token"].(string)
}

// TestDinnerForThree walks the whole product journey: three diners at
// one table, session membership with approvals, one finalized order,
// an explicit split, and every share paid through the payment links.
func TestDinnerForThree(t *testing.T) {
	h := newAPIHarness(t)

	anaID, anaToken := h.signup(t, "Ana", "ana@example.com")
	budiID, budiToken := h.signup(t, "Budi", "budi@example.com")
	citraID, citraToken := h.signup(t, "Citra", "citra@example.com")

	// Ana scans the table QR first and owns the session
	w, data := h.request(t, "POST", "/sessions", anaToken, gin.H{"restaurant_id": 1, "table_number": 9})
	assert.Equal(t, http.StatusOK, w.Code)
	sessionID := uint(data["session"].(map[string]interface{})["id"].(float64))
	assert.Equal(t, "approved", data["caller"].(map[string]interface{})["status"])

	// Budi and Citra scan the same QR and land in the waiting room
	w, data = h.request(t, "POST", "/sessions", budiToken, gin.H{"restaurant_id": 1, "table_number": 9})
	assert.Equal(t, http.StatusOK, w.Code)
	budiMemberID := uint(data["caller"].(map[string]interface{})["id"].(float64))

	w, data = h.request(t, "POST", "/sessions", citraToken, gin.H{"restaurant_id": 1, "table_number": 9})
	assert.Equal(t, http.StatusOK, w.Code)
	citraMemberID := uint(data["caller"].(map[string]interface{})["id"].(float64))

	// Ana approves both from her member list
	w, _ = h.request(t, "PATCH", fmt.Sprintf("/sessions/%d/members/%d", sessionID, budiMemberID), anaToken, gin.H{"approve": true})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = h.request(t, "PATCH", fmt.Sprintf("/sessions/%d/members/%d", sessionID, citraMemberID), anaToken, gin.H{"approve": true})
	assert.Equal(t, http.StatusOK, w.Code)

	w, data = h.request(t, "GET", fmt.Sprintf("/sessions/%d", sessionID), citraToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data["members"].([]interface{}), 3)

	// Dinner ends; Ana finalizes the bill at 150,000.00 in minor units
	w, data = h.request(t, "POST", "/orders", anaToken, gin.H{"session_id": sessionID, "total_amount": 15000000})
	assert.Equal(t, http.StatusCreated, w.Code)
	orderID := uint(data["id"].(float64))

	// Explicit split: Ana ate the big plate
	w, _ = h.request(t, "POST", fmt.Sprintf("/orders/%d/split", orderID), anaToken, gin.H{
		"mode": "amounts",
		"participants": []gin.H{
			{"user_id": anaID, "amount": 7000000},
			{"user_id": budiID, "amount": 4000000},
			{"user_id": citraID, "amount": 4000000},
		},
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var shares []models.SplitPaymentShare
	h.db.Where("order_id = ?", orderID).Order("id asc").Find(&shares)
	assert.Len(t, shares, 3)
	var sum int64
	for _, s := range shares {
		sum += s.Amount
	}
	assert.Equal(t, int64(15000000), sum)

	// Ana pays hers right away
	w, data = h.request(t, "POST", "/pay/"+shares[0].Token, "", gin.H{"method": "qris"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", data["status"])

	// Budi's card is declined once, then he retries and succeeds
	h.stub.statuses = []string{services.GatewayStatusFailed, services.GatewayStatusSuccess}
	h.stub.calls = 0
	w, _ = h.request(t, "POST", "/pay/"+shares[1].Token, "", gin.H{"method": "qris"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w, data = h.request(t, "GET", "/pay/"+shares[1].Token, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, data["already_paid"])

	w, data = h.request(t, "POST", "/pay/"+shares[1].Token, "", gin.H{"method": "qris"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", data["status"])

	w, data = h.request(t, "GET", fmt.Sprintf("/orders/%d/payment-status", orderID), anaToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", data["payment_status"])

	// Citra settles the last share and the order closes out
	h.stub.statuses = []string{services.GatewayStatusSuccess}
	h.stub.calls = 0
	w, _ = h.request(t, "POST", "/pay/"+shares[2].Token, "", gin.H{"method": "qris"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, data = h.request(t, "GET", fmt.Sprintf("/orders/%d/payment-status", orderID), anaToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", data["payment_status"])

	var order models.Order
	h.db.First(&order, orderID)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	// Full settlement closed the table session as well
	var session models.TableSession
	h.db.First(&session, sessionID)
	assert.Equal(t, models.SessionStatusClosed, session.Status)

	// The table is free again for the next party
	w, data = h.request(t, "POST", "/sessions", budiToken, gin.H{"restaurant_id": 1, "table_number": 9})
	assert.Equal(t, http.StatusOK, w.Code)
	newSessionID := uint(data["session"].(map[string]interface{})["id"].(float64))
	assert.NotEqual(t, sessionID, newSessionID)
}
