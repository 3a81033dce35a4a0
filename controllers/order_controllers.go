package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-split-app/services"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

type OrderController struct {
	DB     *gorm.DB
	Orders *services.OrderService
}

func NewOrderController(db *gorm.DB, orders *services.OrderService) *OrderController {
	return &OrderController{DB: db, Orders: orders}
}

// CreateOrder -> session owner finalizes the bill for checkout.
// TotalAmount is in minor currency units.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	type reqBody struct {
		SessionID   uint  `json:"session_id" binding:"required"`
		TotalAmount int64 `json:"total_amount" binding:"required,gt=0"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := currentUser(c, oc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	order, err := oc.Orders.Create(req.SessionID, req.TotalAmount, user)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

// GetOrder -> order detail
func (oc *OrderController) GetOrder(c *gin.Context) {
	orderID, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}

	order, err := oc.Orders.Get(orderID)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}
