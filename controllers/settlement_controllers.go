package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-split-app/services"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

type SettlementController struct {
	DB         *gorm.DB
	Settlement *services.SettlementService
	Orders     *services.OrderService
}

func NewSettlementController(db *gorm.DB, settlement *services.SettlementService, orders *services.OrderService) *SettlementController {
	return &SettlementController{DB: db, Settlement: settlement, Orders: orders}
}

// CreateShares -> split a finalized order among participants. Equal
// mode divides evenly; amounts mode takes explicit values that must
// sum to the order total.
func (stc *SettlementController) CreateShares(c *gin.Context) {
	orderID, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}

	type reqBody struct {
		Mode         string                      `json:"mode" binding:"required,oneof=equal amounts"`
		Participants []services.ShareParticipant `json:"participants" binding:"required"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := currentUser(c, stc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	// Only the owner of the session behind the order may split the bill.
	order, err := stc.Orders.Get(orderID)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	if !stc.isSessionOwner(order.SessionID, user.ID) {
		utils.RespondError(c, http.StatusForbidden, services.ErrNotOwner)
		return
	}

	shares, err := stc.Settlement.CreateShares(orderID, req.Participants, req.Mode)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Shares created", shares)
}

// ResolveByToken -> public lookup behind the shared payment link. A
// paid share comes back flagged already_paid instead of erroring.
func (stc *SettlementController) ResolveByToken(c *gin.Context) {
	token := c.Param("token")

	share, alreadyPaid, err := stc.Settlement.ResolveByToken(token)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	message := "Share ready for payment"
	if alreadyPaid {
		message = "Share already paid"
	}
	utils.RespondJSON(c, http.StatusOK, message, gin.H{
		"share":            share,
		"already_paid":     alreadyPaid,
		"amount_formatted": utils.FormatAmount(share.Amount),
		"currency":         utils.CurrencyCode(),
	})
}

// Charge -> public: the payer settles their share with a chosen method
func (stc *SettlementController) Charge(c *gin.Context) {
	token := c.Param("token")

	type reqBody struct {
		Method  string            `json:"method" binding:"required"`
		Details map[string]string `json:"details"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	share, alreadyPaid, err := stc.Settlement.Charge(token, req.Method, req.Details)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	if alreadyPaid {
		utils.RespondJSON(c, http.StatusOK, "Share already paid", gin.H{
			"share":        share,
			"already_paid": true,
		})
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Charge processed", share)
}

// Reconcile -> re-query the gateway for a share stuck in processing
func (stc *SettlementController) Reconcile(c *gin.Context) {
	token := c.Param("token")

	share, err := stc.Settlement.Reconcile(token)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Share reconciled", share)
}

// AggregateStatus -> order-level payment status derived from the shares
func (stc *SettlementController) AggregateStatus(c *gin.Context) {
	orderID, ok := parseUintParam(c, "order_id")
	if !ok {
		return
	}

	if _, err := stc.Orders.Get(orderID); err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	status, err := stc.Settlement.AggregateStatus(orderID)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}
	shares, err := stc.Settlement.SharesForOrder(orderID)
	if err != nil {
		utils.RespondError(c, statusForError(err), err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Order payment status", gin.H{
		"order_id":       orderID,
		"payment_status": status,
		"shares":         shares,
	})
}

// HandleCallback -> gateway webhook notifications. The signature is
// verified through the provider's gateway before any share moves.
func (stc *SettlementController) HandleCallback(c *gin.Context) {
	type reqBody struct {
		Provider          string `json:"provider" binding:"required"`
		Reference         string `json:"reference" binding:"required"`
		StatusCode        string `json:"status_code"`
		GrossAmount       string `json:"gross_amount"`
		Signature         string `json:"signature" binding:"required"`
		TransactionStatus string `json:"transaction_status" binding:"required"`
	}
	var req reqBody
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	err := stc.Settlement.ProcessCallback(req.Provider, req.Reference,
		req.StatusCode, req.GrossAmount, req.Signature, req.TransactionStatus)
	if err != nil {
		if errors.Is(err, services.ErrInvalidOrExpiredToken) || errors.Is(err, services.ErrUnknownGateway) {
			utils.RespondError(c, statusForError(err), err)
			return
		}
		utils.RespondError(c, http.StatusForbidden, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Callback processed", nil)
}

func (stc *SettlementController) isSessionOwner(sessionID, userID uint) bool {
	var ownerID uint
	err := stc.DB.Table("table_sessions").Select("owner_id").
		Where("id = ?", sessionID).Scan(&ownerID).Error
	return err == nil && ownerID == userID
}
