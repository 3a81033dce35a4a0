package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

// Split modes
const (
	SplitModeEqual   = "equal"
	SplitModeAmounts = "amounts"
)

// DefaultMaxChargeAttempts bounds how often a payer may retry a share
// before it is parked as failed for manual resolution.
const DefaultMaxChargeAttempts = 3

// OrderCollaborator is the boundary to the external order subsystem.
// The settlement engine reads the total through it and reports full
// settlement back through it, nothing more.
type OrderCollaborator interface {
	GetOrderTotal(orderID uint) (int64, error)
	NotifyPaymentComplete(orderID uint) error
}

// ShareParticipant is one entry of a split request. Amount is ignored
// in equal mode.
type ShareParticipant struct {
	UserID uint  `json:"user_id"`
	Amount int64 `json:"amount,omitempty"`
}

// SettlementService turns one order total into independently payable
// shares and drives each share through the gateway capability.
type SettlementService struct {
	db          *gorm.DB
	gateways    *GatewayFactory
	orders      OrderCollaborator
	maxAttempts int
}

func NewSettlementService(db *gorm.DB, gateways *GatewayFactory, orders OrderCollaborator) *SettlementService {
	maxAttempts := DefaultMaxChargeAttempts
	if v := os.Getenv("SETTLEMENT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxAttempts = n
		}
	}
	return &SettlementService{
		db:          db,
		gateways:    gateways,
		orders:      orders,
		maxAttempts: maxAttempts,
	}
}

// CreateShares splits a finalized order total into one share per
// participant. Equal mode divides in minor units and hands the
// remainder one unit at a time to the first participants in input
// order, so the shares always sum to the total exactly. Amounts mode
// takes caller-supplied values; a gap of at most one minor unit is
// absorbed into the first share, anything larger is rejected. Creation
// is all-or-nothing.
func (st *SettlementService) CreateShares(orderID uint, participants []ShareParticipant, mode string) ([]models.SplitPaymentShare, error) {
	if len(participants) == 0 {
		return nil, ErrEmptyParticipants
	}

	total, err := st.orders.GetOrderTotal(orderID)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, ErrOrderNotPayable
	}

	var existing int64
	if err := st.db.Model(&models.SplitPaymentShare{}).Where("order_id = ?", orderID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrSharesExist
	}

	amounts := make([]int64, len(participants))
	switch mode {
	case SplitModeEqual:
		n := int64(len(participants))
		base := total / n
		remainder := total % n
		for i := range amounts {
			amounts[i] = base
			if int64(i) < remainder {
				amounts[i]++
			}
		}
	case SplitModeAmounts:
		var sum int64
		for i, p := range participants {
			if p.Amount <= 0 {
				return nil, fmt.Errorf("%w: participant %d amount must be positive", ErrAmountMismatch, p.UserID)
			}
			amounts[i] = p.Amount
			sum += p.Amount
		}
		diff := total - sum
		if diff > 1 || diff < -1 {
			return nil, fmt.Errorf("%w: shares sum to %d, order total is %d", ErrAmountMismatch, sum, total)
		}
		if diff != 0 {
			if amounts[0]+diff <= 0 {
				return nil, fmt.Errorf("%w: rounding adjustment would zero a share", ErrAmountMismatch)
			}
			amounts[0] += diff
		}
	default:
		return nil, fmt.Errorf("%w: unknown split mode %q", ErrAmountMismatch, mode)
	}

	shares := make([]models.SplitPaymentShare, len(participants))
	for i, p := range participants {
		shares[i] = models.SplitPaymentShare{
			OrderID: orderID,
			UserID:  p.UserID,
			Amount:  amounts[i],
			Token:   uuid.NewString(),
			Status:  models.ShareStatusPending,
		}
	}

	err = st.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&shares).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusPendingPayment).
			Update("status", models.OrderStatusSplit)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOrderNotPayable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.Printf("Order %d split into %d shares (total %s)", orderID, len(shares), utils.FormatAmount(total))
	return shares, nil
}

// ResolveByToken looks a share up by its public payment token. A paid
// share is returned with alreadyPaid set instead of an error, so a
// payer revisiting a confirmation link sees a clean success state.
func (st *SettlementService) ResolveByToken(token string) (*models.SplitPaymentShare, bool, error) {
	var share models.SplitPaymentShare
	if err := st.db.Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrInvalidOrExpiredToken
		}
		return nil, false, err
	}

	switch share.Status {
	case models.ShareStatusPaid:
		return &share, true, nil
	case models.ShareStatusPending, models.ShareStatusProcessing:
		return &share, false, nil
	default:
		return nil, false, ErrInvalidOrExpiredToken
	}
}

// Charge collects one share through the gateway for the chosen method.
// The share is moved pending -> processing with a guarded update, so a
// second concurrent charge loses with ErrAlreadyProcessing instead of
// double-submitting to the gateway. A gateway timeout leaves the share
// in processing: only Reconcile may move it on, to avoid re-charging a
// payer whose first attempt actually settled upstream.
func (st *SettlementService) Charge(token, method string, details map[string]string) (*models.SplitPaymentShare, bool, error) {
	provider, err := ProviderForMethod(method)
	if err != nil {
		return nil, false, err
	}

	var share models.SplitPaymentShare
	if err := st.db.Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrInvalidOrExpiredToken
		}
		return nil, false, err
	}

	res := st.db.Model(&models.SplitPaymentShare{}).
		Where("id = ? AND status = ?", share.ID, models.ShareStatusPending).
		Updates(map[string]interface{}{"method": method, "provider": provider, "status": models.ShareStatusProcessing})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		if err := st.db.First(&share, share.ID).Error; err != nil {
			return nil, false, err
		}
		switch share.Status {
		case models.ShareStatusProcessing:
			return nil, false, ErrAlreadyProcessing
		case models.ShareStatusPaid:
			return &share, true, nil
		default:
			return nil, false, ErrInvalidOrExpiredToken
		}
	}

	gw, err := st.gateways.Get(provider)
	if err != nil {
		// No gateway to talk to: release the share for another method.
		st.revertToPending(share.ID, false)
		return nil, false, err
	}

	var payer models.User
	if err := st.db.First(&payer, share.UserID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		st.revertToPending(share.ID, false)
		return nil, false, err
	}

	result, err := gw.Charge(&ChargeRequest{
		Reference:     share.Token,
		Amount:        share.Amount,
		Currency:      utils.CurrencyCode(),
		Method:        method,
		CustomerName:  payer.Name,
		CustomerEmail: payer.Email,
		Details:       details,
	})
	if err != nil {
		if isTimeout(err) {
			// The charge may have settled upstream; keep the share
			// processing until a reconcile confirms either way.
			utils.ErrorLogger.Printf("Gateway timeout for share %d, awaiting reconciliation: %v", share.ID, err)
			return nil, false, fmt.Errorf("gateway timeout, share pending reconciliation: %w", err)
		}
		utils.ErrorLogger.Printf("Gateway charge failed for share %d: %v", share.ID, err)
		st.revertToPending(share.ID, true)
		return nil, false, fmt.Errorf("gateway charge failed: %w", err)
	}

	switch result.Status {
	case GatewayStatusSuccess:
		if err := st.markPaid(share.ID, result.TransactionID); err != nil {
			return nil, false, err
		}
	case GatewayStatusPending:
		// Asynchronous method: the gateway will confirm via webhook or
		// a reconcile pass. Record the transaction, stay processing.
		if err := st.db.Model(&models.SplitPaymentShare{}).
			Where("id = ?", share.ID).
			Update("gateway_txn_id", result.TransactionID).Error; err != nil {
			return nil, false, err
		}
	default:
		utils.InfoLogger.Printf("Gateway declined share %d (status %s)", share.ID, result.Status)
		st.revertToPending(share.ID, true)
		return nil, false, fmt.Errorf("%w (status %s)", ErrChargeDeclined, result.Status)
	}

	if err := st.db.First(&share, share.ID).Error; err != nil {
		return nil, false, err
	}
	return &share, false, nil
}

// Reconcile re-queries the gateway for a share stuck in processing and
// applies the real outcome. Required after a timeout before the payer
// may retry.
func (st *SettlementService) Reconcile(token string) (*models.SplitPaymentShare, error) {
	var share models.SplitPaymentShare
	if err := st.db.Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	if share.Status != models.ShareStatusProcessing {
		return &share, nil
	}

	gw, err := st.gateways.Get(share.Provider)
	if err != nil {
		return nil, err
	}

	status, err := gw.GetStatus(share.Token)
	if err != nil {
		return nil, fmt.Errorf("gateway status query failed: %w", err)
	}

	switch status {
	case GatewayStatusSuccess:
		txnID := share.Token
		if share.GatewayTxnID != nil {
			txnID = *share.GatewayTxnID
		}
		if err := st.markPaid(share.ID, txnID); err != nil {
			return nil, err
		}
	case GatewayStatusFailed:
		st.revertToPending(share.ID, true)
	default:
		// Still pending upstream; leave the share processing.
	}

	if err := st.db.First(&share, share.ID).Error; err != nil {
		return nil, err
	}
	return &share, nil
}

// ProcessCallback applies a gateway webhook notification to a share.
// The signature is verified through the provider before anything moves.
func (st *SettlementService) ProcessCallback(provider, token, statusCode, grossAmount, signature, txnStatus string) error {
	gw, err := st.gateways.Get(provider)
	if err != nil {
		return err
	}
	if !gw.VerifyWebhook(token, statusCode, grossAmount, signature) {
		return fmt.Errorf("invalid webhook signature for token %s", token)
	}

	var share models.SplitPaymentShare
	if err := st.db.Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	switch normalizeProviderStatus(provider, txnStatus) {
	case GatewayStatusSuccess:
		txnID := share.Token
		if share.GatewayTxnID != nil {
			txnID = *share.GatewayTxnID
		}
		return st.markPaid(share.ID, txnID)
	case GatewayStatusFailed:
		st.revertToPending(share.ID, true)
		return nil
	default:
		return nil
	}
}

// normalizeProviderStatus maps a provider's raw webhook status to the
// normalized gateway statuses. Unknown providers pass through.
func normalizeProviderStatus(provider, status string) string {
	switch provider {
	case ProviderMidtrans:
		return mapMidtransStatus(status)
	case ProviderPix:
		return mapPixStatus(status)
	default:
		return status
	}
}

// AggregateStatus derives the order-level payment status from the
// current share set. Never stored: the shares are the single source of
// truth.
func (st *SettlementService) AggregateStatus(orderID uint) (string, error) {
	var shares []models.SplitPaymentShare
	if err := st.db.Where("order_id = ?", orderID).Find(&shares).Error; err != nil {
		return "", err
	}
	if len(shares) == 0 {
		return models.OrderPaymentUnpaid, nil
	}

	paid, failed, open := 0, 0, 0
	for _, s := range shares {
		switch s.Status {
		case models.ShareStatusPaid:
			paid++
		case models.ShareStatusFailed:
			failed++
		default:
			open++
		}
	}

	switch {
	case failed > 0 && open == 0:
		return models.OrderPaymentFailed, nil
	case paid == len(shares):
		return models.OrderPaymentPaid, nil
	case paid > 0:
		return models.OrderPaymentPartial, nil
	default:
		return models.OrderPaymentUnpaid, nil
	}
}

// SharesForOrder lists an order's shares, newest last.
func (st *SettlementService) SharesForOrder(orderID uint) ([]models.SplitPaymentShare, error) {
	var shares []models.SplitPaymentShare
	err := st.db.Where("order_id = ?", orderID).Order("id asc").Find(&shares).Error
	return shares, err
}

// markPaid finalizes a share and, when it was the last open one,
// reports full settlement to the order collaborator. The guarded
// update keeps the paid transition single-shot, so the notification
// cannot fire twice.
func (st *SettlementService) markPaid(shareID uint, transactionID string) error {
	now := time.Now()
	res := st.db.Model(&models.SplitPaymentShare{}).
		Where("id = ? AND status = ?", shareID, models.ShareStatusProcessing).
		Updates(map[string]interface{}{
			"status":         models.ShareStatusPaid,
			"gateway_txn_id": transactionID,
			"paid_at":        &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: share is no longer processing", ErrInvalidTransition)
	}

	var share models.SplitPaymentShare
	if err := st.db.First(&share, shareID).Error; err != nil {
		return err
	}
	utils.InfoLogger.Printf("Share %d paid (%s) for order %d", share.ID, utils.FormatAmount(share.Amount), share.OrderID)

	var remaining int64
	if err := st.db.Model(&models.SplitPaymentShare{}).
		Where("order_id = ? AND status <> ?", share.OrderID, models.ShareStatusPaid).
		Count(&remaining).Error; err != nil {
		return err
	}
	if remaining == 0 {
		if err := st.orders.NotifyPaymentComplete(share.OrderID); err != nil {
			// The shares are the source of truth; the order side can
			// re-derive on its next read if this delivery is lost.
			utils.ErrorLogger.Printf("Failed to notify payment completion for order %d: %v", share.OrderID, err)
		}
	}
	return nil
}

// revertToPending releases a processing share after a declined or
// errored charge. When countAttempt is set and the bounded retry
// budget is spent, the share parks as failed instead.
func (st *SettlementService) revertToPending(shareID uint, countAttempt bool) {
	var share models.SplitPaymentShare
	if err := st.db.First(&share, shareID).Error; err != nil {
		utils.ErrorLogger.Printf("Failed to load share %d for revert: %v", shareID, err)
		return
	}

	attempts := share.Attempts
	target := models.ShareStatusPending
	if countAttempt {
		attempts++
		if attempts >= st.maxAttempts {
			target = models.ShareStatusFailed
		}
	}

	res := st.db.Model(&models.SplitPaymentShare{}).
		Where("id = ? AND status = ?", shareID, models.ShareStatusProcessing).
		Updates(map[string]interface{}{"status": target, "attempts": attempts})
	if res.Error != nil {
		utils.ErrorLogger.Printf("Failed to revert share %d: %v", shareID, res.Error)
		return
	}
	if target == models.ShareStatusFailed {
		utils.InfoLogger.Printf("Share %d failed after %d attempts, manual resolution required", shareID, attempts)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
