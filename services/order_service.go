package services

import (
	"errors"

	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

// OrderService is the order collaborator behind the settlement
// engine's interface boundary. It holds just enough order behavior for
// settlement: a finalized total and the paid transition.
type OrderService struct {
	db       *gorm.DB
	sessions *SessionService
}

func NewOrderService(db *gorm.DB, sessions *SessionService) *OrderService {
	return &OrderService{db: db, sessions: sessions}
}

// Create opens an order for a session. Only the session owner checks
// out; TotalAmount is the finalized bill in minor units.
func (oc *OrderService) Create(sessionID uint, totalAmount int64, user *models.User) (*models.Order, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	if totalAmount <= 0 {
		return nil, ErrOrderNotPayable
	}

	var session models.TableSession
	if err := oc.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionNotFound
	}
	if session.OwnerID != user.ID {
		return nil, ErrNotOwner
	}

	order := models.Order{
		SessionID:   sessionID,
		Status:      models.OrderStatusPendingPayment,
		TotalAmount: totalAmount,
	}
	if err := oc.db.Create(&order).Error; err != nil {
		return nil, err
	}

	utils.InfoLogger.Printf("Order %d created for session %d (total %s)", order.ID, sessionID, utils.FormatAmount(totalAmount))
	return &order, nil
}

// Get returns one order.
func (oc *OrderService) Get(orderID uint) (*models.Order, error) {
	var order models.Order
	if err := oc.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderTotal implements OrderCollaborator.
func (oc *OrderService) GetOrderTotal(orderID uint) (int64, error) {
	order, err := oc.Get(orderID)
	if err != nil {
		return 0, err
	}
	if order.Status != models.OrderStatusPendingPayment && order.Status != models.OrderStatusSplit {
		return 0, ErrOrderNotPayable
	}
	return order.TotalAmount, nil
}

// NotifyPaymentComplete implements OrderCollaborator. The guarded
// update makes the paid transition single-shot even if settlement
// signals more than once; the table session is retired alongside.
func (oc *OrderService) NotifyPaymentComplete(orderID uint) error {
	res := oc.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusSplit).
		Update("status", models.OrderStatusPaid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	utils.InfoLogger.Printf("Order %d fully paid", orderID)

	var order models.Order
	if err := oc.db.First(&order, orderID).Error; err != nil {
		return err
	}
	if err := oc.sessions.closeByID(order.SessionID); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return nil
}
