package services

import (
	"sync"
	"time"

	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

// SettlementMonitor periodically reconciles shares stuck in processing
// (a charge whose response was lost, or an async method awaiting
// confirmation) by re-querying the gateway. This is the background
// counterpart of the explicit Reconcile call.
type SettlementMonitor struct {
	db         *gorm.DB
	settlement *SettlementService
	Interval   time.Duration
	GraceAge   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewSettlementMonitor(db *gorm.DB, settlement *SettlementService) *SettlementMonitor {
	return &SettlementMonitor{
		db:         db,
		settlement: settlement,
		Interval:   time.Minute,
		GraceAge:   2 * time.Minute,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the reconcile loop in its own goroutine.
func (sm *SettlementMonitor) Start() {
	go sm.run()
	utils.InfoLogger.Println("Settlement monitor started")
}

// Stop halts the reconcile loop.
func (sm *SettlementMonitor) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopCh)
	})
}

func (sm *SettlementMonitor) run() {
	ticker := time.NewTicker(sm.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.ReconcileStuckShares()
		case <-sm.stopCh:
			return
		}
	}
}

// ReconcileStuckShares finds processing shares older than the grace
// window and reconciles each against its gateway.
func (sm *SettlementMonitor) ReconcileStuckShares() {
	cutoff := time.Now().Add(-sm.GraceAge)

	var shares []models.SplitPaymentShare
	if err := sm.db.Where("status = ? AND updated_at < ?", models.ShareStatusProcessing, cutoff).
		Find(&shares).Error; err != nil {
		utils.ErrorLogger.Printf("Settlement monitor query failed: %v", err)
		return
	}

	for _, share := range shares {
		if _, err := sm.settlement.Reconcile(share.Token); err != nil {
			utils.ErrorLogger.Printf("Reconcile failed for share %d: %v", share.ID, err)
		}
	}
}
