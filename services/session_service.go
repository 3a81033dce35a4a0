package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/utils"
	"gorm.io/gorm"
)

// SessionService owns the table-session entity and the member state
// machine. All member transitions are guarded status updates so that
// concurrent callers lose cleanly instead of overwriting each other.
type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

// SessionView is the externally visible projection of a session. It is
// what every pending member polls; building it never mutates state.
type SessionView struct {
	Session        models.TableSession    `json:"session"`
	Members        []models.SessionMember `json:"members"`
	Caller         *models.SessionMember  `json:"caller,omitempty"`
	PollIntervalMs int                    `json:"poll_interval_ms"`
}

// PollIntervalMs is the cadence pending members re-fetch the view at.
const PollIntervalMs = 3000

// ResolveOrCreate finds the active session for (restaurant, table) or
// creates one with the requesting user as its approved owner. If the
// table already has an active session the call falls through to Join,
// never creating a second session.
func (ss *SessionService) ResolveOrCreate(restaurantID uint, tableNumber int, user *models.User) (*SessionView, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	if tableNumber <= 0 {
		return nil, ErrInvalidTable
	}

	var restaurant models.Restaurant
	if err := ss.db.First(&restaurant, restaurantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidTable
		}
		return nil, err
	}

	var session models.TableSession
	err := ss.db.Where("restaurant_id = ? AND table_number = ? AND status = ?",
		restaurantID, tableNumber, models.SessionStatusActive).First(&session).Error
	if err == nil {
		return ss.Join(session.ID, user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	session = models.TableSession{
		RestaurantID: restaurantID,
		TableNumber:  tableNumber,
		Status:       models.SessionStatusActive,
		OwnerID:      user.ID,
	}

	err = ss.db.Transaction(func(tx *gorm.DB) error {
		// Re-check inside the transaction so two racing first diners
		// cannot both create a session for the same table.
		var count int64
		if err := tx.Model(&models.TableSession{}).
			Where("restaurant_id = ? AND table_number = ? AND status = ?",
				restaurantID, tableNumber, models.SessionStatusActive).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSessionNotFound // loser of the race falls back to join below
		}

		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		owner := models.SessionMember{
			SessionID:   session.ID,
			UserID:      user.ID,
			DisplayName: user.Name,
			Email:       user.Email,
			Status:      models.MemberStatusApproved,
			IsOwner:     true,
			JoinedAt:    now,
			ApprovedAt:  &now,
		}
		return tx.Create(&owner).Error
	})
	if errors.Is(err, ErrSessionNotFound) {
		var existing models.TableSession
		if ferr := ss.db.Where("restaurant_id = ? AND table_number = ? AND status = ?",
			restaurantID, tableNumber, models.SessionStatusActive).First(&existing).Error; ferr == nil {
			return ss.Join(existing.ID, user)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.Printf("Session %d opened for restaurant %d table %d (owner user %d)",
		session.ID, restaurantID, tableNumber, user.ID)

	return ss.buildView(session.ID, user.ID)
}

// Join requests access to an existing session. Idempotent per user: an
// existing pending or approved member row is returned unchanged; a
// rejected member re-requesting moves back to pending. Never approves.
func (ss *SessionService) Join(sessionID uint, user *models.User) (*SessionView, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	var session models.TableSession
	if err := ss.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrSessionNotFound
	}

	var member models.SessionMember
	err := ss.db.Where("session_id = ? AND user_id = ?", sessionID, user.ID).First(&member).Error
	switch {
	case err == nil:
		if member.Status == models.MemberStatusRejected {
			// Re-request: rejected -> pending, only for the member's own row.
			res := ss.db.Model(&models.SessionMember{}).
				Where("id = ? AND status = ?", member.ID, models.MemberStatusRejected).
				Updates(map[string]interface{}{"status": models.MemberStatusPending, "joined_at": time.Now()})
			if res.Error != nil {
				return nil, res.Error
			}
			utils.InfoLogger.Printf("Member %d re-requested to join session %d", member.ID, sessionID)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = models.SessionMember{
			SessionID:   sessionID,
			UserID:      user.ID,
			DisplayName: user.Name,
			Email:       user.Email,
			Status:      models.MemberStatusPending,
			JoinedAt:    time.Now(),
		}
		if err := ss.db.Create(&member).Error; err != nil {
			return nil, err
		}
		utils.InfoLogger.Printf("User %d requested to join session %d (member %d)", user.ID, sessionID, member.ID)
	default:
		return nil, err
	}

	return ss.buildView(sessionID, user.ID)
}

// Decide approves or rejects a pending member. Only the session owner
// may decide, and only pending members can be decided: the update is a
// compare-and-swap on status, so a second decision for the same member
// fails instead of silently overwriting the first.
func (ss *SessionService) Decide(sessionID, memberID uint, decidingUser *models.User, approve bool) (*models.SessionMember, error) {
	if decidingUser == nil {
		return nil, ErrNotAuthenticated
	}

	var session models.TableSession
	if err := ss.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.OwnerID != decidingUser.ID {
		return nil, ErrNotOwner
	}

	var member models.SessionMember
	if err := ss.db.Where("id = ? AND session_id = ?", memberID, sessionID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	target := models.MemberStatusRejected
	updates := map[string]interface{}{"status": target}
	if approve {
		target = models.MemberStatusApproved
		now := time.Now()
		updates = map[string]interface{}{"status": target, "approved_at": &now}
	}

	res := ss.db.Model(&models.SessionMember{}).
		Where("id = ? AND status = ?", memberID, models.MemberStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: member is %s", ErrInvalidTransition, member.Status)
	}

	utils.InfoLogger.Printf("Member %d on session %d decided: %s", memberID, sessionID, target)

	if err := ss.db.First(&member, memberID).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// GetView returns the session and all its members. Strictly read-only:
// every pending member calls this on a timer.
func (ss *SessionService) GetView(sessionID uint, callerUserID uint) (*SessionView, error) {
	return ss.buildView(sessionID, callerUserID)
}

// Close retires an active session. Only the owner may close it
// explicitly; settlement closes it when the bill is fully collected.
func (ss *SessionService) Close(sessionID uint, closingUser *models.User) error {
	if closingUser == nil {
		return ErrNotAuthenticated
	}

	var session models.TableSession
	if err := ss.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.OwnerID != closingUser.ID {
		return ErrNotOwner
	}

	return ss.closeByID(sessionID)
}

func (ss *SessionService) closeByID(sessionID uint) error {
	res := ss.db.Model(&models.TableSession{}).
		Where("id = ? AND status = ?", sessionID, models.SessionStatusActive).
		Update("status", models.SessionStatusClosed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	utils.InfoLogger.Printf("Session %d closed", sessionID)
	return nil
}

func (ss *SessionService) buildView(sessionID uint, callerUserID uint) (*SessionView, error) {
	var session models.TableSession
	if err := ss.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var members []models.SessionMember
	if err := ss.db.Where("session_id = ?", sessionID).Order("joined_at asc, id asc").Find(&members).Error; err != nil {
		return nil, err
	}

	view := &SessionView{
		Session:        session,
		Members:        members,
		PollIntervalMs: PollIntervalMs,
	}
	for i := range members {
		if members[i].UserID == callerUserID {
			view.Caller = &members[i]
			break
		}
	}
	return view, nil
}
