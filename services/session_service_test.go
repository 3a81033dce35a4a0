package services

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeremiapane/table-split-app/models"
	"github.com/yeremiapane/table-split-app/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

func setupSessionTestDB(t *testing.T) *gorm.DB {
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

	db.Create(&models.Restaurant{Name: "Warung Tester", Slug: "warung-tester"})
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name, email string) *models.User {
	user := models.User{Name: name, Email: email, Password: "hashed"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return &user
}

func TestResolveOrCreateMakesFirstDinerOwner(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")

	view, err := svc.ResolveOrCreate(1, 12, alice)
	assert.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, view.Session.Status)
	assert.Equal(t, alice.ID, view.Session.OwnerID)
	assert.Len(t, view.Members, 1)
	assert.True(t, view.Members[0].IsOwner)
	assert.Equal(t, models.MemberStatusApproved, view.Members[0].Status)
	assert.NotNil(t, view.Members[0].ApprovedAt)
	assert.Equal(t, PollIntervalMs, view.PollIntervalMs)
}

func TestResolveOrCreateRejectsBadTable(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")

	_, err := svc.ResolveOrCreate(1, 0, alice)
	assert.ErrorIs(t, err, ErrInvalidTable)

	_, err = svc.ResolveOrCreate(99, 12, alice)
	assert.ErrorIs(t, err, ErrInvalidTable)

	_, err = svc.ResolveOrCreate(1, 12, nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestResolveOrCreateFallsThroughToJoin(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	first, err := svc.ResolveOrCreate(1, 12, alice)
	assert.NoError(t, err)

	second, err := svc.ResolveOrCreate(1, 12, bob)
	assert.NoError(t, err)

	// Never a second active session for the same table
	assert.Equal(t, first.Session.ID, second.Session.ID)
	var active int64
	db.Model(&models.TableSession{}).
		Where("restaurant_id = ? AND table_number = ? AND status = ?", 1, 12, models.SessionStatusActive).
		Count(&active)
	assert.Equal(t, int64(1), active)

	assert.NotNil(t, second.Caller)
	assert.Equal(t, models.MemberStatusPending, second.Caller.Status)
	assert.False(t, second.Caller.IsOwner)
}

func TestJoinIsIdempotentPerUser(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	view, _ := svc.ResolveOrCreate(1, 12, alice)
	sessionID := view.Session.ID

	first, err := svc.Join(sessionID, bob)
	assert.NoError(t, err)
	second, err := svc.Join(sessionID, bob)
	assert.NoError(t, err)

	assert.Equal(t, first.Caller.ID, second.Caller.ID)

	var memberCount int64
	db.Model(&models.SessionMember{}).Where("session_id = ? AND user_id = ?", sessionID, bob.ID).Count(&memberCount)
	assert.Equal(t, int64(1), memberCount)
}

func TestDecideIsOwnerOnlyAndOneShot(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	view, _ := svc.ResolveOrCreate(1, 12, alice)
	sessionID := view.Session.ID
	joinView, _ := svc.Join(sessionID, bob)
	memberID := joinView.Caller.ID

	// Bob cannot decide on himself
	_, err := svc.Decide(sessionID, memberID, bob, true)
	assert.ErrorIs(t, err, ErrNotOwner)

	member, err := svc.Decide(sessionID, memberID, alice, true)
	assert.NoError(t, err)
	assert.Equal(t, models.MemberStatusApproved, member.Status)
	assert.NotNil(t, member.ApprovedAt)

	// One-shot: a second decision must not alter state
	_, err = svc.Decide(sessionID, memberID, alice, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var unchanged models.SessionMember
	db.First(&unchanged, memberID)
	assert.Equal(t, models.MemberStatusApproved, unchanged.Status)
}

func TestRejectedMemberMayRejoin(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	view, _ := svc.ResolveOrCreate(1, 12, alice)
	sessionID := view.Session.ID
	joinView, _ := svc.Join(sessionID, bob)
	memberID := joinView.Caller.ID

	_, err := svc.Decide(sessionID, memberID, alice, false)
	assert.NoError(t, err)

	// Re-request flips the same record back to pending
	again, err := svc.Join(sessionID, bob)
	assert.NoError(t, err)
	assert.Equal(t, memberID, again.Caller.ID)
	assert.Equal(t, models.MemberStatusPending, again.Caller.Status)
}

func TestOwnerInvariantHolds(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	view, _ := svc.ResolveOrCreate(1, 12, alice)
	sessionID := view.Session.ID
	svc.Join(sessionID, bob)

	var owners []models.SessionMember
	db.Where("session_id = ? AND is_owner = ?", sessionID, true).Find(&owners)
	assert.Len(t, owners, 1)
	assert.Equal(t, models.MemberStatusApproved, owners[0].Status)
}

func TestGetViewHasNoSideEffects(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	view, _ := svc.ResolveOrCreate(1, 12, alice)
	sessionID := view.Session.ID
	svc.Join(sessionID, bob)

	// A pending member polls repeatedly; every read is identical
	for i := 0; i < 5; i++ {
		polled, err := svc.GetView(sessionID, bob.ID)
		assert.NoError(t, err)
		assert.Len(t, polled.Members, 2)
		assert.Equal(t, models.MemberStatusPending, polled.Caller.Status)
	}
}

func TestCloseSession(t *testing.T) {
	db := setupSessionTestDB(t)
	svc := NewSessionService(db)
	alice := seedUser(t, db, "Alice", "alice@example.com")
	bob := seedUser(t, db, "Bob", "bob@example.com")

	view, _ := svc.ResolveOrCreate(1, 12, alice)
	sessionID := view.Session.ID

	err := svc.Close(sessionID, bob)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.NoError(t, svc.Close(sessionID, alice))

	// Closing twice is a state conflict, not a silent success
	err = svc.Close(sessionID, alice)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The table is free again for a brand new session
	fresh, err := svc.ResolveOrCreate(1, 12, bob)
	assert.NoError(t, err)
	assert.NotEqual(t, sessionID, fresh.Session.ID)
	assert.Equal(t, bob.ID, fresh.Session.OwnerID)
}
