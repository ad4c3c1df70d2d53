package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"unilib/internal/models"
	"unilib/internal/repository"
)

// fakeReservationStore is an in-memory ReservationStore with the same
// ordering rules as the SQL implementation.
type fakeReservationStore struct {
	mu    sync.Mutex
	seq   int64
	clock time.Time
	rows  map[int64]*models.Reservation

	failSaveFor int64 // Save returns an error for this reservation id
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{
		clock: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
		rows:  make(map[int64]*models.Reservation),
	}
}

func (f *fakeReservationStore) Create(_ context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r.ID = f.seq
	if r.CreatedAt.IsZero() {
		f.clock = f.clock.Add(time.Minute)
		r.CreatedAt = f.clock
	}
	cp := *r
	f.rows[r.ID] = &cp
	return nil
}

func (f *fakeReservationStore) Save(_ context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == f.failSaveFor {
		return errors.New("save failed")
	}
	cp := *r
	f.rows[r.ID] = &cp
	return nil
}

func (f *fakeReservationStore) GetByID(_ context.Context, id int64) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReservationStore) FindActive(_ context.Context, bookID int64, userID string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.BookID == bookID && r.UserID == userID && r.State.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReservationStore) FindHoldByCopy(_ context.Context, copyID int64) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.State == models.StateReadyForPickup && r.CopyID != nil && *r.CopyID == copyID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReservationStore) QueueForBook(_ context.Context, bookID int64) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var queue []models.Reservation
	for _, r := range f.rows {
		if r.BookID == bookID && r.State == models.StateQueueWait {
			queue = append(queue, *r)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].Priority != queue[j].Priority {
			return queue[i].Priority > queue[j].Priority
		}
		if !queue[i].CreatedAt.Equal(queue[j].CreatedAt) {
			return queue[i].CreatedAt.Before(queue[j].CreatedAt)
		}
		return queue[i].ID < queue[j].ID
	})
	return queue, nil
}

func (f *fakeReservationStore) OverdueHolds(_ context.Context, now time.Time) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var overdue []models.Reservation
	for _, r := range f.rows {
		if r.State == models.StateReadyForPickup && r.PickupDeadline != nil && r.PickupDeadline.Before(now) {
			overdue = append(overdue, *r)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].ID < overdue[j].ID })
	return overdue, nil
}

func (f *fakeReservationStore) ListByUser(_ context.Context, userID string) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReservationStore) ListByBook(_ context.Context, bookID int64) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for _, r := range f.rows {
		if r.BookID == bookID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeReservationStore) SavePositions(_ context.Context, queue []models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range queue {
		cp := queue[i]
		f.rows[cp.ID] = &cp
	}
	return nil
}

func (f *fakeReservationStore) get(t *testing.T, id int64) models.Reservation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	require.True(t, ok, "reservation %d not in store", id)
	return *r
}

// fakeInventory mimics the guarded status updates of the SQL copy
// repository.
type fakeInventory struct {
	mu     sync.Mutex
	copies map[int64]*models.Copy

	failReleaseFor int64 // Release returns an error for this copy id
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{copies: make(map[int64]*models.Copy)}
}

func (f *fakeInventory) addCopy(id, bookID int64, status models.CopyStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies[id] = &models.Copy{ID: id, BookID: bookID, Status: status}
}

func (f *fakeInventory) status(t *testing.T, id int64) models.CopyStatus {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[id]
	require.True(t, ok, "copy %d not in inventory", id)
	return c.Status
}

func (f *fakeInventory) FindAvailable(_ context.Context, bookID int64) (*models.Copy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Copy
	for _, c := range f.copies {
		if c.BookID == bookID && c.Status == models.CopyAvailable {
			if best == nil || c.ID < best.ID {
				best = c
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeInventory) Bind(_ context.Context, copyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok || c.Status != models.CopyAvailable {
		return repository.ErrCopyNotAvailable
	}
	c.Status = models.CopyReserved
	return nil
}

func (f *fakeInventory) Release(_ context.Context, copyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if copyID == f.failReleaseFor {
		return errors.New("release failed")
	}
	c, ok := f.copies[copyID]
	if !ok {
		return repository.ErrCopyNotAvailable
	}
	c.Status = models.CopyAvailable
	return nil
}

func (f *fakeInventory) MarkLoaned(_ context.Context, copyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok || (c.Status != models.CopyReserved && c.Status != models.CopyAvailable) {
		return repository.ErrCopyNotAvailable
	}
	c.Status = models.CopyLoaned
	return nil
}

func (f *fakeInventory) MarkReserved(_ context.Context, copyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.copies[copyID]
	if !ok || c.Status != models.CopyLoaned {
		return repository.ErrCopyNotAvailable
	}
	c.Status = models.CopyReserved
	return nil
}

// fakeUsers is a minimal UserRepository backed by a map.
type fakeUsers struct {
	users map[string]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) FindByUsername(username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) FindByID(id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByEmail(email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) UpdateLastLogin(string) error { return nil }

// captureDispatcher records dispatched events instead of delivering them.
type captureDispatcher struct {
	mu     sync.Mutex
	events []string // "<event>:<user>"
	fail   bool
}

func (d *captureDispatcher) Dispatch(_ context.Context, userID string, _ int64, eventKind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("relay down")
	}
	d.events = append(d.events, eventKind+":"+userID)
	return nil
}

func (d *captureDispatcher) count(eventKind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if len(e) >= len(eventKind) && e[:len(eventKind)] == eventKind {
			n++
		}
	}
	return n
}

const holdWindow = 48 * time.Hour

type engineHarness struct {
	svc        *reservationService
	store      *fakeReservationStore
	inventory  *fakeInventory
	users      *fakeUsers
	dispatcher *captureDispatcher
	now        time.Time
}

func newEngineHarness(t *testing.T, users ...*models.User) *engineHarness {
	t.Helper()
	if len(users) == 0 {
		users = []*models.User{
			{ID: "student-a", Username: "alice", Role: models.RoleStudent},
			{ID: "student-b", Username: "bob", Role: models.RoleStudent},
			{ID: "prof-c", Username: "carol", Role: models.RoleProfessor},
		}
	}

	h := &engineHarness{
		store:      newFakeReservationStore(),
		inventory:  newFakeInventory(),
		users:      newFakeUsers(users...),
		dispatcher: &captureDispatcher{},
		now:        time.Date(2025, 9, 2, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewReservationService(
		h.store, h.inventory, h.users, h.dispatcher, holdWindow, logger,
	).(*reservationService)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func TestRequest_BindsAvailableCopyImmediately(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	assert.Equal(t, models.StateReadyForPickup, res.State)
	assert.Equal(t, models.KindPickupHold, res.Kind)
	require.NotNil(t, res.CopyID)
	assert.Equal(t, int64(10), *res.CopyID)
	require.NotNil(t, res.PickupDeadline)
	assert.Equal(t, h.now.Add(holdWindow), *res.PickupDeadline)
	assert.Equal(t, models.CopyReserved, h.inventory.status(t, 10))
	assert.Equal(t, 1, h.dispatcher.count(models.NotifyReservationReady))
}

func TestRequest_QueuesWhenNoCopyFree(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyLoaned)

	first, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	second, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	assert.Equal(t, models.StateQueueWait, first.State)
	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 2, second.QueuePosition)
}

func TestRequest_RejectsDuplicateActive(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	_, err = h.svc.Request(context.Background(), 1, "student-a", 0)
	assert.ErrorIs(t, err, ErrDuplicateActiveReservation)

	// a different title is fine
	_, err = h.svc.Request(context.Background(), 2, "student-a", 0)
	assert.NoError(t, err)
}

func TestRequest_PriorityJumpsQueue(t *testing.T) {
	h := newEngineHarness(t)

	a, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	b, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	// professor joins last but outranks both students
	c, err := h.svc.Request(context.Background(), 1, "prof-c", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, c.QueuePosition)
	assert.Equal(t, 2, h.store.get(t, a.ID).QueuePosition)
	assert.Equal(t, 3, h.store.get(t, b.ID).QueuePosition)
}

func TestRequest_EqualPriorityOrderedByArrival(t *testing.T) {
	h := newEngineHarness(t)

	a, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	b, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, h.store.get(t, a.ID).QueuePosition)
	assert.Equal(t, 2, h.store.get(t, b.ID).QueuePosition)
}

func TestCopyFreed_PromotesQueueHead(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyLoaned)

	a, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	b, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	require.NoError(t, h.svc.CopyFreed(context.Background(), 1, 10))

	promoted := h.store.get(t, a.ID)
	assert.Equal(t, models.StateReadyForPickup, promoted.State)
	require.NotNil(t, promoted.CopyID)
	assert.Equal(t, int64(10), *promoted.CopyID)
	require.NotNil(t, promoted.PickupDeadline)
	assert.Equal(t, h.now.Add(holdWindow), *promoted.PickupDeadline)
	assert.Equal(t, models.CopyReserved, h.inventory.status(t, 10))

	// the rest of the queue closes up
	assert.Equal(t, 1, h.store.get(t, b.ID).QueuePosition)
	assert.Equal(t, 1, h.dispatcher.count(models.NotifyReservationReady))
}

func TestCopyFreed_EmptyQueueLeavesCopyAvailable(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyLoaned)

	require.NoError(t, h.svc.CopyFreed(context.Background(), 1, 10))

	assert.Equal(t, models.CopyAvailable, h.inventory.status(t, 10))
	assert.Empty(t, h.dispatcher.events)
}

func TestCopyFreed_StaleReportKeepsLiveHold(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	holder, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	require.Equal(t, models.StateReadyForPickup, holder.State)
	waiter, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	// a kiosk retries its "copy returned" report for a copy that is
	// bound to a live hold; the report is stale and must change nothing
	require.NoError(t, h.svc.CopyFreed(context.Background(), 1, 10))
	require.NoError(t, h.svc.CopyFreed(context.Background(), 1, 10))

	got := h.store.get(t, holder.ID)
	assert.Equal(t, models.StateReadyForPickup, got.State)
	require.NotNil(t, got.CopyID)
	assert.Equal(t, int64(10), *got.CopyID)

	queued := h.store.get(t, waiter.ID)
	assert.Equal(t, models.StateQueueWait, queued.State)
	assert.Nil(t, queued.CopyID)
	assert.Equal(t, 1, queued.QueuePosition)

	assert.Equal(t, models.CopyReserved, h.inventory.status(t, 10))
}

func TestCollect_CompletesHold(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	collected, err := h.svc.Collect(context.Background(), res.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, collected.State)
	assert.Nil(t, collected.PickupDeadline)
	// the copy stays bound; the loan flow takes it from here
	require.NotNil(t, collected.CopyID)
	assert.Equal(t, int64(10), *collected.CopyID)
}

func TestCollect_RejectedWhileQueued(t *testing.T) {
	h := newEngineHarness(t)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	require.Equal(t, models.StateQueueWait, res.State)

	_, err = h.svc.Collect(context.Background(), res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_QueuedClosesGap(t *testing.T) {
	h := newEngineHarness(t)

	a, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	b, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)
	c, err := h.svc.Request(context.Background(), 1, "prof-c", 5)
	require.NoError(t, err)
	require.Equal(t, 1, c.QueuePosition)

	require.NoError(t, h.svc.Cancel(context.Background(), a.ID, false))

	cancelled := h.store.get(t, a.ID)
	assert.Equal(t, models.StateCancelled, cancelled.State)
	assert.Zero(t, cancelled.QueuePosition)
	assert.Equal(t, 1, h.store.get(t, c.ID).QueuePosition)
	assert.Equal(t, 2, h.store.get(t, b.ID).QueuePosition)
}

func TestCancel_ReadyHoldReleasesCopyAndPromotes(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	holder, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	require.Equal(t, models.StateReadyForPickup, holder.State)

	waiter, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)
	require.Equal(t, models.StateQueueWait, waiter.State)

	require.NoError(t, h.svc.Cancel(context.Background(), holder.ID, false))

	promoted := h.store.get(t, waiter.ID)
	assert.Equal(t, models.StateReadyForPickup, promoted.State)
	require.NotNil(t, promoted.CopyID)
	assert.Equal(t, int64(10), *promoted.CopyID)
	assert.Equal(t, models.CopyReserved, h.inventory.status(t, 10))
}

func TestCancel_ByStaffNotifiesRevocation(t *testing.T) {
	h := newEngineHarness(t)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	require.NoError(t, h.svc.Cancel(context.Background(), res.ID, true))
	assert.Equal(t, 1, h.dispatcher.count(models.NotifyReservationRevoked))
}

func TestCancel_TerminalIsRejected(t *testing.T) {
	h := newEngineHarness(t)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	require.NoError(t, h.svc.Cancel(context.Background(), res.ID, false))

	err = h.svc.Cancel(context.Background(), res.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequireApproval_ParksAndApproveRestoresSpot(t *testing.T) {
	h := newEngineHarness(t)

	a, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	b, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	require.NoError(t, h.svc.RequireApproval(context.Background(), a.ID))

	parked := h.store.get(t, a.ID)
	assert.Equal(t, models.StatePendingApproval, parked.State)
	assert.Zero(t, parked.QueuePosition)
	// the queue closes while a is parked
	assert.Equal(t, 1, h.store.get(t, b.ID).QueuePosition)

	require.NoError(t, h.svc.Approve(context.Background(), a.ID))

	// original created_at puts a back at the head
	assert.Equal(t, 1, h.store.get(t, a.ID).QueuePosition)
	assert.Equal(t, 2, h.store.get(t, b.ID).QueuePosition)
}

func TestApprove_RequiresPendingState(t *testing.T) {
	h := newEngineHarness(t)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	err = h.svc.Approve(context.Background(), res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSweep_ExpiresOverdueAndPromotes(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	holder, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	waiter, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	report, err := h.svc.Sweep(context.Background(), h.now.Add(holdWindow+time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Promoted)
	assert.Empty(t, report.Failed)

	expired := h.store.get(t, holder.ID)
	assert.Equal(t, models.StateExpired, expired.State)
	assert.Nil(t, expired.CopyID)
	assert.Nil(t, expired.PickupDeadline)

	promoted := h.store.get(t, waiter.ID)
	assert.Equal(t, models.StateReadyForPickup, promoted.State)
	require.NotNil(t, promoted.CopyID)
	assert.Equal(t, int64(10), *promoted.CopyID)

	assert.Equal(t, 1, h.dispatcher.count(models.NotifyReservationExpired))
	// ready notices went to both the original hold and the promotion
	assert.Equal(t, 2, h.dispatcher.count(models.NotifyReservationReady))
}

func TestSweep_BeforeDeadlineIsNoop(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	_, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	report, err := h.svc.Sweep(context.Background(), h.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Zero(t, report.Expired)
}

func TestSweep_Idempotent(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	_, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	deadline := h.now.Add(holdWindow + time.Hour)
	first, err := h.svc.Sweep(context.Background(), deadline)
	require.NoError(t, err)
	require.Equal(t, 1, first.Expired)

	second, err := h.svc.Sweep(context.Background(), deadline)
	require.NoError(t, err)
	assert.Zero(t, second.Scanned)
	assert.Zero(t, second.Expired)
}

func TestSweep_FailureDoesNotAbortBatch(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)
	h.inventory.addCopy(20, 2, models.CopyAvailable)

	bad, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	good, err := h.svc.Request(context.Background(), 2, "student-b", 0)
	require.NoError(t, err)

	h.store.failSaveFor = bad.ID

	report, err := h.svc.Sweep(context.Background(), h.now.Add(holdWindow+time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, []int64{bad.ID}, report.Failed)
	assert.Equal(t, models.StateExpired, h.store.get(t, good.ID).State)
}

func TestSweep_ReleaseFailureLeavesHoldForRetry(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	holder, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	waiter, err := h.svc.Request(context.Background(), 1, "student-b", 0)
	require.NoError(t, err)

	h.inventory.failReleaseFor = 10
	deadline := h.now.Add(holdWindow + time.Hour)

	report, err := h.svc.Sweep(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, []int64{holder.ID}, report.Failed)
	assert.Zero(t, report.Expired)

	// the hold is untouched and the copy still bound, so nothing is
	// stranded and the next sweep simply retries
	got := h.store.get(t, holder.ID)
	assert.Equal(t, models.StateReadyForPickup, got.State)
	require.NotNil(t, got.CopyID)
	assert.Equal(t, models.CopyReserved, h.inventory.status(t, 10))

	h.inventory.failReleaseFor = 0
	report, err = h.svc.Sweep(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Promoted)
	assert.Equal(t, models.StateExpired, h.store.get(t, holder.ID).State)
	assert.Equal(t, models.StateReadyForPickup, h.store.get(t, waiter.ID).State)
}

func TestCancel_ReleaseFailureLeavesHoldIntact(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	holder, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	h.inventory.failReleaseFor = 10
	require.Error(t, h.svc.Cancel(context.Background(), holder.ID, false))

	got := h.store.get(t, holder.ID)
	assert.Equal(t, models.StateReadyForPickup, got.State)
	require.NotNil(t, got.CopyID)
	assert.Equal(t, models.CopyReserved, h.inventory.status(t, 10))

	// retryable: the cancellation goes through once the release does
	h.inventory.failReleaseFor = 0
	require.NoError(t, h.svc.Cancel(context.Background(), holder.ID, false))
	assert.Equal(t, models.StateCancelled, h.store.get(t, holder.ID).State)
	assert.Equal(t, models.CopyAvailable, h.inventory.status(t, 10))
}

func TestSweep_WithoutDispatcherLeavesNotificationPending(t *testing.T) {
	h := newEngineHarness(t)
	h.svc.dispatcher = nil
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	report, err := h.svc.Sweep(context.Background(), h.now.Add(holdWindow+time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.Expired)

	// no dispatch happened, so the patron still counts as uninformed and
	// a later pass with a real dispatcher can deliver
	got := h.store.get(t, res.ID)
	assert.Equal(t, models.StateExpired, got.State)
	assert.Equal(t, models.NotifyPending, got.NotificationState)
}

func TestNotify_DispatchFailureLeavesTransitionIntact(t *testing.T) {
	h := newEngineHarness(t)
	h.dispatcher.fail = true
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	assert.Equal(t, models.StateReadyForPickup, res.State)
	assert.Equal(t, models.NotifyPending, h.store.get(t, res.ID).NotificationState)
}

func TestNotify_SuccessMarksSent(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyAvailable)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)

	assert.Equal(t, models.NotifySent, h.store.get(t, res.ID).NotificationState)
}

func TestLifecycle_QueueToCompletedRoundTrip(t *testing.T) {
	h := newEngineHarness(t)
	h.inventory.addCopy(10, 1, models.CopyLoaned)

	res, err := h.svc.Request(context.Background(), 1, "student-a", 0)
	require.NoError(t, err)
	require.Equal(t, models.StateQueueWait, res.State)

	require.NoError(t, h.svc.CopyFreed(context.Background(), 1, 10))
	require.Equal(t, models.StateReadyForPickup, h.store.get(t, res.ID).State)

	collected, err := h.svc.Collect(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, collected.State)

	// a completed reservation frees the (book, user) slot
	_, err = h.svc.Request(context.Background(), 1, "student-a", 0)
	assert.NoError(t, err)
}

func TestGetByID_Missing(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.svc.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}
