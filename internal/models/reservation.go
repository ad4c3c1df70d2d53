package models

import "time"

// ReservationState is the lifecycle state of a reservation. String-typed
// status columns are deliberately avoided in code: every comparison and
// transition goes through the closed set below.
type ReservationState string

const (
	StateQueueWait       ReservationState = "queue_wait"
	StatePendingApproval ReservationState = "pending_approval"
	StateReadyForPickup  ReservationState = "ready_for_pickup"
	StateCompleted       ReservationState = "completed"
	StateCancelled       ReservationState = "cancelled"
	StateExpired         ReservationState = "expired"
)

// Valid reports whether s is one of the known reservation states.
func (s ReservationState) Valid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// Active reports whether the reservation still occupies its (book, user)
// slot. A user may hold at most one active reservation per title.
func (s ReservationState) Active() bool {
	switch s {
	case StateQueueWait, StatePendingApproval, StateReadyForPickup:
		return true
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s ReservationState) Terminal() bool {
	return len(reservationTransitions[s]) == 0 && s.Valid()
}

// reservationTransitions is the exhaustive transition table. A state maps
// to the complete set of states it may move to; terminal states map to an
// empty set.
var reservationTransitions = map[ReservationState][]ReservationState{
	StateQueueWait:       {StateReadyForPickup, StatePendingApproval, StateCancelled},
	StatePendingApproval: {StateQueueWait, StateCancelled},
	StateReadyForPickup:  {StateCompleted, StateExpired, StateCancelled},
	StateCompleted:       {},
	StateCancelled:       {},
	StateExpired:         {},
}

// CanTransition reports whether the move from s to next is allowed.
func (s ReservationState) CanTransition(next ReservationState) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReservationKind distinguishes a wait-queue entry from a pickup hold
// that has a specific copy bound to it.
type ReservationKind string

const (
	KindQueueWait  ReservationKind = "queue_wait"
	KindPickupHold ReservationKind = "pickup_hold"
)

// NotificationState tracks whether the user has been told about the
// latest user-visible event, independently of the lifecycle state.
type NotificationState string

const (
	NotifyPending NotificationState = "pending"
	NotifySent    NotificationState = "sent"
	NotifyRead    NotificationState = "read"
)

// Reservation is one user's claim on one title. While in queue_wait it
// carries a dense 1-based position within the book's queue; once a copy
// is bound it carries the copy id and a pickup deadline instead.
type Reservation struct {
	ID     int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	BookID int64  `json:"book_id" gorm:"not null;index:idx_reservations_book_state"`
	UserID string `json:"user_id" gorm:"type:uuid;not null;index"`

	// CopyID is set if and only if state is ready_for_pickup or completed.
	// Once bound, a copy is never silently swapped.
	CopyID *int64 `json:"copy_id,omitempty"`

	Kind  ReservationKind  `json:"kind" gorm:"type:varchar(20);not null"`
	State ReservationState `json:"state" gorm:"type:varchar(20);not null;index:idx_reservations_book_state"`

	// QueuePosition is meaningful only while state is queue_wait. Positions
	// within one book's queue are dense starting at 1.
	QueuePosition int `json:"queue_position,omitempty"`

	// Priority breaks queue ordering ties; higher goes first.
	Priority int `json:"priority" gorm:"default:0"`

	// PickupDeadline is set if and only if state is ready_for_pickup.
	PickupDeadline *time.Time `json:"pickup_deadline,omitempty"`

	NotificationState NotificationState `json:"notification_state" gorm:"type:varchar(10);default:'pending';not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// associations
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
	Copy *Copy `json:"copy,omitempty" gorm:"foreignKey:CopyID"`
}

func (Reservation) TableName() string {
	return "reservations"
}
