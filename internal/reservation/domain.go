package reservation

import (
	"errors"
	"time"
)

// Reservation lifecycle statuses. A reservation is never reactivated.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusReleased  Status = "RELEASED"
	StatusCancelled Status = "CANCELLED"
)

// Reservation soft-locks available stock against a pending sales commitment.
type Reservation struct {
	ID               int64
	Item             string
	SalesOrder       string
	ReservedPhysical float64
	ReservedDeclared float64
	Status           Status
	CreatedAt        time.Time
}

// Availability is a best-effort snapshot of unreserved stock. It is computed
// without locks; see Reserve for the implications.
type Availability struct {
	Item              string  `json:"item"`
	AvailablePhysical float64 `json:"available_physical"`
	AvailableDeclared float64 `json:"available_declared"`
	ReservedPhysical  float64 `json:"reserved_physical"`
	ReservedDeclared  float64 `json:"reserved_declared"`
}

// ReserveResult reports the created reservation and post-reservation
// availability.
type ReserveResult struct {
	ReservationID     int64   `json:"reservation_id"`
	ReservedPhysical  float64 `json:"reserved_physical"`
	ReservedDeclared  float64 `json:"reserved_declared"`
	AvailablePhysical float64 `json:"available_physical"`
	AvailableDeclared float64 `json:"available_declared"`
}

// ReleaseResult reports a release outcome.
type ReleaseResult struct {
	Status string `json:"status"`
}

// Release outcome values.
const (
	ReleaseOutcomeReleased        = "released"
	ReleaseOutcomeAlreadyInactive = "already_inactive"
)

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("reservation: invalid input")
	// ErrNotFound indicates the reservation is missing.
	ErrNotFound = errors.New("reservation: not found")
	// ErrInsufficientStock indicates the request exceeds available physical
	// stock.
	ErrInsufficientStock = errors.New("reservation: insufficient available stock")
)
