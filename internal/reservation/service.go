package reservation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexport-erp/nexport-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetItemStock(ctx context.Context, item string) (physical, declared float64, err error)
	SumActiveReservations(ctx context.Context, item string) (physical, declared float64, err error)
	CreateReservation(ctx context.Context, res Reservation) (int64, error)
	GetReservation(ctx context.Context, id int64) (Reservation, error)
	SetStatus(ctx context.Context, id int64, status Status) (bool, error)
}

// CachePort abstracts the availability snapshot cache.
type CachePort interface {
	GetAvailability(ctx context.Context, item string) (Availability, bool)
	SetAvailability(ctx context.Context, av Availability)
	Invalidate(ctx context.Context, item string)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service soft-locks stock against pending sales commitments.
//
// The availability check and the reservation insert are deliberately not
// held under one lock: two concurrent Reserve calls can both pass the check
// against the same pool and jointly over-reserve. That matches the upstream
// behaviour under load and must not be tightened silently.
type Service struct {
	repo   RepositoryPort
	cache  CachePort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache CachePort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// AvailableStock returns totals minus active reservations. Read-only,
// unlocked, optionally served from a short-lived cache.
func (s *Service) AvailableStock(ctx context.Context, item string) (Availability, error) {
	if item == "" {
		return Availability{}, fmt.Errorf("%w: item required", ErrValidation)
	}
	if s.cache != nil {
		if av, ok := s.cache.GetAvailability(ctx, item); ok {
			return av, nil
		}
	}
	av, err := s.computeAvailability(ctx, item)
	if err != nil {
		return Availability{}, err
	}
	if s.cache != nil {
		s.cache.SetAvailability(ctx, av)
	}
	return av, nil
}

func (s *Service) computeAvailability(ctx context.Context, item string) (Availability, error) {
	physical, declared, err := s.repo.GetItemStock(ctx, item)
	if err != nil {
		return Availability{}, err
	}
	reservedP, reservedD, err := s.repo.SumActiveReservations(ctx, item)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		Item:              item,
		AvailablePhysical: physical - reservedP,
		AvailableDeclared: declared - reservedD,
		ReservedPhysical:  reservedP,
		ReservedDeclared:  reservedD,
	}, nil
}

// Reserve creates an Active reservation when enough physical stock is
// available. Declared coverage is capped at available declared stock, which
// may be below the physical reservation for informally-received goods.
func (s *Service) Reserve(ctx context.Context, item, salesOrder string, qty float64) (ReserveResult, error) {
	if item == "" || salesOrder == "" {
		return ReserveResult{}, fmt.Errorf("%w: item and sales order required", ErrValidation)
	}
	if qty <= 0 {
		return ReserveResult{}, fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}

	// Fresh computation; the cache must not mask stock consumed moments ago.
	av, err := s.computeAvailability(ctx, item)
	if err != nil {
		return ReserveResult{}, err
	}
	if qty > av.AvailablePhysical {
		return ReserveResult{}, fmt.Errorf("%w: requested %g, available %g for %s",
			ErrInsufficientStock, qty, av.AvailablePhysical, item)
	}

	reservedDeclared := qty
	if av.AvailableDeclared < reservedDeclared {
		reservedDeclared = av.AvailableDeclared
	}
	if reservedDeclared < 0 {
		reservedDeclared = 0
	}

	id, err := s.repo.CreateReservation(ctx, Reservation{
		Item:             item,
		SalesOrder:       salesOrder,
		ReservedPhysical: qty,
		ReservedDeclared: reservedDeclared,
	})
	if err != nil {
		return ReserveResult{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, item)
	}
	s.recordAudit(ctx, "RESERVE", id, map[string]any{
		"item": item, "sales_order": salesOrder, "qty": qty,
	})
	return ReserveResult{
		ReservationID:     id,
		ReservedPhysical:  qty,
		ReservedDeclared:  reservedDeclared,
		AvailablePhysical: av.AvailablePhysical - qty,
		AvailableDeclared: av.AvailableDeclared - reservedDeclared,
	}, nil
}

// Release transitions an Active reservation to Released. Releasing a
// non-Active reservation performs no write and reports already_inactive.
func (s *Service) Release(ctx context.Context, id int64) (ReleaseResult, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return ReleaseResult{}, err
	}
	if res.Status != StatusActive {
		return ReleaseResult{Status: ReleaseOutcomeAlreadyInactive}, nil
	}
	changed, err := s.repo.SetStatus(ctx, id, StatusReleased)
	if err != nil {
		return ReleaseResult{}, err
	}
	if !changed {
		// Lost a race with another release; same observable outcome.
		return ReleaseResult{Status: ReleaseOutcomeAlreadyInactive}, nil
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, res.Item)
	}
	s.recordAudit(ctx, "RELEASE", id, map[string]any{"item": res.Item})
	return ReleaseResult{Status: ReleaseOutcomeReleased}, nil
}

// Cancel transitions an Active reservation to Cancelled with the same
// idempotency contract as Release.
func (s *Service) Cancel(ctx context.Context, id int64) (ReleaseResult, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return ReleaseResult{}, err
	}
	if res.Status != StatusActive {
		return ReleaseResult{Status: ReleaseOutcomeAlreadyInactive}, nil
	}
	if _, err := s.repo.SetStatus(ctx, id, StatusCancelled); err != nil {
		return ReleaseResult{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, res.Item)
	}
	s.recordAudit(ctx, "CANCEL", id, map[string]any{"item": res.Item})
	return ReleaseResult{Status: "cancelled"}, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "reservation:" + action,
		Entity:   "stock_reservation",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
