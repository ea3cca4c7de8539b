package customs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nexport-erp/nexport-erp/internal/platform/db"
	"github.com/nexport-erp/nexport-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOpenGaps(ctx context.Context, customsName string, limit int) ([]Gap, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs FIFO customs gap resolution.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ResolveGaps consumes a customs declaration against open gaps sharing the
// customs name, oldest first. Gaps and the declared stock track move in one
// transaction; a declaration exceeding all open gaps reports the leftover as
// RemainingQty without failing. Lock contention surfaces as a retryable
// error; everything else rolls back and propagates unchanged.
func (s *Service) ResolveGaps(ctx context.Context, customsName string, declarationQty float64, declarationRef string) (ResolveResult, error) {
	if customsName == "" {
		return ResolveResult{}, fmt.Errorf("%w: customs name required", ErrValidation)
	}
	if declarationQty <= 0 {
		s.logger.Warn("declaration quantity must be greater than 0",
			slog.String("customs_name", customsName),
			slog.Float64("qty", declarationQty))
		return ResolveResult{GapsAffected: []int64{}}, nil
	}

	var result ResolveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gaps, err := tx.PendingGapsForUpdate(ctx, customsName)
		if err != nil {
			return err
		}
		result, err = consumeGaps(ctx, tx, gaps, declarationQty, declarationRef)
		return err
	})
	if err != nil {
		if db.IsRetryable(err) {
			return ResolveResult{}, fmt.Errorf("%w: gap resolution for %s", db.ErrRetryable, customsName)
		}
		return ResolveResult{}, err
	}

	if result.RemainingQty > 0 {
		s.logger.Warn("declaration quantity exceeds available gaps",
			slog.String("customs_name", customsName),
			slog.Float64("unmatched_qty", result.RemainingQty))
	}
	s.recordAudit(ctx, customsName, declarationRef, result)
	return result, nil
}

// consumeGaps walks the locked set in FIFO order. Declared stock deltas are
// pooled per product and applied after the loop in ascending product order so
// concurrent resolutions acquire item locks in a consistent order.
func consumeGaps(ctx context.Context, tx TxRepository, gaps []GapLock, declarationQty float64, declarationRef string) (ResolveResult, error) {
	remaining := declarationQty
	affected := []int64{}
	declaredDelta := make(map[string]float64)

	for _, gap := range gaps {
		if remaining <= 0 {
			break
		}
		gapRemaining := gap.GapQty - gap.ResolvedQty
		if gapRemaining <= 0 {
			continue
		}

		toResolve := gapRemaining
		if remaining < toResolve {
			toResolve = remaining
		}
		status := GapStatusPartial
		if gap.ResolvedQty+toResolve >= gap.GapQty {
			status = GapStatusResolved
		}
		if err := tx.ApplyGapResolution(ctx, gap.ID, toResolve, status, declarationRef); err != nil {
			return ResolveResult{}, err
		}
		remaining -= toResolve
		affected = append(affected, gap.ID)
		declaredDelta[gap.Product] += toResolve
	}

	products := make([]string, 0, len(declaredDelta))
	for product := range declaredDelta {
		products = append(products, product)
	}
	sort.Strings(products)
	for _, product := range products {
		if err := tx.ApplyDeclaredDelta(ctx, product, declaredDelta[product]); err != nil {
			return ResolveResult{}, err
		}
	}

	return ResolveResult{
		ResolvedCount: len(affected),
		RemainingQty:  remaining,
		GapsAffected:  affected,
	}, nil
}

// ListOpenGaps returns pending/partial gaps for review.
func (s *Service) ListOpenGaps(ctx context.Context, customsName string, limit int) ([]Gap, error) {
	return s.repo.ListOpenGaps(ctx, customsName, limit)
}

func (s *Service) recordAudit(ctx context.Context, customsName, declarationRef string, result ResolveResult) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "customs:GAP_RESOLVE",
		Entity:   "customs_declaration",
		EntityID: declarationRef,
		Meta: map[string]any{
			"customs_name":   customsName,
			"resolved_count": result.ResolvedCount,
			"remaining_qty":  result.RemainingQty,
		},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
