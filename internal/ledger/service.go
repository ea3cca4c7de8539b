package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexport-erp/nexport-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, name string) (Item, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates dual-track stock and cost mutations.
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

// UpdateStockInput describes a quantity delta on one item.
type UpdateStockInput struct {
	Item          string
	PhysicalDelta float64
	DeclaredDelta float64
	Ref           string
}

// UpdateStock applies physical/declared quantity deltas in one transaction.
// Both deltas zero is a no-op with no writes. If either resulting quantity is
// negative the whole transaction rolls back with ErrNegativeStock.
func (s *Service) UpdateStock(ctx context.Context, input UpdateStockInput) (StockLevels, error) {
	if input.Item == "" {
		return StockLevels{}, errors.New("ledger: item required")
	}
	if input.PhysicalDelta == 0 && input.DeclaredDelta == 0 {
		return StockLevels{}, nil
	}
	var levels StockLevels
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		levels, err = applyStockDelta(ctx, tx, input.Item, input.PhysicalDelta, input.DeclaredDelta)
		return err
	})
	if err != nil {
		return StockLevels{}, err
	}
	s.recordAudit(ctx, "STOCK_DELTA", input.Item, map[string]any{
		"physical_delta": input.PhysicalDelta,
		"declared_delta": input.DeclaredDelta,
		"ref":            input.Ref,
	})
	return levels, nil
}

// applyStockDelta runs the atomic delta plus the post-update negative check.
// Exposed at package level so sibling modules composing their own
// transactions get identical semantics.
func applyStockDelta(ctx context.Context, tx TxRepository, item string, physicalDelta, declaredDelta float64) (StockLevels, error) {
	levels, err := tx.ApplyStockDelta(ctx, item, physicalDelta, declaredDelta)
	if err != nil {
		return StockLevels{}, err
	}
	if levels.Physical < 0 {
		return StockLevels{}, fmt.Errorf("%w: physical stock for %s would be %g", ErrNegativeStock, item, levels.Physical)
	}
	if levels.Declared < 0 {
		return StockLevels{}, fmt.Errorf("%w: declared stock for %s would be %g", ErrNegativeStock, item, levels.Declared)
	}
	return levels, nil
}

// ApplyStockDelta applies a quantity delta inside a caller-owned transaction,
// enforcing the non-negativity contract.
func ApplyStockDelta(ctx context.Context, tx TxRepository, item string, physicalDelta, declaredDelta float64) (StockLevels, error) {
	if physicalDelta == 0 && declaredDelta == 0 {
		return StockLevels{}, nil
	}
	return applyStockDelta(ctx, tx, item, physicalDelta, declaredDelta)
}

// UpdateCostInput describes a cost delta on one item.
type UpdateCostInput struct {
	Item          string
	LandedDelta   float64
	DeclaredDelta float64

	RecordHistory   bool
	HistoryType     ChangeType
	Source          string
	ExchangeRate    float64
	ForeignAmount   float64
	IsTemporaryRate bool
}

// UpdateCost applies landed/declared cost deltas and optionally appends a
// price history entry per affected cost type. Both deltas zero is a no-op.
func (s *Service) UpdateCost(ctx context.Context, input UpdateCostInput) (CostLevels, error) {
	if input.Item == "" {
		return CostLevels{}, errors.New("ledger: item required")
	}
	if input.LandedDelta == 0 && input.DeclaredDelta == 0 {
		return CostLevels{}, nil
	}
	historyType := input.HistoryType
	if historyType == "" {
		historyType = ChangeTypeAdjustment
	}
	var costs CostLevels
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		costs, err = tx.ApplyCostDelta(ctx, input.Item, input.LandedDelta, input.DeclaredDelta)
		if err != nil {
			return err
		}
		if !input.RecordHistory {
			return nil
		}
		if input.LandedDelta != 0 {
			if err := tx.InsertPriceHistory(ctx, PriceHistory{
				ItemName:        input.Item,
				Type:            historyType,
				CostType:        CostTypeLanded,
				UnitPrice:       costs.Landed,
				Source:          input.Source,
				ExchangeRate:    input.ExchangeRate,
				ForeignAmount:   input.ForeignAmount,
				IsTemporaryRate: input.IsTemporaryRate,
			}); err != nil {
				return err
			}
		}
		if input.DeclaredDelta != 0 {
			if err := tx.InsertPriceHistory(ctx, PriceHistory{
				ItemName:        input.Item,
				Type:            historyType,
				CostType:        CostTypeDeclared,
				UnitPrice:       costs.Declared,
				Source:          input.Source,
				ExchangeRate:    input.ExchangeRate,
				ForeignAmount:   input.ForeignAmount,
				IsTemporaryRate: input.IsTemporaryRate,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CostLevels{}, err
	}
	s.recordAudit(ctx, "COST_DELTA", input.Item, map[string]any{
		"landed_delta":   input.LandedDelta,
		"declared_delta": input.DeclaredDelta,
		"source":         input.Source,
	})
	return costs, nil
}

// DeliveryLine is one outbound movement line.
type DeliveryLine struct {
	Item string
	Qty  float64
}

// DeliveryInput describes an outbound delivery movement.
type DeliveryInput struct {
	Ref     string
	Lending bool
	Lines   []DeliveryLine
}

// DeductForDelivery removes stock for a delivery note. Lending deliveries
// leave the declared track untouched since the goods remain on the books.
func (s *Service) DeductForDelivery(ctx context.Context, input DeliveryInput) error {
	return s.moveForDelivery(ctx, input, -1, "DELIVERY_DEDUCT")
}

// RestoreForDelivery reverses a delivery deduction on cancellation.
func (s *Service) RestoreForDelivery(ctx context.Context, input DeliveryInput) error {
	return s.moveForDelivery(ctx, input, 1, "DELIVERY_RESTORE")
}

func (s *Service) moveForDelivery(ctx context.Context, input DeliveryInput, sign float64, action string) error {
	if len(input.Lines) == 0 {
		return errors.New("ledger: delivery requires at least one line")
	}
	for _, line := range input.Lines {
		if line.Item == "" || line.Qty <= 0 {
			return errors.New("ledger: delivery line requires item and positive qty")
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			physicalDelta := sign * line.Qty
			declaredDelta := physicalDelta
			if input.Lending {
				declaredDelta = 0
			}
			if _, err := applyStockDelta(ctx, tx, line.Item, physicalDelta, declaredDelta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, action, input.Ref, map[string]any{
		"lines":   len(input.Lines),
		"lending": input.Lending,
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   fmt.Sprintf("ledger:%s", action),
		Entity:   "item",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
