package receiving

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexport-erp/nexport-erp/internal/customs"
	"github.com/nexport-erp/nexport-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShipment(ctx context.Context, id string) (Shipment, error)
	GetPOInfo(ctx context.Context, po string) (POInfo, error)
	GetItemMeta(ctx context.Context, item string) (ItemMeta, error)
	ListPOLines(ctx context.Context, po string) ([]POLine, error)
}

// OverReceiptHandler is the procurement collaborator invoked after commit
// when a PO's cumulative received quantity exceeds the ordered quantity.
type OverReceiptHandler interface {
	HandleOverReceipt(ctx context.Context, po, shipment string, lines []OverReceiptLine) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service processes dual-track shipment receipts.
type Service struct {
	repo        RepositoryPort
	overReceipt OverReceiptHandler
	audit       AuditPort
	settings    shared.Settings
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, overReceipt OverReceiptHandler, audit AuditPort, settings shared.Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.GapDeadlineDays <= 0 {
		settings.GapDeadlineDays = shared.DefaultSettings().GapDeadlineDays
	}
	return &Service{repo: repo, overReceipt: overReceipt, audit: audit, settings: settings, logger: logger}
}

// ProcessReceipt lands a shipment's goods. Formal shipments increase both
// stock tracks; informal shipments increase physical stock only and open a
// customs gap per line. The call is idempotent per shipment. Over-receipt
// hand-off runs after commit and never rolls the receipt back.
func (s *Service) ProcessReceipt(ctx context.Context, shipmentID string) (ProcessResult, error) {
	sh, err := s.repo.GetShipment(ctx, shipmentID)
	if err != nil {
		return ProcessResult{}, err
	}
	if sh.ReceiptProcessed {
		return ProcessResult{
			Success:        true,
			AlreadyExisted: true,
			Message:        "shipment receipt already processed",
		}, nil
	}

	warnings, itemMeta, err := s.validate(ctx, sh)
	if err != nil {
		return ProcessResult{}, err
	}

	items, err := s.commitReceipt(ctx, sh, itemMeta)
	if err != nil {
		return ProcessResult{}, err
	}

	overReceipts := s.handleOverReceipts(ctx, sh)

	result := ProcessResult{
		Success:      true,
		Items:        items,
		OverReceipts: overReceipts,
		Warnings:     warnings,
	}
	for _, over := range overReceipts {
		if over.HandlerFailed {
			result.Success = false
			result.Message = "receipt committed; over-receipt handling failed for one or more POs"
			break
		}
	}
	s.recordAudit(ctx, sh, result)
	return result, nil
}

// validate runs the read-only checks outside the mutating transaction.
func (s *Service) validate(ctx context.Context, sh Shipment) ([]string, map[string]ItemMeta, error) {
	if sh.Status != ShipmentStatusSubmitted {
		return nil, nil, fmt.Errorf("%w: shipment %s is not submitted", ErrValidation, sh.ID)
	}
	if len(sh.Lines) == 0 {
		return nil, nil, fmt.Errorf("%w: shipment %s has no lines", ErrValidation, sh.ID)
	}
	if sh.IsFormal && sh.CustomsExchangeRate <= 0 {
		return nil, nil, fmt.Errorf("%w: formal shipment %s requires a positive customs exchange rate", ErrValidation, sh.ID)
	}

	var warnings []string
	checkedPOs := make(map[string]bool)
	itemMeta := make(map[string]ItemMeta)
	for _, line := range sh.Lines {
		if !checkedPOs[line.PO] {
			po, err := s.repo.GetPOInfo(ctx, line.PO)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			if !receivablePOStatuses[po.Status] {
				return nil, nil, fmt.Errorf("%w: PO %s status %s is not receivable", ErrValidation, po.ID, po.Status)
			}
			if po.InvoiceID == "" {
				warnings = append(warnings, fmt.Sprintf("PO %s has no linked invoice", po.ID))
			}
			checkedPOs[line.PO] = true
		}
		if _, ok := itemMeta[line.Item]; !ok {
			meta, err := s.repo.GetItemMeta(ctx, line.Item)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			if !sh.IsFormal && meta.CustomsName == "" {
				return nil, nil, fmt.Errorf("%w: item %s has no customs name; informal receipt needs one for later resolution", ErrValidation, line.Item)
			}
			itemMeta[line.Item] = meta
		}
	}
	return warnings, itemMeta, nil
}

// commitReceipt runs the all-or-nothing mutating phase. Failures roll back,
// are logged under a correlation ref, and surface as an opaque error.
func (s *Service) commitReceipt(ctx context.Context, sh Shipment, itemMeta map[string]ItemMeta) ([]ReceivedItem, error) {
	deadline := time.Now().UTC().AddDate(0, 0, s.settings.GapDeadlineDays)
	var items []ReceivedItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range sh.Lines {
			received := ReceivedItem{Item: line.Item, PO: line.PO, Qty: line.Qty, Formal: sh.IsFormal}
			if sh.IsFormal {
				if _, err := tx.ApplyStockDelta(ctx, line.Item, line.Qty, line.Qty); err != nil {
					return err
				}
			} else {
				if _, err := tx.ApplyStockDelta(ctx, line.Item, line.Qty, 0); err != nil {
					return err
				}
				gapID, err := tx.CreateGap(ctx, customs.Gap{
					Product:     line.Item,
					Shipment:    sh.ID,
					PO:          line.PO,
					CustomsName: itemMeta[line.Item].CustomsName,
					GapQty:      line.Qty,
					Deadline:    deadline,
				})
				if err != nil {
					return err
				}
				received.GapID = gapID
			}
			if err := tx.IncrementReceivedQty(ctx, line.PO, line.Item, line.Qty); err != nil {
				return err
			}
			items = append(items, received)
		}
		return tx.MarkReceiptProcessed(ctx, sh.ID)
	})
	if err != nil {
		logRef := uuid.New().String()
		s.logger.Error("receipt transaction rolled back",
			slog.String("shipment", sh.ID),
			slog.String("log_ref", logRef),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w, see log ref %s", ErrReceiptFailed, logRef)
	}
	return items, nil
}

// handleOverReceipts runs the best-effort post-commit phase. A handler
// failure is reported per PO and never unwinds the committed receipt.
func (s *Service) handleOverReceipts(ctx context.Context, sh Shipment) []OverReceipt {
	touched := make(map[string]bool)
	var pos []string
	for _, line := range sh.Lines {
		if !touched[line.PO] {
			touched[line.PO] = true
			pos = append(pos, line.PO)
		}
	}

	var results []OverReceipt
	for _, po := range pos {
		lines, err := s.repo.ListPOLines(ctx, po)
		if err != nil {
			s.logger.Error("over-receipt scan failed",
				slog.String("po", po), slog.Any("error", err))
			results = append(results, OverReceipt{PO: po, HandlerFailed: true, FailureDetail: "over-receipt scan failed"})
			continue
		}
		var over []OverReceiptLine
		for _, line := range lines {
			if line.ReceivedQty > line.Quantity {
				over = append(over, OverReceiptLine{Item: line.Item, OverQty: line.ReceivedQty - line.Quantity})
			}
		}
		if len(over) == 0 {
			continue
		}
		entry := OverReceipt{PO: po, Lines: over}
		if s.overReceipt != nil {
			if err := s.overReceipt.HandleOverReceipt(ctx, po, sh.ID, over); err != nil {
				s.logger.Error("over-receipt handler failed",
					slog.String("po", po),
					slog.String("shipment", sh.ID),
					slog.Any("error", err))
				entry.HandlerFailed = true
				entry.FailureDetail = err.Error()
			}
		}
		results = append(results, entry)
	}
	return results
}

func (s *Service) recordAudit(ctx context.Context, sh Shipment, result ProcessResult) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "receiving:RECEIPT",
		Entity:   "shipment",
		EntityID: sh.ID,
		Meta: map[string]any{
			"formal":        sh.IsFormal,
			"lines":         len(result.Items),
			"over_receipts": len(result.OverReceipts),
		},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
