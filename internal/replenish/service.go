package replenish

import (
	"context"
	"log/slog"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	ListReorderCandidates(ctx context.Context) ([]ReorderCandidate, error)
	HasOpenRequest(ctx context.Context, item string) (bool, error)
	CreateRequest(ctx context.Context, req MaterialRequest) (int64, error)
	ListOpenRequests(ctx context.Context, limit int) ([]MaterialRequest, error)
}

// Service generates material requests for items below their reorder level.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Scan creates an Open material request for every item below its reorder
// level that does not already have one. A failure on one item is logged and
// the scan continues. Returns the number of requests created.
func (s *Service) Scan(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListReorderCandidates(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range candidates {
		exists, err := s.repo.HasOpenRequest(ctx, c.Item)
		if err != nil {
			s.logger.Warn("reorder check failed", slog.String("item", c.Item), slog.Any("error", err))
			continue
		}
		if exists {
			continue
		}

		requiredQty := c.ReorderQty
		if requiredQty <= 0 {
			requiredQty = 1
		}
		req := MaterialRequest{
			Item:         c.Item,
			RequiredQty:  requiredQty,
			CurrentStock: c.StockPhysical,
			ReorderLevel: c.ReorderLevel,
			Status:       StatusOpen,
		}
		if _, err := s.repo.CreateRequest(ctx, req); err != nil {
			s.logger.Warn("material request create failed", slog.String("item", c.Item), slog.Any("error", err))
			continue
		}
		created++
	}

	if created > 0 {
		s.logger.Info("material requests created", slog.Int("count", created))
	}
	return created, nil
}

// ListOpenRequests returns open material requests for review.
func (s *Service) ListOpenRequests(ctx context.Context, limit int) ([]MaterialRequest, error) {
	return s.repo.ListOpenRequests(ctx, limit)
}
