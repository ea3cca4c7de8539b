package customs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexport-erp/nexport-erp/internal/platform/db"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	gaps          map[int64]*Gap
	declaredDelta []declaredDeltaCall

	// Error injection
	txError        error
	lockError      error
	resolveError   error
	deltaError     error
}

type declaredDeltaCall struct {
	item  string
	delta float64
}

func newMockRepository() *mockRepository {
	return &mockRepository{gaps: make(map[int64]*Gap)}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) ListOpenGaps(ctx context.Context, customsName string, limit int) ([]Gap, error) {
	var out []Gap
	for _, gap := range m.gaps {
		if gap.Status == GapStatusResolved {
			continue
		}
		if customsName != "" && gap.CustomsName != customsName {
			continue
		}
		out = append(out, *gap)
	}
	return out, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) PendingGapsForUpdate(ctx context.Context, customsName string) ([]GapLock, error) {
	if t.mock.lockError != nil {
		return nil, t.mock.lockError
	}
	var locks []GapLock
	var order []*Gap
	for _, gap := range t.mock.gaps {
		if gap.CustomsName == customsName && gap.Status != GapStatusResolved {
			order = append(order, gap)
		}
	}
	// Oldest first, matching the FOR UPDATE query's created_at ordering.
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if order[j].CreatedAt.Before(order[i].CreatedAt) {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	for _, gap := range order {
		locks = append(locks, GapLock{
			ID:          gap.ID,
			Product:     gap.Product,
			GapQty:      gap.GapQty,
			ResolvedQty: gap.ResolvedQty,
		})
	}
	return locks, nil
}

func (t *mockTxRepo) ApplyGapResolution(ctx context.Context, gapID int64, qty float64, status GapStatus, resolutionRef string) error {
	if t.mock.resolveError != nil {
		return t.mock.resolveError
	}
	gap, ok := t.mock.gaps[gapID]
	if !ok {
		return errors.New("gap missing")
	}
	gap.ResolvedQty += qty
	gap.Status = status
	gap.ResolutionRef = resolutionRef
	return nil
}

func (t *mockTxRepo) ApplyDeclaredDelta(ctx context.Context, item string, delta float64) error {
	if t.mock.deltaError != nil {
		return t.mock.deltaError
	}
	t.mock.declaredDelta = append(t.mock.declaredDelta, declaredDeltaCall{item: item, delta: delta})
	return nil
}

func seedGap(repo *mockRepository, id int64, product, customsName string, gapQty, resolvedQty float64, createdAt time.Time) {
	status := GapStatusPending
	if resolvedQty > 0 {
		status = GapStatusPartial
	}
	repo.gaps[id] = &Gap{
		ID:          id,
		Product:     product,
		CustomsName: customsName,
		GapQty:      gapQty,
		ResolvedQty: resolvedQty,
		Status:      status,
		CreatedAt:   createdAt,
	}
}

// ============================================================================
// RESOLUTION TESTS
// ============================================================================

func TestResolveGapsConsumesOldestFirst(t *testing.T) {
	repo := newMockRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedGap(repo, 1, "WIDGET-A", "HS-100", 10, 0, base)
	seedGap(repo, 2, "WIDGET-A", "HS-100", 10, 0, base.Add(time.Hour))
	svc := NewService(repo, nil, nil)

	result, err := svc.ResolveGaps(context.Background(), "HS-100", 15, "DECL-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ResolvedCount)
	assert.Equal(t, 0.0, result.RemainingQty)
	assert.Equal(t, []int64{1, 2}, result.GapsAffected)

	assert.Equal(t, GapStatusResolved, repo.gaps[1].Status)
	assert.Equal(t, 10.0, repo.gaps[1].ResolvedQty)
	assert.Equal(t, GapStatusPartial, repo.gaps[2].Status)
	assert.Equal(t, 5.0, repo.gaps[2].ResolvedQty)
	assert.Equal(t, "DECL-1", repo.gaps[1].ResolutionRef)
}

func TestResolveGapsPoolsDeclaredDeltaPerProduct(t *testing.T) {
	repo := newMockRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedGap(repo, 1, "WIDGET-B", "HS-100", 5, 0, base)
	seedGap(repo, 2, "WIDGET-A", "HS-100", 5, 0, base.Add(time.Minute))
	seedGap(repo, 3, "WIDGET-B", "HS-100", 5, 0, base.Add(2*time.Minute))
	svc := NewService(repo, nil, nil)

	_, err := svc.ResolveGaps(context.Background(), "HS-100", 15, "DECL-2")
	require.NoError(t, err)

	// One delta per product, applied in ascending product order.
	require.Len(t, repo.declaredDelta, 2)
	assert.Equal(t, declaredDeltaCall{item: "WIDGET-A", delta: 5}, repo.declaredDelta[0])
	assert.Equal(t, declaredDeltaCall{item: "WIDGET-B", delta: 10}, repo.declaredDelta[1])
}

func TestResolveGapsOverDeclarationReportsRemaining(t *testing.T) {
	repo := newMockRepository()
	seedGap(repo, 1, "WIDGET-A", "HS-100", 10, 4, time.Now())
	svc := NewService(repo, nil, nil)

	result, err := svc.ResolveGaps(context.Background(), "HS-100", 20, "DECL-3")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResolvedCount)
	assert.Equal(t, 14.0, result.RemainingQty)
	assert.Equal(t, GapStatusResolved, repo.gaps[1].Status)
	assert.Equal(t, 10.0, repo.gaps[1].ResolvedQty)
}

func TestResolveGapsNoOpenGaps(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	result, err := svc.ResolveGaps(context.Background(), "HS-404", 5, "DECL-4")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ResolvedCount)
	assert.Equal(t, 5.0, result.RemainingQty)
	assert.Empty(t, result.GapsAffected)
}

func TestResolveGapsNonPositiveQtyIsNoOp(t *testing.T) {
	repo := newMockRepository()
	seedGap(repo, 1, "WIDGET-A", "HS-100", 10, 0, time.Now())
	svc := NewService(repo, nil, nil)

	result, err := svc.ResolveGaps(context.Background(), "HS-100", 0, "DECL-5")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ResolvedCount)
	assert.NotNil(t, result.GapsAffected)
	assert.Empty(t, result.GapsAffected)
	assert.Equal(t, 0.0, repo.gaps[1].ResolvedQty)
}

func TestResolveGapsRequiresCustomsName(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil)

	_, err := svc.ResolveGaps(context.Background(), "", 5, "DECL-6")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestResolveGapsLockContentionIsRetryable(t *testing.T) {
	repo := newMockRepository()
	repo.lockError = db.ErrRetryable
	svc := NewService(repo, nil, nil)

	_, err := svc.ResolveGaps(context.Background(), "HS-100", 5, "DECL-7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrRetryable))
}

func TestResolveGapsResolutionFailureRollsBack(t *testing.T) {
	repo := newMockRepository()
	seedGap(repo, 1, "WIDGET-A", "HS-100", 10, 0, time.Now())
	repo.resolveError = errors.New("write failed")
	svc := NewService(repo, nil, nil)

	_, err := svc.ResolveGaps(context.Background(), "HS-100", 5, "DECL-8")
	require.Error(t, err)
	assert.False(t, errors.Is(err, db.ErrRetryable))
	assert.Empty(t, repo.declaredDelta)
}

func TestResolveGapsSkipsFullyConsumedLocks(t *testing.T) {
	repo := newMockRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedGap(repo, 1, "WIDGET-A", "HS-100", 10, 10, base)
	repo.gaps[1].Status = GapStatusPartial // stale status, quantity already consumed
	seedGap(repo, 2, "WIDGET-A", "HS-100", 10, 0, base.Add(time.Hour))
	svc := NewService(repo, nil, nil)

	result, err := svc.ResolveGaps(context.Background(), "HS-100", 5, "DECL-9")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, result.GapsAffected)
	assert.Equal(t, 10.0, repo.gaps[1].ResolvedQty)
	assert.Equal(t, 5.0, repo.gaps[2].ResolvedQty)
}
