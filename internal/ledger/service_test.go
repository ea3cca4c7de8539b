package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexport-erp/nexport-erp/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	items   map[string]*Item
	history []PriceHistory

	// Error injection
	txError          error
	stockDeltaError  error
	costDeltaError   error
	historyError     error
	stockDeltaCalls  int
	committedLevels  map[string]StockLevels
	rolledBack       bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		items:           make(map[string]*Item),
		committedLevels: make(map[string]StockLevels),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	// Snapshot for rollback on error.
	snapshot := make(map[string]Item, len(m.items))
	for name, item := range m.items {
		snapshot[name] = *item
	}
	historyLen := len(m.history)
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		for name := range m.items {
			restored := snapshot[name]
			m.items[name] = &restored
		}
		m.history = m.history[:historyLen]
		m.rolledBack = true
		return err
	}
	return nil
}

func (m *mockRepository) GetItem(ctx context.Context, name string) (Item, error) {
	item, ok := m.items[name]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return *item, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) ApplyStockDelta(ctx context.Context, item string, physicalDelta, declaredDelta float64) (StockLevels, error) {
	t.mock.stockDeltaCalls++
	if t.mock.stockDeltaError != nil {
		return StockLevels{}, t.mock.stockDeltaError
	}
	it, ok := t.mock.items[item]
	if !ok {
		return StockLevels{}, ErrItemNotFound
	}
	it.StockPhysical += physicalDelta
	it.StockDeclared += declaredDelta
	return StockLevels{Physical: it.StockPhysical, Declared: it.StockDeclared}, nil
}

func (t *mockTxRepo) ApplyCostDelta(ctx context.Context, item string, landedDelta, declaredDelta float64) (CostLevels, error) {
	if t.mock.costDeltaError != nil {
		return CostLevels{}, t.mock.costDeltaError
	}
	it, ok := t.mock.items[item]
	if !ok {
		return CostLevels{}, ErrItemNotFound
	}
	it.CostLanded += landedDelta
	it.CostDeclared += declaredDelta
	return CostLevels{Landed: it.CostLanded, Declared: it.CostDeclared}, nil
}

func (t *mockTxRepo) InsertPriceHistory(ctx context.Context, entry PriceHistory) error {
	if t.mock.historyError != nil {
		return t.mock.historyError
	}
	entry.ID = int64(len(t.mock.history) + 1)
	t.mock.history = append(t.mock.history, entry)
	return nil
}

func (t *mockTxRepo) GetItem(ctx context.Context, name string) (Item, error) {
	return t.mock.GetItem(ctx, name)
}

type mockAudit struct {
	logs []shared.AuditLog
	err  error
}

func (a *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func seedItem(repo *mockRepository, name string, physical, declared float64) {
	repo.items[name] = &Item{
		Name:          name,
		StockPhysical: physical,
		StockDeclared: declared,
	}
}

// ============================================================================
// STOCK TESTS
// ============================================================================

func TestUpdateStockAppliesBothTracks(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 8)
	svc := NewService(repo, nil, nil)

	levels, err := svc.UpdateStock(context.Background(), UpdateStockInput{
		Item:          "WIDGET-A",
		PhysicalDelta: 5,
		DeclaredDelta: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, levels.Physical)
	assert.Equal(t, 11.0, levels.Declared)
	assert.Equal(t, 15.0, repo.items["WIDGET-A"].StockPhysical)
	assert.Equal(t, 11.0, repo.items["WIDGET-A"].StockDeclared)
}

func TestUpdateStockBothZeroIsNoOp(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 8)
	svc := NewService(repo, nil, nil)

	levels, err := svc.UpdateStock(context.Background(), UpdateStockInput{Item: "WIDGET-A"})
	require.NoError(t, err)
	assert.Equal(t, StockLevels{}, levels)
	assert.Equal(t, 0, repo.stockDeltaCalls)
}

func TestUpdateStockNegativePhysicalRollsBack(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 4, 4)
	svc := NewService(repo, nil, nil)

	_, err := svc.UpdateStock(context.Background(), UpdateStockInput{
		Item:          "WIDGET-A",
		PhysicalDelta: -5,
		DeclaredDelta: -2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeStock))
	assert.True(t, repo.rolledBack)
	assert.Equal(t, 4.0, repo.items["WIDGET-A"].StockPhysical)
	assert.Equal(t, 4.0, repo.items["WIDGET-A"].StockDeclared)
}

func TestUpdateStockNegativeDeclaredRollsBack(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 1)
	svc := NewService(repo, nil, nil)

	_, err := svc.UpdateStock(context.Background(), UpdateStockInput{
		Item:          "WIDGET-A",
		DeclaredDelta: -2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeStock))
	assert.Equal(t, 1.0, repo.items["WIDGET-A"].StockDeclared)
}

func TestUpdateStockMissingItem(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	_, err := svc.UpdateStock(context.Background(), UpdateStockInput{
		Item:          "GHOST",
		PhysicalDelta: 1,
	})
	assert.True(t, errors.Is(err, ErrItemNotFound))
}

func TestUpdateStockRecordsAudit(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 10)
	audit := &mockAudit{}
	svc := NewService(repo, audit, nil)

	_, err := svc.UpdateStock(context.Background(), UpdateStockInput{
		Item:          "WIDGET-A",
		PhysicalDelta: 1,
		Ref:           "ADJ-1",
	})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "ledger:STOCK_DELTA", audit.logs[0].Action)
	assert.Equal(t, "WIDGET-A", audit.logs[0].EntityID)
}

// ============================================================================
// COST TESTS
// ============================================================================

func TestUpdateCostWritesHistoryPerAffectedTrack(t *testing.T) {
	repo := newMockRepository()
	item := &Item{Name: "WIDGET-A", CostLanded: 100, CostDeclared: 80}
	repo.items["WIDGET-A"] = item
	svc := NewService(repo, nil, nil)

	costs, err := svc.UpdateCost(context.Background(), UpdateCostInput{
		Item:          "WIDGET-A",
		LandedDelta:   20,
		DeclaredDelta: 10,
		RecordHistory: true,
		HistoryType:   ChangeTypePurchase,
		Source:        "INV-9",
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, costs.Landed)
	assert.Equal(t, 90.0, costs.Declared)

	require.Len(t, repo.history, 2)
	assert.Equal(t, CostTypeLanded, repo.history[0].CostType)
	assert.Equal(t, 120.0, repo.history[0].UnitPrice)
	assert.Equal(t, CostTypeDeclared, repo.history[1].CostType)
	assert.Equal(t, 90.0, repo.history[1].UnitPrice)
	assert.Equal(t, ChangeTypePurchase, repo.history[0].Type)
}

func TestUpdateCostSkipsHistoryForUntouchedTrack(t *testing.T) {
	repo := newMockRepository()
	repo.items["WIDGET-A"] = &Item{Name: "WIDGET-A", CostLanded: 100}
	svc := NewService(repo, nil, nil)

	_, err := svc.UpdateCost(context.Background(), UpdateCostInput{
		Item:          "WIDGET-A",
		LandedDelta:   5,
		RecordHistory: true,
	})
	require.NoError(t, err)
	require.Len(t, repo.history, 1)
	assert.Equal(t, CostTypeLanded, repo.history[0].CostType)
	assert.Equal(t, ChangeTypeAdjustment, repo.history[0].Type)
}

func TestUpdateCostBothZeroIsNoOp(t *testing.T) {
	repo := newMockRepository()
	repo.items["WIDGET-A"] = &Item{Name: "WIDGET-A", CostLanded: 100}
	svc := NewService(repo, nil, nil)

	costs, err := svc.UpdateCost(context.Background(), UpdateCostInput{Item: "WIDGET-A"})
	require.NoError(t, err)
	assert.Equal(t, CostLevels{}, costs)
	assert.Empty(t, repo.history)
}

func TestUpdateCostHistoryFailureRollsBack(t *testing.T) {
	repo := newMockRepository()
	repo.items["WIDGET-A"] = &Item{Name: "WIDGET-A", CostLanded: 100}
	repo.historyError = errors.New("history insert failed")
	svc := NewService(repo, nil, nil)

	_, err := svc.UpdateCost(context.Background(), UpdateCostInput{
		Item:          "WIDGET-A",
		LandedDelta:   5,
		RecordHistory: true,
	})
	require.Error(t, err)
	assert.Equal(t, 100.0, repo.items["WIDGET-A"].CostLanded)
}

// ============================================================================
// DELIVERY TESTS
// ============================================================================

func TestDeductForDeliveryMovesBothTracks(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 10)
	seedItem(repo, "WIDGET-B", 6, 6)
	svc := NewService(repo, nil, nil)

	err := svc.DeductForDelivery(context.Background(), DeliveryInput{
		Ref: "DN-1",
		Lines: []DeliveryLine{
			{Item: "WIDGET-A", Qty: 4},
			{Item: "WIDGET-B", Qty: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, repo.items["WIDGET-A"].StockPhysical)
	assert.Equal(t, 6.0, repo.items["WIDGET-A"].StockDeclared)
	assert.Equal(t, 4.0, repo.items["WIDGET-B"].StockPhysical)
}

func TestDeductForDeliveryLendingKeepsDeclared(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 10)
	svc := NewService(repo, nil, nil)

	err := svc.DeductForDelivery(context.Background(), DeliveryInput{
		Ref:     "DN-2",
		Lending: true,
		Lines:   []DeliveryLine{{Item: "WIDGET-A", Qty: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, repo.items["WIDGET-A"].StockPhysical)
	assert.Equal(t, 10.0, repo.items["WIDGET-A"].StockDeclared)
}

func TestDeductForDeliveryInsufficientStockRollsBackAllLines(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 10, 10)
	seedItem(repo, "WIDGET-B", 1, 1)
	svc := NewService(repo, nil, nil)

	err := svc.DeductForDelivery(context.Background(), DeliveryInput{
		Ref: "DN-3",
		Lines: []DeliveryLine{
			{Item: "WIDGET-A", Qty: 4},
			{Item: "WIDGET-B", Qty: 2},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeStock))
	assert.Equal(t, 10.0, repo.items["WIDGET-A"].StockPhysical)
	assert.Equal(t, 1.0, repo.items["WIDGET-B"].StockPhysical)
}

func TestRestoreForDeliveryReverses(t *testing.T) {
	repo := newMockRepository()
	seedItem(repo, "WIDGET-A", 6, 10)
	svc := NewService(repo, nil, nil)

	err := svc.RestoreForDelivery(context.Background(), DeliveryInput{
		Ref:     "DN-2",
		Lending: true,
		Lines:   []DeliveryLine{{Item: "WIDGET-A", Qty: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, repo.items["WIDGET-A"].StockPhysical)
	assert.Equal(t, 10.0, repo.items["WIDGET-A"].StockDeclared)
}

func TestDeliveryRejectsBadLines(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)

	err := svc.DeductForDelivery(context.Background(), DeliveryInput{Ref: "DN-4"})
	assert.Error(t, err)

	err = svc.DeductForDelivery(context.Background(), DeliveryInput{
		Ref:   "DN-5",
		Lines: []DeliveryLine{{Item: "WIDGET-A", Qty: 0}},
	})
	assert.Error(t, err)
}
