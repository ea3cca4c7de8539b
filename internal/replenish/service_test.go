package replenish

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	candidates []ReorderCandidate
	requests   map[int64]*MaterialRequest
	nextID     int64

	// Error injection
	listError   error
	existsError map[string]error
	createError map[string]error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		requests:    make(map[int64]*MaterialRequest),
		nextID:      1,
		existsError: make(map[string]error),
		createError: make(map[string]error),
	}
}

func (m *mockRepository) ListReorderCandidates(ctx context.Context) ([]ReorderCandidate, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.candidates, nil
}

func (m *mockRepository) HasOpenRequest(ctx context.Context, item string) (bool, error) {
	if err := m.existsError[item]; err != nil {
		return false, err
	}
	for _, req := range m.requests {
		if req.Item == item && req.Status == StatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) CreateRequest(ctx context.Context, req MaterialRequest) (int64, error) {
	if err := m.createError[req.Item]; err != nil {
		return 0, err
	}
	req.ID = m.nextID
	m.nextID++
	m.requests[req.ID] = &req
	return req.ID, nil
}

func (m *mockRepository) ListOpenRequests(ctx context.Context, limit int) ([]MaterialRequest, error) {
	var out []MaterialRequest
	for _, req := range m.requests {
		if req.Status == StatusOpen {
			out = append(out, *req)
		}
	}
	return out, nil
}

// ============================================================================
// SCAN TESTS
// ============================================================================

func TestScanCreatesRequestsBelowReorderLevel(t *testing.T) {
	repo := newMockRepository()
	repo.candidates = []ReorderCandidate{
		{Item: "WIDGET-A", StockPhysical: 2, ReorderLevel: 10, ReorderQty: 50},
		{Item: "WIDGET-B", StockPhysical: 0, ReorderLevel: 5, ReorderQty: 20},
	}
	svc := NewService(repo, nil)

	created, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	open, err := svc.ListOpenRequests(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, req := range open {
		assert.Equal(t, StatusOpen, req.Status)
		if req.Item == "WIDGET-A" {
			assert.Equal(t, 50.0, req.RequiredQty)
			assert.Equal(t, 2.0, req.CurrentStock)
			assert.Equal(t, 10.0, req.ReorderLevel)
		}
	}
}

func TestScanSkipsItemsWithOpenRequest(t *testing.T) {
	repo := newMockRepository()
	repo.candidates = []ReorderCandidate{
		{Item: "WIDGET-A", StockPhysical: 2, ReorderLevel: 10, ReorderQty: 50},
	}
	repo.requests[99] = &MaterialRequest{ID: 99, Item: "WIDGET-A", Status: StatusOpen}
	svc := NewService(repo, nil)

	created, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, repo.requests, 1)
}

func TestScanIgnoresClosedRequests(t *testing.T) {
	repo := newMockRepository()
	repo.candidates = []ReorderCandidate{
		{Item: "WIDGET-A", StockPhysical: 2, ReorderLevel: 10, ReorderQty: 50},
	}
	repo.requests[99] = &MaterialRequest{ID: 99, Item: "WIDGET-A", Status: StatusOrdered}
	svc := NewService(repo, nil)

	created, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestScanDefaultsRequiredQty(t *testing.T) {
	repo := newMockRepository()
	repo.candidates = []ReorderCandidate{
		{Item: "WIDGET-A", StockPhysical: 2, ReorderLevel: 10, ReorderQty: 0},
	}
	svc := NewService(repo, nil)

	created, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	open, _ := svc.ListOpenRequests(context.Background(), 50)
	require.Len(t, open, 1)
	assert.Equal(t, 1.0, open[0].RequiredQty)
}

func TestScanContinuesPastItemFailures(t *testing.T) {
	repo := newMockRepository()
	repo.candidates = []ReorderCandidate{
		{Item: "WIDGET-A", StockPhysical: 2, ReorderLevel: 10, ReorderQty: 5},
		{Item: "WIDGET-B", StockPhysical: 1, ReorderLevel: 10, ReorderQty: 5},
		{Item: "WIDGET-C", StockPhysical: 3, ReorderLevel: 10, ReorderQty: 5},
	}
	repo.existsError["WIDGET-A"] = errors.New("query timeout")
	repo.createError["WIDGET-B"] = errors.New("insert failed")
	svc := NewService(repo, nil)

	created, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestScanListFailure(t *testing.T) {
	repo := newMockRepository()
	repo.listError = errors.New("db down")
	svc := NewService(repo, nil)

	_, err := svc.Scan(context.Background())
	assert.Error(t, err)
}
