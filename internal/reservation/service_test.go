package reservation

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
	stock        map[string]stockPair
	reservations map[int64]*Reservation
	nextID       int64

	// Error injection
	getStockError error
	createError   error
	statusError   error
	statusResult  bool
}

type stockPair struct {
	physical float64
	declared float64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		stock:        make(map[string]stockPair),
		reservations: make(map[int64]*Reservation),
		nextID:       1,
		statusResult: true,
	}
}

func (m *mockRepository) GetItemStock(ctx context.Context, item string) (float64, float64, error) {
	if m.getStockError != nil {
		return 0, 0, m.getStockError
	}
	st, ok := m.stock[item]
	if !ok {
		return 0, 0, errors.New("item not found")
	}
	return st.physical, st.declared, nil
}

func (m *mockRepository) SumActiveReservations(ctx context.Context, item string) (float64, float64, error) {
	var physical, declared float64
	for _, res := range m.reservations {
		if res.Item == item && res.Status == StatusActive {
			physical += res.ReservedPhysical
			declared += res.ReservedDeclared
		}
	}
	return physical, declared, nil
}

func (m *mockRepository) CreateReservation(ctx context.Context, res Reservation) (int64, error) {
	if m.createError != nil {
		return 0, m.createError
	}
	res.ID = m.nextID
	m.nextID++
	res.Status = StatusActive
	m.reservations[res.ID] = &res
	return res.ID, nil
}

func (m *mockRepository) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	res, ok := m.reservations[id]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return *res, nil
}

func (m *mockRepository) SetStatus(ctx context.Context, id int64, status Status) (bool, error) {
	if m.statusError != nil {
		return false, m.statusError
	}
	if !m.statusResult {
		return false, nil
	}
	res, ok := m.reservations[id]
	if !ok {
		return false, nil
	}
	res.Status = status
	return true, nil
}

type mockCache struct {
	snapshots   map[string]Availability
	invalidated []string
	hits        int
	misses      int
}

func newMockCache() *mockCache {
	return &mockCache{snapshots: make(map[string]Availability)}
}

func (c *mockCache) GetAvailability(ctx context.Context, item string) (Availability, bool) {
	av, ok := c.snapshots[item]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return av, ok
}

func (c *mockCache) SetAvailability(ctx context.Context, av Availability) {
	c.snapshots[av.Item] = av
}

func (c *mockCache) Invalidate(ctx context.Context, item string) {
	delete(c.snapshots, item)
	c.invalidated = append(c.invalidated, item)
}

// ============================================================================
// AVAILABILITY TESTS
// ============================================================================

func TestAvailableStockSubtractsActiveReservations(t *testing.T) {
	repo := newMockRepository()
	repo.stock["WIDGET-A"] = stockPair{physical: 100, declared: 60}
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", ReservedPhysical: 30, ReservedDeclared: 20, Status: StatusActive}
	repo.reservations[2] = &Reservation{ID: 2, Item: "WIDGET-A", ReservedPhysical: 10, ReservedDeclared: 10, Status: StatusReleased}
	svc := NewService(repo, nil, nil, nil)

	av, err := svc.AvailableStock(context.Background(), "WIDGET-A")
	require.NoError(t, err)
	assert.Equal(t, 70.0, av.AvailablePhysical)
	assert.Equal(t, 40.0, av.AvailableDeclared)
	assert.Equal(t, 30.0, av.ReservedPhysical)
	assert.Equal(t, 20.0, av.ReservedDeclared)
}

func TestAvailableStockUsesCache(t *testing.T) {
	repo := newMockRepository()
	repo.stock["WIDGET-A"] = stockPair{physical: 100, declared: 100}
	cache := newMockCache()
	svc := NewService(repo, cache, nil, nil)

	first, err := svc.AvailableStock(context.Background(), "WIDGET-A")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.misses)

	// Stock moves underneath; the cached snapshot still answers.
	repo.stock["WIDGET-A"] = stockPair{physical: 1, declared: 1}
	second, err := svc.AvailableStock(context.Background(), "WIDGET-A")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first, second)
}

func TestAvailableStockRequiresItem(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil, nil)

	_, err := svc.AvailableStock(context.Background(), "")
	assert.True(t, errors.Is(err, ErrValidation))
}

// ============================================================================
// RESERVE TESTS
// ============================================================================

func TestReserveCreatesActiveReservation(t *testing.T) {
	repo := newMockRepository()
	repo.stock["WIDGET-A"] = stockPair{physical: 100, declared: 100}
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Reserve(context.Background(), "WIDGET-A", "SO-1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ReservationID)
	assert.Equal(t, 30.0, result.ReservedPhysical)
	assert.Equal(t, 30.0, result.ReservedDeclared)
	assert.Equal(t, 70.0, result.AvailablePhysical)
	assert.Equal(t, 70.0, result.AvailableDeclared)

	res := repo.reservations[1]
	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, "SO-1", res.SalesOrder)
}

func TestReserveClampsDeclaredToAvailable(t *testing.T) {
	repo := newMockRepository()
	// Informally received goods: physical ahead of declared.
	repo.stock["WIDGET-A"] = stockPair{physical: 100, declared: 10}
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Reserve(context.Background(), "WIDGET-A", "SO-2", 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result.ReservedPhysical)
	assert.Equal(t, 10.0, result.ReservedDeclared)
	assert.Equal(t, 0.0, result.AvailableDeclared)
}

func TestReserveDeclaredNeverNegative(t *testing.T) {
	repo := newMockRepository()
	repo.stock["WIDGET-A"] = stockPair{physical: 100, declared: 10}
	repo.reservations[9] = &Reservation{ID: 9, Item: "WIDGET-A", ReservedPhysical: 20, ReservedDeclared: 20, Status: StatusActive}
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Reserve(context.Background(), "WIDGET-A", "SO-3", 30)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.ReservedDeclared)
}

func TestReserveInsufficientStock(t *testing.T) {
	repo := newMockRepository()
	repo.stock["WIDGET-A"] = stockPair{physical: 20, declared: 20}
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", ReservedPhysical: 15, ReservedDeclared: 15, Status: StatusActive}
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Reserve(context.Background(), "WIDGET-A", "SO-4", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Len(t, repo.reservations, 1)
}

func TestReserveValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil, nil)

	_, err := svc.Reserve(context.Background(), "", "SO-1", 10)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.Reserve(context.Background(), "WIDGET-A", "", 10)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = svc.Reserve(context.Background(), "WIDGET-A", "SO-1", 0)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestReserveBypassesCacheAndInvalidates(t *testing.T) {
	repo := newMockRepository()
	repo.stock["WIDGET-A"] = stockPair{physical: 100, declared: 100}
	cache := newMockCache()
	// A stale snapshot claiming nothing is available must not block the
	// reservation; Reserve recomputes.
	cache.snapshots["WIDGET-A"] = Availability{Item: "WIDGET-A", AvailablePhysical: 0}
	svc := NewService(repo, cache, nil, nil)

	_, err := svc.Reserve(context.Background(), "WIDGET-A", "SO-5", 30)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Equal(t, []string{"WIDGET-A"}, cache.invalidated)
	_, cached := cache.snapshots["WIDGET-A"]
	assert.False(t, cached)
}

// ============================================================================
// RELEASE / CANCEL TESTS
// ============================================================================

func TestReleaseActiveReservation(t *testing.T) {
	repo := newMockRepository()
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", Status: StatusActive}
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Release(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReleaseOutcomeReleased, result.Status)
	assert.Equal(t, StatusReleased, repo.reservations[1].Status)
}

func TestReleaseIdempotent(t *testing.T) {
	repo := newMockRepository()
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", Status: StatusReleased}
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Release(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReleaseOutcomeAlreadyInactive, result.Status)
	assert.Equal(t, StatusReleased, repo.reservations[1].Status)
}

func TestReleaseLostRaceReportsInactive(t *testing.T) {
	repo := newMockRepository()
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", Status: StatusActive}
	repo.statusResult = false
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Release(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReleaseOutcomeAlreadyInactive, result.Status)
}

func TestReleaseMissingReservation(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil, nil)

	_, err := svc.Release(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancelActiveReservation(t *testing.T) {
	repo := newMockRepository()
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", Status: StatusActive}
	cache := newMockCache()
	svc := NewService(repo, cache, nil, nil)

	result, err := svc.Cancel(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", result.Status)
	assert.Equal(t, StatusCancelled, repo.reservations[1].Status)
	assert.Equal(t, []string{"WIDGET-A"}, cache.invalidated)
}

func TestCancelledReservationCannotRelease(t *testing.T) {
	repo := newMockRepository()
	repo.reservations[1] = &Reservation{ID: 1, Item: "WIDGET-A", Status: StatusCancelled}
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Release(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ReleaseOutcomeAlreadyInactive, result.Status)
	assert.Equal(t, StatusCancelled, repo.reservations[1].Status)
}
