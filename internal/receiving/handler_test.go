package receiving

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler(repo *mockRepository) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, testService(repo, nil))
}

func doProcess(t *testing.T, h *Handler, shipmentID string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	h.MountRoutes(router)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/receipts/"+shipmentID+"/process", nil)
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerProcessReturnsOK(t *testing.T) {
	repo := newMockRepository()
	seedShipment(repo, "SHP-1", true, ShipmentLine{PO: "PO-1", Item: "WIDGET-A", Qty: 10})

	rr := doProcess(t, testHandler(repo), "SHP-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var body ProcessResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.False(t, body.AlreadyExisted)
}

func TestHandlerProcessReplayReturnsOK(t *testing.T) {
	repo := newMockRepository()
	sh := seedShipment(repo, "SHP-1", true, ShipmentLine{PO: "PO-1", Item: "WIDGET-A", Qty: 10})
	sh.ReceiptProcessed = true

	rr := doProcess(t, testHandler(repo), "SHP-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var body ProcessResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.AlreadyExisted)
}

func TestHandlerProcessMissingShipmentReturnsNotFound(t *testing.T) {
	rr := doProcess(t, testHandler(newMockRepository()), "SHP-404")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
