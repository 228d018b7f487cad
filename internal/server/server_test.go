package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/internal/device"
	"github.com/clearsky-systems/clearsky/internal/stage"
	"github.com/clearsky-systems/clearsky/internal/store/memory"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

func testServer(t *testing.T) (*Server, *memory.MemoryStore) {
	t.Helper()

	st := memory.New()
	reg := device.NewFileRegistry()
	require.NoError(t, reg.Register(types.Device{
		ID:          "dev-001",
		OwnerID:     "owner-1",
		Status:      types.DeviceActive,
		SensorTypes: []types.SensorType{types.SensorPM25},
		Location:    "Rotterdam North",
	}))

	ingestor := stage.NewIngestor(&stage.Deps{Store: st, Registry: reg})
	return New(":0", st, ingestor, nil), st
}

func postReading(t *testing.T, srv *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIngestEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	rec := postReading(t, srv, stage.IngestRequest{
		OwnerID:   "owner-1",
		DeviceID:  "dev-001",
		Readings:  map[types.SensorType]float64{types.SensorPM25: 12.5},
		Timestamp: time.Now().UTC(),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var r types.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, types.ReadingPending, r.Status)
	assert.Equal(t, 1, r.Meta.IngestionCount)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestIngestEndpointValidation(t *testing.T) {
	srv, _ := testServer(t)

	rec := postReading(t, srv, stage.IngestRequest{
		OwnerID:   "owner-1",
		DeviceID:  "dev-404",
		Readings:  map[types.SensorType]float64{types.SensorPM25: 12.5},
		Timestamp: time.Now().UTC(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewReader([]byte("{not json")))
	badRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(badRec, req)
	assert.Equal(t, http.StatusBadRequest, badRec.Code)
}

func TestGetReadingEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	ts := time.Now().UTC()
	require.Equal(t, http.StatusAccepted, postReading(t, srv, stage.IngestRequest{
		OwnerID:   "owner-1",
		DeviceID:  "dev-001",
		Readings:  map[types.SensorType]float64{types.SensorPM25: 12.5},
		Timestamp: ts,
	}).Code)

	id := types.ReadingIDFor("dev-001", types.WindowFor(ts))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings/"+id, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var r types.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, id, r.ID)

	missing := httptest.NewRequest(http.MethodGet, "/api/v1/readings/nope", nil)
	missRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(missRec, missing)
	assert.Equal(t, http.StatusNotFound, missRec.Code)
}

func TestListReadingsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusAccepted, postReading(t, srv, stage.IngestRequest{
			OwnerID:   "owner-1",
			DeviceID:  "dev-001",
			Readings:  map[types.SensorType]float64{types.SensorPM25: float64(i)},
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		}).Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?device=dev-001", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []types.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	byStatus := httptest.NewRequest(http.MethodGet, "/api/v1/readings?status=PENDING", nil)
	statusRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(statusRec, byStatus)
	require.Equal(t, http.StatusOK, statusRec.Code)
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	noFilter := httptest.NewRequest(http.MethodGet, "/api/v1/readings", nil)
	noFilterRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(noFilterRec, noFilter)
	assert.Equal(t, http.StatusBadRequest, noFilterRec.Code)
}

func TestDerivativeEndpoints(t *testing.T) {
	srv, st := testServer(t)
	d := types.Derivative{
		ID:          "01JD00000000000000000000X1",
		Type:        types.DerivativeDaily,
		DeviceID:    "dev-001",
		OwnerID:     "owner-1",
		PeriodStart: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		Content:     "Air quality was fine.",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.PutDerivative(context.Background(), d))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/derivatives/"+d.ID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	list := httptest.NewRequest(http.MethodGet, "/api/v1/derivatives?type=DAILY", nil)
	listRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(listRec, list)
	require.Equal(t, http.StatusOK, listRec.Code)

	var derivs []types.Derivative
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &derivs))
	require.Len(t, derivs, 1)
	assert.Equal(t, d.ID, derivs[0].ID)

	badType := httptest.NewRequest(http.MethodGet, "/api/v1/derivatives?type=WEEKLY", nil)
	badRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(badRec, badType)
	assert.Equal(t, http.StatusBadRequest, badRec.Code)
}

func TestHealthAndDebugVars(t *testing.T) {
	srv, _ := testServer(t)

	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, health)
	assert.Equal(t, http.StatusOK, rec.Code)

	vars := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	varsRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(varsRec, vars)
	assert.Equal(t, http.StatusOK, varsRec.Code)
	assert.Contains(t, varsRec.Body.String(), "ingestions_total")
}
