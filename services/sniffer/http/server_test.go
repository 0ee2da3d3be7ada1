package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/config"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/db"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/lastseen"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/observability"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/router"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/window"
)

type fakeHealth struct {
	up  bool
	err string
}

func (h fakeHealth) Status() (bool, string) { return h.up, h.err }

type fakeHistory struct {
	locations []db.Location
	nearby    []db.NearbyLocation
	err       error
	lastLoc   db.LocationQuery
	lastNear  db.NearbyQuery
}

func (f *fakeHistory) FetchLocations(_ context.Context, q db.LocationQuery) ([]db.Location, error) {
	f.lastLoc = q
	return f.locations, f.err
}

func (f *fakeHistory) FetchNearby(_ context.Context, q db.NearbyQuery) ([]db.NearbyLocation, error) {
	f.lastNear = q
	return f.nearby, f.err
}

type fakeLastSeen map[int]lastseen.Entry

func (f fakeLastSeen) Get(_ context.Context, id int) (lastseen.Entry, error) {
	e, ok := f[id]
	if !ok {
		return lastseen.Entry{}, lastseen.ErrNotFound
	}
	return e, nil
}

func testConfig() config.Config {
	return config.Config{HTTPPort: 8080, DefaultLimit: 500, PageName: "Localizador"}
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWindow_EmptyArray(t *testing.T) {
	buf, err := window.New(10)
	require.NoError(t, err)
	s := New(testConfig(), Deps{Window: buf})

	rec := get(t, s, "/data.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "[]", rec.Body.String())
}

func TestWindow_IdempotentAndOrdered(t *testing.T) {
	buf, err := window.New(100)
	require.NoError(t, err)
	for i := 1; i <= 101; i++ {
		v, err := telemetry.ParseValue([]byte(fmt.Sprintf(`{"n":%d,"z":true,"a":null}`, i)))
		require.NoError(t, err)
		buf.Append(v)
	}
	s := New(testConfig(), Deps{Window: buf})

	first := get(t, s, "/data.json")
	second := get(t, s, "/data.json")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	var records []map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &records))
	require.Len(t, records, 100)
	assert.Equal(t, float64(2), records[0]["n"])
	assert.Equal(t, float64(101), records[99]["n"])
	assert.Contains(t, first.Body.String(), `{"n":2,"z":true,"a":null}`, "key order is preserved")
}

func TestWindow_NotServedInPersistentMode(t *testing.T) {
	s := New(testConfig(), Deps{})
	assert.Equal(t, http.StatusNotFound, get(t, s, "/data.json").Code)
}

func TestCORSPreflight(t *testing.T) {
	buf, _ := window.New(1)
	s := New(testConfig(), Deps{Window: buf})
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/data.json", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	s := New(testConfig(), Deps{})
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	s = New(testConfig(), Deps{Health: fakeHealth{up: true}})
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)

	s = New(testConfig(), Deps{Health: fakeHealth{up: false, err: "connection refused"}})
	rec = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	m := observability.NewMetrics()
	m.PacketsReceived.Add(3)
	s := New(testConfig(), Deps{Metrics: m})

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sniffer_packets_received_total 3")
}

func newHistoryServer(t *testing.T, h *fakeHistory, last LastSeenReader) *Server {
	t.Helper()
	routes, err := router.Parse(router.DefaultRoutes)
	require.NoError(t, err)
	return New(testConfig(), Deps{History: h, LastSeen: last, Routes: routes})
}

func TestV1_ListDevices(t *testing.T) {
	s := newHistoryServer(t, &fakeHistory{}, nil)
	rec := get(t, s, "/api/v1/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
	assert.JSONEq(t, `{"data":[{"id":1,"table":"locations2"},{"id":2,"table":"vehiculo2"}],"meta":{"count":2,"page_name":"Localizador"}}`, rec.Body.String())
}

func TestV1_Locations(t *testing.T) {
	h := &fakeHistory{locations: []db.Location{{Lat: 10.5, Lng: -74.2, Timestamp: "2024-01-01 12:00:00"}}}
	s := newHistoryServer(t, h, nil)

	rec := get(t, s, "/api/v1/devices/2/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vehiculo2", h.lastLoc.Table)
	assert.Equal(t, 500, h.lastLoc.Limit)
	assert.Nil(t, h.lastLoc.Since)

	body := decodeBody(t, rec)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, float64(1), body["meta"].(map[string]any)["count"])
}

func TestV1_LocationsInRange(t *testing.T) {
	h := &fakeHistory{}
	s := newHistoryServer(t, h, nil)

	rec := get(t, s, "/api/v1/devices/1/locations?fecha_inicio=2024-01-01T08:00&fecha_fin=2024-01-01T18:30")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.lastLoc.Since)
	require.NotNil(t, h.lastLoc.Until)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), *h.lastLoc.Since)
	assert.Equal(t, time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC), *h.lastLoc.Until)
	assert.Zero(t, h.lastLoc.Limit, "a range returns every point in it")

	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["data"])
	meta := body["meta"].(map[string]any)
	assert.Equal(t, "2024-01-01 08:00:00", meta["consulta_desde"])
	assert.Equal(t, "2024-01-01 18:30:00", meta["consulta_hasta"])
}

func TestV1_LocationsRejects(t *testing.T) {
	tests := map[string]int{
		"/api/v1/devices/x/locations":                                                          http.StatusBadRequest,
		"/api/v1/devices/9/locations":                                                          http.StatusNotFound,
		"/api/v1/devices/1/locations?fecha_inicio=2024-01-01T08:00":                            http.StatusBadRequest,
		"/api/v1/devices/1/locations?fecha_inicio=ayer&fecha_fin=hoy":                          http.StatusBadRequest,
		"/api/v1/devices/1/locations?fecha_inicio=2024-01-02T08:00&fecha_fin=2024-01-01T08:00": http.StatusBadRequest,
		"/api/v1/devices/1/locations?limit=-1":                                                 http.StatusBadRequest,
	}
	for target, want := range tests {
		s := newHistoryServer(t, &fakeHistory{}, nil)
		assert.Equal(t, want, get(t, s, target).Code, target)
	}
}

func TestV1_LocationsQueryError(t *testing.T) {
	s := newHistoryServer(t, &fakeHistory{err: errors.New("relation does not exist")}, nil)
	rec := get(t, s, "/api/v1/devices/1/locations")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "relation")
}

func TestV1_Nearby(t *testing.T) {
	h := &fakeHistory{nearby: []db.NearbyLocation{{Location: db.Location{Lat: 10.5, Lng: -74.2, RPM: 800}, Distance: 12.34}}}
	s := newHistoryServer(t, h, nil)

	rec := get(t, s, "/api/v1/devices/1/nearby?lat=10.5&lng=-74.2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, db.NearbyQuery{Table: "locations2", Lat: 10.5, Lng: -74.2, RadiusM: 500, Limit: 500}, h.lastNear)

	body := decodeBody(t, rec)
	item := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, 12.34, item["distancia"])
	assert.Equal(t, float64(800), item["rpm"])
	assert.Equal(t, float64(500), body["meta"].(map[string]any)["radio"])

	get(t, s, "/api/v1/devices/1/nearby?lat=10.5&lng=-74.2&radio=10000")
	assert.Equal(t, 10000, h.lastNear.RadiusM)
}

func TestV1_NearbyRejects(t *testing.T) {
	for _, target := range []string{
		"/api/v1/devices/1/nearby?lat=10.5",
		"/api/v1/devices/1/nearby?lat=abc&lng=1",
		"/api/v1/devices/1/nearby?lat=95&lng=1",
		"/api/v1/devices/1/nearby?lat=1&lng=1&radio=0",
		"/api/v1/devices/1/nearby?lat=1&lng=1&radio=10001",
		"/api/v1/devices/1/nearby?lat=1&lng=1&radio=grande",
	} {
		s := newHistoryServer(t, &fakeHistory{}, nil)
		assert.Equal(t, http.StatusBadRequest, get(t, s, target).Code, target)
	}
}

func TestV1_LastSeen(t *testing.T) {
	fix := telemetry.Fix{DeviceID: 1, Latitude: 10.5, Longitude: -74.2, Date: "2024-01-01", Time: "12:00:00"}
	at := time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC)
	s := newHistoryServer(t, &fakeHistory{}, fakeLastSeen{1: {Fix: fix, ReceivedAt: at}})

	rec := get(t, s, "/api/v1/devices/1/last")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"device_id":1,"lat":10.5,"lon":-74.2,"fecha":"2024-01-01","hora":"12:00:00","rpm":0,"received_at":"2024-01-01T12:00:01Z"}}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/devices/2/last").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/devices/9/last").Code)
}

func TestV1_LastSeenDisabled(t *testing.T) {
	s := newHistoryServer(t, &fakeHistory{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/api/v1/devices/1/last").Code)
}
