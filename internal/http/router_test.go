package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "dispatch/internal/http"
	"dispatch/internal/modules/analytics"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/schedule"
	"dispatch/internal/modules/worker"
	"dispatch/internal/store"
)

type testAPI struct {
	router *gin.Engine
	hub    *broadcast.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	hub := broadcast.NewHub(broadcast.NewMemoryBus(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	deps := httptransport.ServerDeps{
		Assignment: assignment.NewService(st, matching.NewScorer(matching.DefaultWeights(), worker.DefaultCap), hub),
		Schedule:   schedule.NewService(st, hub),
		Location:   location.NewService(st, nil, hub),
		Analytics:  analytics.NewService(st, nil, analytics.DefaultWindow),
		Hub:        hub,
	}
	return &testAPI{router: httptransport.NewRouter(deps), hub: hub}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (a *testAPI) seedWorker(t *testing.T, id string, lat, lng float64) {
	t.Helper()
	w, _ := a.do(t, http.MethodPut, "/api/workers/"+id, map[string]any{
		"name": "Worker " + id, "latitude": lat, "longitude": lng,
		"is_available": true, "service_radius_km": 10, "rating": 4.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (a *testAPI) createPickup(t *testing.T, autoAssign bool) map[string]any {
	t.Helper()
	w, body := a.do(t, http.MethodPost, "/api/pickups", map[string]any{
		"bin_id": "bin-1", "customer_id": "cust-1",
		"latitude": 6.5300, "longitude": 3.3800,
		"expected_fee": 25.5, "waste_type": "plastic", "auto_assign": autoAssign,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body
}

func pickupID(body map[string]any) string {
	return body["pickup"].(map[string]any)["id"].(string)
}

// ---------------------------------------------------------------------------
// Pickups
// ---------------------------------------------------------------------------

func TestPickupLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedWorker(t, "w1", 6.5244, 3.3792)

	created := api.createPickup(t, true)
	id := pickupID(created)
	assignment := created["assignment"].(map[string]any)
	assert.Equal(t, true, assignment["success"])
	assert.Equal(t, "accepted", created["pickup"].(map[string]any)["status"])

	w, body := api.do(t, http.MethodPost, "/api/pickups/"+id+"/assign", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_open", body["reason"])
	assert.Equal(t, "accepted", body["current_status"])

	w, body = api.do(t, http.MethodPost, "/api/pickups/"+id+"/status", map[string]any{"status": "in_progress", "actor_type": "worker", "actor_id": "w1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "in_progress", body["status"])

	w, _ = api.do(t, http.MethodPost, "/api/pickups/"+id+"/status", map[string]any{"status": "open"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/pickups/"+id+"/status", map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/pickups/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "in_progress", body["status"])
}

func TestPickupErrorsOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	w, _ := api.do(t, http.MethodGet, "/api/pickups/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/pickups/bad$id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/pickups", map[string]any{"bin_id": "b"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, feeBody := api.do(t, http.MethodPost, "/api/pickups", map[string]any{
		"bin_id": "bin-1", "customer_id": "cust-1", "expected_fee": 1e300,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "expected_fee out of range", feeBody["error"])

	w, _ = api.do(t, http.MethodPost, "/api/pickups", map[string]any{"bin_id": "b", "customer_id": "c", "latitude": 6.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/pickups", map[string]any{"bin_id": "b", "customer_id": "c", "latitude": 120, "longitude": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No workers registered: the pickup stays open and assign reports the factors.
	id := pickupID(api.createPickup(t, false))
	w, body := api.do(t, http.MethodPost, "/api/pickups/"+id+"/assign", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "no_candidate", body["reason"])
	assert.Len(t, body["factors_considered"], 5)
}

func TestBatchAssignOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedWorker(t, "w1", 6.5244, 3.3792)
	first := pickupID(api.createPickup(t, false))
	second := pickupID(api.createPickup(t, false))

	w, _ := api.do(t, http.MethodPost, "/api/pickups/batch-assign", map[string]any{"pickup_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := api.do(t, http.MethodPost, "/api/pickups/batch-assign", map[string]any{"pickup_ids": []string{first, second, "nope"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["total_pickups"])
	assert.EqualValues(t, 2, body["assigned_pickups"])
	assert.EqualValues(t, 1, body["unassigned_pickups"])
}

func TestNearbyOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedWorker(t, "w1", 6.5244, 3.3792)
	api.createPickup(t, false)

	w, _ := api.do(t, http.MethodGet, "/api/pickups/nearby?lat=abc&lng=3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := api.do(t, http.MethodGet, "/api/pickups/nearby?lat=6.5244&lng=3.3792", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, body = api.do(t, http.MethodGet, "/api/workers/nearby?lat=6.53&lng=3.38&radius_km=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

// ---------------------------------------------------------------------------
// Workers, schedule, analytics
// ---------------------------------------------------------------------------

func TestWorkerEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.seedWorker(t, "w1", 6.5244, 3.3792)
	api.createPickup(t, true)

	w, body := api.do(t, http.MethodPost, "/api/workers/w1/location", map[string]any{"latitude": 6.52, "longitude": 3.37})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["active_pickups"])

	w, _ = api.do(t, http.MethodPost, "/api/workers/w1/location", map[string]any{"latitude": 6.52})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/workers/ghost/location", map[string]any{"latitude": 6.52, "longitude": 3.37})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/workers/w1/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["total_pickups"])
	assert.EqualValues(t, 1, summary["pending_pickups"])

	w, _ = api.do(t, http.MethodGet, "/api/workers/w1/schedule?date=10-03-2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = api.do(t, http.MethodPost, "/api/workers/w1/reoptimize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["updated_pickups"])

	w, body = api.do(t, http.MethodPost, "/api/workers/w1/availability", map[string]any{"is_available": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["is_available"])

	w, _ = api.do(t, http.MethodPost, "/api/workers/w1/availability", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.createPickup(t, false)

	w, body := api.do(t, http.MethodGet, "/api/analytics/scheduling", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total_pickups"])
	assert.EqualValues(t, 0, body["assignment_rate"])
	assert.Nil(t, body["average_assignment_time_minutes"])

	w, body = api.do(t, http.MethodGet, "/api/analytics/coverage-gaps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["uncovered_pickups"])

	w, _ = api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---------------------------------------------------------------------------
// Websocket
// ---------------------------------------------------------------------------

// readEvent skips events of other kinds; the hub may still be delivering
// the pickup_created event when the socket joins.
func readEvent(t *testing.T, conn *websocket.Conn, kind string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev))
		if ev["type"] == kind {
			return ev
		}
	}
}

func TestWebsocketPickupSubscription(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	id := pickupID(api.createPickup(t, false))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pickup/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ev := readEvent(t, conn, "initial_status")
	assert.Equal(t, "pickup:"+id, ev["topic"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_status"}))
	ev = readEvent(t, conn, "initial_status")
	assert.Equal(t, "open", ev["payload"].(map[string]any)["status"])

	w, _ := api.do(t, http.MethodPost, "/api/pickups/"+id+"/status", map[string]any{"status": "cancelled", "actor_type": "customer"})
	require.Equal(t, http.StatusOK, w.Code)

	ev = readEvent(t, conn, "status_update")
	payload := ev["payload"].(map[string]any)
	assert.Equal(t, "open", payload["old_status"])
	assert.Equal(t, "cancelled", payload["new_status"])
}

func TestWebsocketRejectsUnknownTopics(t *testing.T) {
	api := newTestAPI(t)

	w, _ := api.do(t, http.MethodGet, "/ws/driver/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/ws/pickup/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---------------------------------------------------------------------------
// Route optimisation
// ---------------------------------------------------------------------------

func (a *testAPI) createPricedPickup(t *testing.T, customer string, lat, lng, fee float64) string {
	t.Helper()
	w, body := a.do(t, http.MethodPost, "/api/pickups", map[string]any{
		"bin_id": "bin-1", "customer_id": customer,
		"latitude": lat, "longitude": lng, "expected_fee": fee, "waste_type": "general",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return pickupID(body)
}

func planOrder(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, ok := body["pickups"].([]any)
	require.True(t, ok, "pickups missing: %v", body)
	out := make([]string, len(raw))
	for i, p := range raw {
		out[i] = p.(map[string]any)["pickup_id"].(string)
	}
	return out
}

func TestOptimizedPickupsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedWorker(t, "w1", 6.5000, 3.3500)
	near := api.createPricedPickup(t, "cust-1", 6.5010, 3.3500, 5)
	far := api.createPricedPickup(t, "cust-1", 6.5800, 3.3500, 100)

	w, body := api.do(t, http.MethodGet, "/api/workers/w1/optimized-pickups", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{near, far}, planOrder(t, body))
	assert.Equal(t, "nearest_neighbor", body["route"].(map[string]any)["algorithm"])

	w, body = api.do(t, http.MethodGet, "/api/workers/w1/optimized-pickups?algorithm=priority_greedy&radius_km=20&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{far, near}, planOrder(t, body))
	assert.Equal(t, "priority_greedy", body["route"].(map[string]any)["algorithm"])

	w, body = api.do(t, http.MethodGet, "/api/workers/w1/optimized-pickups?algorithm=greedy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{far, near}, planOrder(t, body))

	w, _ = api.do(t, http.MethodGet, "/api/workers/w1/optimized-pickups?algorithm=zigzag", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/workers/w1/optimized-pickups?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/workers/ghost/optimized-pickups", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodPut, "/api/workers/w2", map[string]any{"name": "No GPS", "is_available": true})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/workers/w2/optimized-pickups", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRouteOptimizeOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.seedWorker(t, "w1", 6.5000, 3.3500)
	near := api.createPricedPickup(t, "cust-1", 6.5010, 3.3500, 5)
	far := api.createPricedPickup(t, "cust-1", 6.5800, 3.3500, 100)

	w, body := api.do(t, http.MethodPost, "/api/routes/optimize", map[string]any{
		"worker_id": "w1", "pickup_ids": []string{near, far, "missing"}, "algorithm": "priority_greedy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{far, near}, planOrder(t, body))

	w, _ = api.do(t, http.MethodPost, "/api/routes/optimize", map[string]any{
		"worker_id": "w1", "pickup_ids": []string{near}, "algorithm": "zigzag",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/routes/optimize", map[string]any{"worker_id": "w1", "pickup_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/routes/optimize", map[string]any{"worker_id": "w1", "pickup_ids": []string{"missing"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebsocketCustomerNotifications(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)

	first := api.createPricedPickup(t, "cust-7", 6.53, 3.38, 10)
	second := api.createPricedPickup(t, "cust-7", 6.54, 3.38, 10)
	api.createPricedPickup(t, "cust-8", 6.54, 3.38, 10)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/customer/cust-7"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_notifications"}))
	ev := readEvent(t, conn, "notifications")
	assert.Equal(t, "customer:cust-7", ev["topic"])

	items := ev["payload"].(map[string]any)["notifications"].([]any)
	require.Len(t, items, 2)
	ids := []string{
		items[0].(map[string]any)["pickup_id"].(string),
		items[1].(map[string]any)["pickup_id"].(string),
	}
	assert.ElementsMatch(t, []string{first, second}, ids)
	assert.Equal(t, "open", items[0].(map[string]any)["status"])
}

func TestWebsocketOriginAllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	hub := broadcast.NewHub(broadcast.NewMemoryBus(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()
	router := httptransport.NewRouter(httptransport.ServerDeps{
		Assignment:     assignment.NewService(st, matching.NewScorer(matching.DefaultWeights(), worker.DefaultCap), hub),
		Schedule:       schedule.NewService(st, hub),
		Location:       location.NewService(st, nil, hub),
		Analytics:      analytics.NewService(st, nil, analytics.DefaultWindow),
		Hub:            hub,
		AllowedOrigins: []string{"https://ops.example.com"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/worker/w1"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.net"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://ops.example.com"}})
	require.NoError(t, err)
	_ = conn.Close()
}
