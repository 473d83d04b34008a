package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/benfinklea/nofx/internal/agentpool"
	"github.com/benfinklea/nofx/internal/events"
	"github.com/benfinklea/nofx/internal/scheduler"
)

func newTestHandler(t *testing.T) (*agentpool.Pool, http.Handler) {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	logger := zap.NewNop()
	pool := agentpool.New(bus, logger)
	engine := scheduler.NewEngine(pool, testSettings{}, bus, scheduler.WithLogger(logger))
	h := NewHandler(engine, pool, logger)
	return pool, h.Router()
}

// testSettings keeps auto-assignment off so handler tests observe queue state
// instead of racing the engine.
type testSettings struct{}

func (testSettings) AutoAssignTasks() bool         { return false }
func (testSettings) LoadBalancingEnabled() bool    { return false }
func (testSettings) Strategy() scheduler.Strategy  { return scheduler.StrategyBalanced }
func (testSettings) MaxReassignmentsPerCycle() int { return 3 }
func (testSettings) UtilizationThreshold() float64 { return 80 }

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func deleteReq(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func createTask(t *testing.T, router http.Handler, cfg scheduler.TaskConfig) scheduler.Task {
	t.Helper()
	w := postJSON(t, router, "/api/tasks", cfg)
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: status %d, body %s", w.Code, w.Body.String())
	}
	return decodeJSON[scheduler.Task](t, w)
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t)

	w := getJSON(t, router, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON[map[string]string](t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want ok", resp["status"])
	}
}

func TestCreateAndGetTask(t *testing.T) {
	_, router := newTestHandler(t)

	task := createTask(t, router, scheduler.TaskConfig{
		ID: "t1", Title: "build", Description: "build the thing",
		Priority: scheduler.PriorityHigh,
	})
	if task.Status != scheduler.StatusReady {
		t.Errorf("status = %s, want ready", task.Status)
	}

	w := getJSON(t, router, "/api/tasks/t1")
	if w.Code != http.StatusOK {
		t.Fatalf("get task: status %d", w.Code)
	}
	got := decodeJSON[scheduler.Task](t, w)
	if got.Title != "build" || got.Priority != scheduler.PriorityHigh {
		t.Errorf("got %+v", got)
	}

	if w := getJSON(t, router, "/api/tasks/ghost"); w.Code != http.StatusNotFound {
		t.Errorf("unknown task: status %d, want 404", w.Code)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	_, router := newTestHandler(t)

	w := postJSON(t, router, "/api/tasks", scheduler.TaskConfig{Title: "no description"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	_, router := newTestHandler(t)

	createTask(t, router, scheduler.TaskConfig{ID: "t1", Title: "a", Description: "d"})
	createTask(t, router, scheduler.TaskConfig{ID: "t2", Title: "b", Description: "d"})

	w := getJSON(t, router, "/api/tasks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	tasks := decodeJSON[[]scheduler.Task](t, w)
	if len(tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(tasks))
	}
}

func TestTaskLifecycleErrorMapping(t *testing.T) {
	_, router := newTestHandler(t)

	createTask(t, router, scheduler.TaskConfig{ID: "t1", Title: "a", Description: "d"})

	// Illegal transitions map to conflict, unknown ids to not-found.
	if w := postJSON(t, router, "/api/tasks/t1/complete", nil); w.Code != http.StatusConflict {
		t.Errorf("complete ready task: status %d, want 409", w.Code)
	}
	if w := postJSON(t, router, "/api/tasks/t1/fail", map[string]string{"reason": "flaky"}); w.Code != http.StatusConflict {
		t.Errorf("fail ready task: status %d, want 409", w.Code)
	}
	if w := postJSON(t, router, "/api/tasks/ghost/complete", nil); w.Code != http.StatusNotFound {
		t.Errorf("complete unknown task: status %d, want 404", w.Code)
	}

	// Rebalance with balancing disabled is a clean zero.
	w := postJSON(t, router, "/api/rebalance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebalance: status %d", w.Code)
	}
	if resp := decodeJSON[map[string]int](t, w); resp["reassigned"] != 0 {
		t.Errorf("reassigned = %d, want 0", resp["reassigned"])
	}
}

func TestFailAndRetryEndpoints(t *testing.T) {
	pool, router := newTestHandler(t)
	if err := pool.Register(scheduler.Agent{ID: "a1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	createTask(t, router, scheduler.TaskConfig{ID: "t1", Title: "a", Description: "d"})

	// Queue endpoint sees the ready task.
	w := getJSON(t, router, "/api/queue")
	if w.Code != http.StatusOK {
		t.Fatalf("queue: status %d", w.Code)
	}
	queued := decodeJSON[[]scheduler.Task](t, w)
	if len(queued) != 1 || queued[0].ID != "t1" {
		t.Fatalf("queue = %+v, want [t1]", queued)
	}

	// Retry on a non-failed task is rejected.
	if w := postJSON(t, router, "/api/tasks/t1/retry", nil); w.Code != http.StatusConflict {
		t.Errorf("retry ready task: status %d, want 409", w.Code)
	}
}

func TestDependencyEndpoints(t *testing.T) {
	_, router := newTestHandler(t)

	createTask(t, router, scheduler.TaskConfig{ID: "t1", Title: "a", Description: "d"})
	createTask(t, router, scheduler.TaskConfig{ID: "t2", Title: "b", Description: "d"})

	w := postJSON(t, router, "/api/tasks/t2/dependencies", map[string]any{"depends_on": "t1"})
	if w.Code != http.StatusOK {
		t.Fatalf("add dependency: status %d, body %s", w.Code, w.Body.String())
	}
	task := decodeJSON[scheduler.Task](t, w)
	if len(task.DependsOn) != 1 || task.DependsOn[0] != "t1" {
		t.Errorf("dependsOn = %v, want [t1]", task.DependsOn)
	}
	if task.Status != scheduler.StatusBlocked {
		t.Errorf("status = %s, want blocked on incomplete t1", task.Status)
	}

	// Missing depends_on field.
	if w := postJSON(t, router, "/api/tasks/t2/dependencies", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty depends_on: status %d, want 400", w.Code)
	}

	w = deleteReq(t, router, "/api/tasks/t2/dependencies/t1")
	if w.Code != http.StatusOK {
		t.Fatalf("remove dependency: status %d", w.Code)
	}
	task = decodeJSON[scheduler.Task](t, w)
	if len(task.DependsOn) != 0 {
		t.Errorf("dependsOn = %v, want empty", task.DependsOn)
	}
	if task.Status != scheduler.StatusReady {
		t.Errorf("status = %s, want ready after removal", task.Status)
	}
}

func TestConflictEndpoint(t *testing.T) {
	_, router := newTestHandler(t)

	createTask(t, router, scheduler.TaskConfig{ID: "t1", Title: "a", Description: "d", Resources: []string{"x"}})

	w := postJSON(t, router, "/api/tasks/t1/conflict", map[string]string{"resolution": "bogus"})
	if w.Code != http.StatusConflict {
		t.Errorf("bogus resolution: status %d, want 409", w.Code)
	}

	w = postJSON(t, router, "/api/tasks/t1/conflict", map[string]string{"resolution": "allow"})
	if w.Code != http.StatusOK {
		t.Errorf("allow resolution: status %d, want 200", w.Code)
	}
}

func TestAgentEndpoints(t *testing.T) {
	_, router := newTestHandler(t)

	w := postJSON(t, router, "/api/agents", scheduler.Agent{ID: "a1", Capabilities: []string{"go"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create agent: status %d", w.Code)
	}

	// Duplicate registration conflicts.
	if w := postJSON(t, router, "/api/agents", scheduler.Agent{ID: "a1"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate agent: status %d, want 409", w.Code)
	}

	w = getJSON(t, router, "/api/agents")
	if w.Code != http.StatusOK {
		t.Fatalf("list agents: status %d", w.Code)
	}
	agents := decodeJSON[[]scheduler.Agent](t, w)
	if len(agents) != 1 || agents[0].ID != "a1" {
		t.Fatalf("agents = %+v", agents)
	}

	w = postJSON(t, router, "/api/agents/a1/status", map[string]string{"status": "offline"})
	if w.Code != http.StatusOK {
		t.Fatalf("set status: status %d", w.Code)
	}
	agent := decodeJSON[scheduler.Agent](t, w)
	if agent.Status != scheduler.AgentOffline {
		t.Errorf("agent status = %s, want offline", agent.Status)
	}

	if w := postJSON(t, router, "/api/agents/ghost/status", map[string]string{"status": "idle"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown agent: status %d, want 404", w.Code)
	}
}

func TestClearEndpoints(t *testing.T) {
	_, router := newTestHandler(t)

	for i := 0; i < 3; i++ {
		createTask(t, router, scheduler.TaskConfig{
			ID: fmt.Sprintf("t%d", i), Title: "a", Description: "d",
		})
	}

	w := postJSON(t, router, "/api/tasks/clear-completed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear-completed: status %d", w.Code)
	}
	if resp := decodeJSON[map[string]int](t, w); resp["removed"] != 0 {
		t.Errorf("removed = %d, want 0 (nothing completed)", resp["removed"])
	}

	w = postJSON(t, router, "/api/tasks/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: status %d", w.Code)
	}
	if resp := decodeJSON[map[string]int](t, w); resp["removed"] != 3 {
		t.Errorf("removed = %d, want 3", resp["removed"])
	}

	tasks := decodeJSON[[]scheduler.Task](t, getJSON(t, router, "/api/tasks"))
	if len(tasks) != 0 {
		t.Errorf("tasks after clear = %d, want 0", len(tasks))
	}
}
