package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/benfinklea/nofx/internal/agentpool"
	"github.com/benfinklea/nofx/internal/scheduler"
)

// Handler holds dependencies for HTTP handlers. The control surface only
// constructs task configurations and displays outcomes; all scheduling
// decisions stay in the engine.
type Handler struct {
	engine *scheduler.Engine
	pool   *agentpool.Pool
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *scheduler.Engine, pool *agentpool.Pool, logger *zap.Logger) *Handler {
	return &Handler{
		engine: engine,
		pool:   pool,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/tasks", h.listTasks)
		r.Post("/tasks", h.createTask)
		r.Post("/tasks/clear-completed", h.clearCompleted)
		r.Post("/tasks/clear", h.clearAll)
		r.Get("/tasks/{id}", h.getTask)
		r.Post("/tasks/{id}/complete", h.completeTask)
		r.Post("/tasks/{id}/fail", h.failTask)
		r.Post("/tasks/{id}/retry", h.retryTask)
		r.Post("/tasks/{id}/conflict", h.resolveConflict)
		r.Post("/tasks/{id}/dependencies", h.addDependency)
		r.Delete("/tasks/{id}/dependencies/{dep}", h.removeDependency)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Post("/agents/{id}/status", h.setAgentStatus)

		r.Get("/queue", h.getQueue)
		r.Post("/rebalance", h.rebalance)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Tasks())
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var cfg scheduler.TaskConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.engine.AddTask(cfg)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.engine.Task(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.CompleteTask(id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	task, _ := h.engine.Task(id)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) failTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.engine.FailTask(id, body.Reason); err != nil {
		h.writeEngineError(w, err)
		return
	}
	task, _ := h.engine.Task(id)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) retryTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.RetryTask(id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	task, _ := h.engine.Task(id)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) resolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.ResolveConflict(id, scheduler.Resolution(body.Resolution)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	task, _ := h.engine.Task(id)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) addDependency(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		DependsOn string `json:"depends_on"`
		Soft      bool   `json:"soft"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DependsOn == "" {
		h.writeError(w, http.StatusBadRequest, "depends_on is required")
		return
	}

	if err := h.engine.AddTaskDependency(id, body.DependsOn, body.Soft); err != nil {
		h.writeEngineError(w, err)
		return
	}
	task, _ := h.engine.Task(id)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) removeDependency(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dep := chi.URLParam(r, "dep")

	if err := h.engine.RemoveTaskDependency(id, dep); err != nil {
		h.writeEngineError(w, err)
		return
	}
	task, _ := h.engine.Task(id)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) clearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := h.engine.ClearCompleted()
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) clearAll(w http.ResponseWriter, r *http.Request) {
	removed := h.engine.ClearAll()
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pool.Agents())
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var agent scheduler.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.pool.Register(agent); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, agent)
}

func (h *Handler) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.pool.SetStatus(id, scheduler.AgentStatus(body.Status)); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	agent, _ := h.pool.Agent(id)
	h.writeJSON(w, http.StatusOK, agent)
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.QueueSnapshot())
}

func (h *Handler) rebalance(w http.ResponseWriter, r *http.Request) {
	moved := h.engine.ReassignForLoadBalancing()
	h.writeJSON(w, http.StatusOK, map[string]int{"reassigned": moved})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, scheduler.ErrTaskNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, http.StatusConflict, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
