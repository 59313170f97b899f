package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/engine"
	"github.com/shaiso/Shipyard/internal/orchestrator"
	"github.com/shaiso/Shipyard/internal/repo"
)

const defaultListLimit = 50

// ListPipelines возвращает имена pipeline из каталога.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	names, err := h.pipelines.Names()
	if err != nil {
		InternalError(w, h.requestLogger(r), err)
		return
	}
	if names == nil {
		names = []string{}
	}
	List(w, names, len(names))
}

// ListRuns возвращает список runs, новые первыми.
// GET /api/v1/runs?pipeline=...&status=...&limit=...
//
// Если настроен журнал, список берётся из него: он содержит и runs,
// вытесненные из памяти. Иначе — из orchestrator.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultListLimit
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	pipeline := query.Get("pipeline")
	status := domain.RunStatus(query.Get("status"))

	var runs []domain.Run
	if h.history != nil {
		var err error
		runs, err = h.history.ListRuns(r.Context(), repo.RunFilter{
			Pipeline: pipeline,
			Status:   status,
			Limit:    limit,
		})
		if HandleError(w, h.requestLogger(r), err, "") {
			return
		}
	} else {
		runs = h.runs.List()
	}

	result := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		if pipeline != "" && run.Pipeline != pipeline {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}
		result = append(result, RunFromDomain(run))
		if len(result) == limit {
			break
		}
	}

	List(w, result, len(result))
}

// CreateRun запускает pipeline из каталога.
// POST /api/v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Pipeline == "" {
		BadRequest(w, "pipeline is required")
		return
	}
	if req.Ref == "" {
		BadRequest(w, "ref is required")
		return
	}

	trigger := domain.Trigger{Ref: req.Ref}
	if req.EventKind != "" {
		event, err := domain.ParseEventKind(req.EventKind)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		trigger.Event = event
	} else {
		trigger.Event = eventForRef(req.Ref)
	}

	run, ok := h.submit(w, r, req.Pipeline, trigger)
	if !ok {
		return
	}
	Created(w, RunFromDomain(*run))
}

// submit загружает pipeline и отправляет run в orchestrator.
// При ошибке ответ уже отправлен.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, pipeline string, trigger domain.Trigger) (*domain.Run, bool) {
	spec, err := h.pipelines.Pipeline(pipeline)
	if err != nil {
		if errors.Is(err, engine.ErrPipelineNotFound) {
			NotFound(w, err.Error())
		} else {
			InvalidState(w, err.Error())
		}
		return nil, false
	}

	// Run переживает запрос: его контекст задаёт orchestrator.
	logger := h.requestLogger(r)
	run, err := h.runs.Submit(r.Context(), spec, trigger)
	if HandleError(w, logger, err, "") {
		return nil, false
	}

	logger.Info("run created",
		"run_id", run.ID,
		"pipeline", run.Pipeline,
		"event_kind", trigger.Event,
		"ref", trigger.Ref,
	)
	return run, true
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.findRun(r, id)
	if HandleError(w, h.requestLogger(r), err, "run not found") {
		return
	}

	resp := RunFromDomain(*run)
	if stats, ok := h.runs.GetActiveRunStats(id); ok {
		resp.Active = true
		resp.Jobs = &stats
	}
	Success(w, resp)
}

// CancelRun отменяет выполняющийся run.
// POST /api/v1/runs/{id}/cancel
//
// Отмена асинхронна: ответ 202 содержит снимок run на момент запроса.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.runs.Cancel(id); err != nil {
		if errors.Is(err, orchestrator.ErrRunFinished) {
			InvalidState(w, "run is already finished")
			return
		}
		HandleError(w, h.requestLogger(r), err, "run not found")
		return
	}

	run, err := h.runs.Get(id)
	if HandleError(w, h.requestLogger(r), err, "run not found") {
		return
	}
	Accepted(w, RunFromDomain(*run))
}

// ListRunJobs возвращает экземпляры run.
// GET /api/v1/runs/{id}/jobs
func (h *Handler) ListRunJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	jobs, err := h.runs.Jobs(id)
	if errors.Is(err, orchestrator.ErrRunNotFound) && h.history != nil {
		var run *domain.Run
		run, err = h.history.GetRun(r.Context(), id)
		if err == nil {
			jobs = run.Jobs
		}
	}
	if HandleError(w, h.requestLogger(r), err, "run not found") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = JobFromDomain(j)
	}

	List(w, result, len(result))
}

// findRun ищет run в orchestrator, затем в журнале.
func (h *Handler) findRun(r *http.Request, id uuid.UUID) (*domain.Run, error) {
	run, err := h.runs.Get(id)
	if errors.Is(err, orchestrator.ErrRunNotFound) && h.history != nil {
		return h.history.GetRun(r.Context(), id)
	}
	return run, err
}

// eventForRef выводит тип события из ref.
func eventForRef(ref string) domain.EventKind {
	if (domain.Trigger{Ref: ref}).IsTag() {
		return domain.EventTag
	}
	return domain.EventPush
}
