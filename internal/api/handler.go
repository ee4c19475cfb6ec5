// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"maven-indexer/internal/database"
	custom_errors "maven-indexer/internal/errors"
	"maven-indexer/internal/model"
	"maven-indexer/internal/syncer"
)

const (
	defaultRecentWindow = 7 * 24 * time.Hour
	maxSyncBodyBytes    = 1 << 20
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler queues index jobs.
type Scheduler interface {
	Enqueue(name string) bool
	SyncRepositories(ctx context.Context, inputs []syncer.RepositoryInput) ([]model.Repository, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db        database.Querier
	pinger    Pinger
	scheduler Scheduler
	logger    *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// metricsHandler is mounted at /metrics when not nil.
func NewRouter(db database.Querier, pinger Pinger, scheduler Scheduler, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:        db,
		pinger:    pinger,
		scheduler: scheduler,
		logger:    logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", h.getStats)
		r.Post("/sync_repositories", h.syncRepositories)
		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", h.listRepositories)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", h.getRepository)
				r.Get("/packages", h.getPackages)
				r.Get("/recent", h.getRecent)
				r.Get("/status", h.getStatus)
				r.Post("/reindex", h.reindex)
			})
		})
	})

	return r
}

type repositoryResponse struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	Ecosystem            string     `json:"ecosystem"`
	Status               string     `json:"status"`
	LastIndexedAt        *time.Time `json:"last_indexed_at"`
	ErrorMessage         *string    `json:"error_message"`
	PackageCount         int        `json:"package_count"`
	IndexSizeBytes       int64      `json:"index_size_bytes"`
	IndexTimestamp       *string    `json:"index_timestamp,omitempty"`
	IndexChainID         *string    `json:"index_chain_id,omitempty"`
	LastIncrementalChunk *int64     `json:"last_incremental_chunk,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type statusResponse struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	LastIndexedAt *time.Time `json:"last_indexed_at"`
	ErrorMessage  *string    `json:"error_message"`
	PackageCount  int        `json:"package_count"`
}

type statsResponse struct {
	Repositories map[string]int64 `json:"repositories"`
	Packages     int64            `json:"packages"`
	Versions     int64            `json:"versions"`
}

// healthCheck pings the database.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// getStats returns repository counts per status and catalog totals.
// GET /v1/stats
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.db.CountRepositoriesByStatus(r.Context())
	if err != nil {
		h.internalError(w, "Failed to count repositories", err)
		return
	}
	packages, err := h.db.CountPackages(r.Context())
	if err != nil {
		h.internalError(w, "Failed to count packages", err)
		return
	}
	versions, err := h.db.CountVersions(r.Context())
	if err != nil {
		h.internalError(w, "Failed to count versions", err)
		return
	}

	resp := statsResponse{Repositories: make(map[string]int64, len(model.Statuses)), Packages: packages, Versions: versions}
	for _, s := range model.Statuses {
		resp.Repositories[string(s)] = 0
	}
	for _, c := range counts {
		resp.Repositories[string(c.Status)] = c.Count
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GET /v1/repositories?status=failed
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	var status model.Status
	if v := r.URL.Query().Get("status"); v != "" {
		s, err := model.ParseStatus(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'status' parameter. Must be one of pending, indexing, completed, failed.")
			return
		}
		status = s
	}

	repos, err := h.db.ListRepositories(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list repositories", err)
		return
	}
	out := make([]repositoryResponse, 0, len(repos))
	for i := range repos {
		if status != "" && repos[i].Status != status {
			continue
		}
		out = append(out, toRepositoryResponse(&repos[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// GET /v1/repositories/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepository(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, toRepositoryResponse(&repo))
}

// getPackages lists the package names of a repository.
// GET /v1/repositories/{name}/packages
func (h *Handler) getPackages(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepository(w, r)
	if !ok {
		return
	}
	names, err := h.db.ListPackageNames(r.Context(), repo.ID)
	if err != nil {
		h.internalError(w, "Failed to list packages", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondWithJSON(w, http.StatusOK, names)
}

// getRecent lists versions updated since the given time, one week back by default.
// GET /v1/repositories/{name}/recent?since=RFC3339
func (h *Handler) getRecent(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultRecentWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'since' parameter. Must be an RFC3339 timestamp.")
			return
		}
		since = t
	}

	repo, ok := h.loadRepository(w, r)
	if !ok {
		return
	}
	versions, err := h.db.ListRecentVersions(r.Context(), database.ListRecentVersionsParams{
		RepositoryID: repo.ID,
		Since:        since,
	})
	if err != nil {
		h.internalError(w, "Failed to list recent versions", err)
		return
	}
	if versions == nil {
		versions = []model.RecentVersion{}
	}
	respondWithJSON(w, http.StatusOK, versions)
}

// GET /v1/repositories/{name}/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepository(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, statusResponse{
		Name:          repo.Name,
		Status:        string(repo.Status),
		LastIndexedAt: nullTime(repo.LastIndexedAt.Time, repo.LastIndexedAt.Valid),
		ErrorMessage:  nullString(repo.ErrorMessage.String, repo.ErrorMessage.Valid),
		PackageCount:  repo.PackageCount,
	})
}

// reindex queues an index job regardless of the last indexing time.
// POST /v1/repositories/{name}/reindex
func (h *Handler) reindex(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepository(w, r)
	if !ok {
		return
	}
	queued := h.scheduler.Enqueue(repo.Name)
	h.logger.Info("Reindex requested", "repository", repo.Name, "queued", queued)
	respondWithJSON(w, http.StatusAccepted, map[string]any{"repository": repo.Name, "queued": queued})
}

// syncRepositories registers a list of repositories and queues the ones that are due.
// POST /v1/sync_repositories
func (h *Handler) syncRepositories(w http.ResponseWriter, r *http.Request) {
	var inputs []syncer.RepositoryInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBodyBytes))
	if err := dec.Decode(&inputs); err != nil {
		respondWithError(w, http.StatusBadRequest, "Request body must be a JSON array of {name, url, ecosystem} objects.")
		return
	}

	repos, err := h.scheduler.SyncRepositories(r.Context(), inputs)
	if err != nil {
		var invalid *custom_errors.ErrInvalidRepository
		if errors.As(err, &invalid) {
			respondWithError(w, http.StatusUnprocessableEntity, invalid.Error())
			return
		}
		h.internalError(w, "Failed to sync repositories", err)
		return
	}

	out := make([]repositoryResponse, 0, len(repos))
	for i := range repos {
		out = append(out, toRepositoryResponse(&repos[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) loadRepository(w http.ResponseWriter, r *http.Request) (model.Repository, bool) {
	name := chi.URLParam(r, "name")
	repo, err := h.db.GetRepositoryByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return model.Repository{}, false
		}
		h.internalError(w, "Failed to get repository", err)
		return model.Repository{}, false
	}
	return repo, true
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

func toRepositoryResponse(r *model.Repository) repositoryResponse {
	resp := repositoryResponse{
		ID:             r.ID,
		Name:           r.Name,
		URL:            r.URL,
		Ecosystem:      r.Ecosystem,
		Status:         string(r.Status),
		LastIndexedAt:  nullTime(r.LastIndexedAt.Time, r.LastIndexedAt.Valid),
		ErrorMessage:   nullString(r.ErrorMessage.String, r.ErrorMessage.Valid),
		PackageCount:   r.PackageCount,
		IndexSizeBytes: r.IndexSizeBytes,
		IndexTimestamp: nullString(r.IndexTimestamp.String, r.IndexTimestamp.Valid),
		IndexChainID:   nullString(r.IndexChainID.String, r.IndexChainID.Valid),
		CreatedAt:      r.DBCreatedAt,
		UpdatedAt:      r.DBUpdatedAt,
	}
	if r.LastIncrementalChunk.Valid {
		v := r.LastIncrementalChunk.Int64
		resp.LastIncrementalChunk = &v
	}
	return resp
}

func nullTime(t time.Time, valid bool) *time.Time {
	if !valid {
		return nil
	}
	return &t
}

func nullString(s string, valid bool) *string {
	if !valid {
		return nil
	}
	return &s
}
