package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System — unauthenticated.
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/v1/health", s.handleHealth)

	// Auth
	mux.HandleFunc("/v1/auth/token", s.handleAuthToken)

	// Webhook subscriptions.
	mux.HandleFunc("/v1/webhooks/", s.routeWebhookSubscription)
	mux.HandleFunc("/v1/webhooks", s.handleWebhookSubscriptionCollection)

	// One set of routes per domain: parsing, enhancement, evaluation,
	// generation, webhook_delivery.
	for _, jobType := range models.AllJobTypes {
		prefix := "/v1/" + jobType
		mux.HandleFunc(prefix+"/history", s.handleJobHistory(jobType))
		mux.HandleFunc(prefix+"/stats", s.handleJobStats(jobType))
		mux.HandleFunc(prefix+"/", s.routeJobByID(jobType))
		mux.HandleFunc(prefix, s.handleJobSubmit(jobType))
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	snap, err := s.app.Monitor.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "health snapshot failed")
		return
	}
	status := http.StatusOK
	if !snap.BrokerReachable {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, snap)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"service": "careerforge-backend",
		"uptime":  time.Since(s.app.StartupTime).String(),
	})
}

// handleAuthToken issues a bearer token for a known user — a minimal stand-in
// for a real identity provider, enough to exercise the JWT path end to end.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}
	user, err := s.app.Storage.UserStore().GetUser(r.Context(), req.UserID)
	role := "user"
	if err == nil && user != nil {
		role = user.Role
	}
	token, err := signAccessToken(req.UserID, role, &s.app.Config.Auth)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"accessToken": token,
		"tokenType":   "Bearer",
		"expiresIn":   int(s.app.Config.Auth.GetTokenExpiry().Seconds()),
	})
}

// --- Domain job handlers ---

// submitResponse is the 202 body returned by every POST /v1/<domain> (spec §6).
type submitResponse struct {
	JobID         string         `json:"jobId"`
	Status        string         `json:"status"`
	QueuedAt      time.Time      `json:"queuedAt"`
	EstimatedTime string         `json:"estimatedTime,omitempty"`
	Links         map[string]any `json:"_links"`
}

func jobLinks(jobType, jobID string) map[string]any {
	base := "/v1/" + jobType + "/" + jobID
	return map[string]any{
		"self":   base,
		"result": base + "/result",
		"cancel": base + "/cancel",
		"retry":  base + "/retry",
	}
}

// handleJobSubmit returns POST /v1/<domain>: create and enqueue a Job.
func (s *Server) handleJobSubmit(jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodPost) {
			return
		}
		uc := common.UserContextFromContext(r.Context())
		if uc == nil {
			WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		var req struct {
			Payload    any      `json:"payload"`
			Priority   string   `json:"priority"`
			MaxRetries int      `json:"maxRetries"`
			EntityID   string   `json:"cvId"`
			Tags       []string `json:"tags"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}

		opts := interfaces.CreateJobOptions{
			OwnerID:         uc.UserID,
			Priority:        models.NormalizePriority(req.Priority),
			MaxRetries:      req.MaxRetries,
			RelatedEntityID: req.EntityID,
			Tags:            req.Tags,
		}
		job, enqueue, err := s.app.JobService.CreateJob(r.Context(), jobType, req.Payload, opts)
		if err != nil {
			WriteAPIError(w, err)
			return
		}
		if enqueue != nil {
			if err := enqueue(r.Context()); err != nil {
				WriteAPIError(w, err)
				return
			}
		}

		WriteJSON(w, http.StatusAccepted, submitResponse{
			JobID:    job.ExternalID,
			Status:   job.Status,
			QueuedAt: job.UpdatedAt,
			Links:    jobLinks(jobType, job.ExternalID),
		})
	}
}

// routeJobByID dispatches /v1/<domain>/{jobId}[/result|/cancel|/retry].
func (s *Server) routeJobByID(jobType string) http.HandlerFunc {
	prefix := "/v1/" + jobType + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, prefix)
		if path == "" {
			WriteError(w, http.StatusNotFound, "job id is required")
			return
		}
		parts := strings.SplitN(path, "/", 2)
		jobID := parts[0]
		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch action {
		case "":
			s.handleJobGet(w, r, jobType, jobID)
		case "result":
			s.handleJobResult(w, r, jobType, jobID)
		case "cancel":
			s.handleJobCancel(w, r, jobType, jobID)
		case "retry":
			s.handleJobRetry(w, r, jobType, jobID)
		default:
			WriteError(w, http.StatusNotFound, "not found")
		}
	}
}

// loadOwnedJob fetches a job and enforces that jobType/ownership match,
// returning nil and writing the appropriate error response on mismatch.
func (s *Server) loadOwnedJob(w http.ResponseWriter, r *http.Request, jobType, jobID string) *models.Job {
	job, err := s.app.JobService.GetJob(r.Context(), jobID)
	if err != nil {
		WriteAPIError(w, err)
		return nil
	}
	if job == nil || job.Type != jobType {
		WriteError(w, http.StatusNotFound, "job not found")
		return nil
	}
	if !common.CanAccessJob(r.Context(), job.OwnerID) {
		WriteErrorWithCode(w, http.StatusForbidden, "not permitted to access this job", "Forbidden")
		return nil
	}
	return job
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request, jobType, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	job := s.loadOwnedJob(w, r, jobType, jobID)
	if job == nil {
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request, jobType, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	job := s.loadOwnedJob(w, r, jobType, jobID)
	if job == nil {
		return
	}
	if job.Status != models.JobStatusCompleted {
		WriteErrorWithCode(w, http.StatusConflict, "job has not completed: status="+job.Status, "InvalidState")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"jobId":       job.ExternalID,
		"result":      job.Result,
		"completedAt": job.CompletedAt,
	})
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request, jobType, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.loadOwnedJob(w, r, jobType, jobID) == nil {
		return
	}
	job, err := s.app.JobService.CancelJob(r.Context(), jobID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request, jobType, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.loadOwnedJob(w, r, jobType, jobID) == nil {
		return
	}
	job, err := s.app.JobService.RetryJob(r.Context(), jobID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// handleJobHistory returns GET /v1/<domain>/history?page,limit,status,type,cvId,sort.
func (s *Server) handleJobHistory(jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		uc := common.UserContextFromContext(r.Context())
		if uc == nil {
			WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		q := r.URL.Query()
		opts := interfaces.QueryOptions{
			Page:    queryInt(q, "page", 1),
			PerPage: queryInt(q, "limit", 20),
			Status:  q.Get("status"),
			Type:    jobType,
			OwnerID: uc.UserID,
			Sort:    q.Get("sort"),
		}
		if common.IsAdmin(r.Context()) && q.Get("ownerId") != "" {
			opts.OwnerID = q.Get("ownerId")
		}

		jobs, total, err := s.app.JobService.ListJobs(r.Context(), opts)
		if err != nil {
			WriteAPIError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"jobs":  jobs,
			"total": total,
			"page":  opts.Page,
			"limit": opts.PerPage,
		})
	}
}

// handleJobStats returns GET /v1/<domain>/stats.
func (s *Server) handleJobStats(jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		uc := common.UserContextFromContext(r.Context())
		if uc == nil {
			WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ownerID := uc.UserID
		if common.IsAdmin(r.Context()) && r.URL.Query().Get("ownerId") != "" {
			ownerID = r.URL.Query().Get("ownerId")
		}
		stats, err := s.app.JobService.Stats(r.Context(), ownerID)
		if err != nil {
			WriteAPIError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, stats)
	}
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// --- Webhook subscription handlers ---

func (s *Server) handleWebhookSubscriptionCollection(w http.ResponseWriter, r *http.Request) {
	uc := common.UserContextFromContext(r.Context())
	if uc == nil {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var sub models.WebhookSubscription
		if !DecodeJSON(w, r, &sub) {
			return
		}
		if sub.URL == "" || len(sub.Events) == 0 {
			WriteError(w, http.StatusBadRequest, "url and events are required")
			return
		}
		sub.OwnerID = uc.UserID
		sub.Active = true
		if sub.MaxRetries <= 0 {
			sub.MaxRetries = 5
		}
		if sub.BackoffMultiplier <= 0 {
			sub.BackoffMultiplier = 2.0
		}
		now := time.Now()
		sub.CreatedAt, sub.UpdatedAt = now, now
		if err := s.app.Storage.WebhookStore().SaveSubscription(r.Context(), &sub); err != nil {
			WriteAPIError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, sub)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) routeWebhookSubscription(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
	if id == "" {
		WriteError(w, http.StatusNotFound, "subscription id is required")
		return
	}
	uc := common.UserContextFromContext(r.Context())
	if uc == nil {
		WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sub, err := s.app.Storage.WebhookStore().GetSubscription(r.Context(), id)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	if sub == nil || !common.CanAccessJob(r.Context(), sub.OwnerID) {
		WriteError(w, http.StatusNotFound, "subscription not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, sub)
	case http.MethodDelete:
		if err := s.app.Storage.WebhookStore().DeleteSubscription(r.Context(), id); err != nil {
			WriteAPIError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
